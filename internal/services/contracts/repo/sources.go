// Package repo provides contract record sources
package repo

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"

	perr "detention/internal/platform/errors"
	"detention/internal/services/contracts/domain"
)

// Lister is the TMS endpoint that returns every contract record
type Lister interface {
	ListContracts(ctx context.Context) ([]map[string]any, error)
}

// TMS reads contracts from the backend
type TMS struct{ L Lister }

// NewTMS builds the backend source
func NewTMS(l Lister) domain.Source { return TMS{L: l} }

// Name implements domain.Source
func (TMS) Name() string { return "tms" }

// Load implements domain.Source
func (t TMS) Load(ctx context.Context) ([]map[string]any, error) { return t.L.ListContracts(ctx) }

// File reads contracts from a YAML document, either a bare list or
// a mapping with a contracts key
type File struct{ Path string }

// NewFile builds the file source
func NewFile(path string) domain.Source { return File{Path: path} }

// Name implements domain.Source
func (f File) Name() string { return "file:" + f.Path }

// Load implements domain.Source
func (f File) Load(ctx context.Context) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeNotFound, "read contract file %s", f.Path)
	}
	return ParseYAML(b)
}

// ParseYAML decodes a contract document
func ParseYAML(b []byte) ([]map[string]any, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "parse contract yaml")
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]

	var list []map[string]any
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&list); err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeJSON, "decode contract list")
		}
	case yaml.MappingNode:
		var doc struct {
			Contracts []map[string]any `yaml:"contracts"`
		}
		if err := root.Decode(&doc); err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeJSON, "decode contract document")
		}
		list = doc.Contracts
	default:
		return nil, perr.JSONErrf("contract yaml must be a list or a mapping")
	}
	return list, nil
}
