package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	perr "detention/internal/platform/errors"
)

// The overlay holds flattened YAML keys. Nested maps join with "_" and keys
// are upper-cased, so
//
//	detention:
//	  batch:
//	    chunk_size: 25
//
// answers DETENTION_BATCH_CHUNK_SIZE. Environment variables always win.
var (
	overlayMu sync.RWMutex
	overlay   map[string]string
)

func overlayValue(k string) string {
	overlayMu.RLock()
	defer overlayMu.RUnlock()
	return overlay[k]
}

// LoadFile reads a YAML file into the process-wide overlay, replacing any previous one
func LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "read config file %s", path)
	}
	return LoadYAML(b)
}

// LoadYAML parses YAML bytes into the overlay
func LoadYAML(b []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "parse config yaml")
	}
	flat := map[string]string{}
	flatten("", doc, flat)

	overlayMu.Lock()
	overlay = flat
	overlayMu.Unlock()
	return nil
}

// LoadFromEnv loads CONFIG_FILE when it is set. No file is not an error
func LoadFromEnv() error {
	p := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if p == "" {
		return nil
	}
	return LoadFile(p)
}

// ResetOverlay drops any loaded file values
func ResetOverlay() {
	overlayMu.Lock()
	overlay = nil
	overlayMu.Unlock()
}

// OverlayKeys lists the loaded keys, sorted. Used by the diagnostics endpoint
func OverlayKeys() []string {
	overlayMu.RLock()
	defer overlayMu.RUnlock()
	out := make([]string, 0, len(overlay))
	for k := range overlay {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func flatten(prefix string, v any, out map[string]string) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			key := strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
			if prefix != "" {
				key = prefix + "_" + key
			}
			flatten(key, child, out)
		}
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
		out[prefix] = strings.Join(parts, ",")
	case nil:
	default:
		out[prefix] = fmt.Sprint(t)
	}
}
