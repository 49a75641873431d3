package service

import (
	"context"
	"os"
	"strings"

	perr "detention/internal/platform/errors"
)

// HostSource reads a token the host environment already holds: an explicit
// value or a file the host session writes it to
type HostSource struct {
	Value string
	Path  string
}

// Name implements domain.Source
func (HostSource) Name() string { return "host" }

// Acquire implements domain.Source
func (h HostSource) Acquire(context.Context) (string, error) {
	if v := strings.TrimSpace(h.Value); v != "" {
		return v, nil
	}
	if h.Path == "" {
		return "", perr.Newf(perr.ErrorCodeNotFound, "no host session token")
	}
	b, err := os.ReadFile(h.Path)
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeNotFound, "read host token file %s", h.Path)
	}
	return strings.TrimSpace(string(b)), nil
}

// PageFetcher loads the markup of the session page
type PageFetcher interface {
	FetchSessionPage(ctx context.Context) (string, error)
}

// PageSource fetches the session page and parses the token out of it
type PageSource struct {
	Fetcher PageFetcher
	Extract func(markup string) (string, error)
}

// Name implements domain.Source
func (PageSource) Name() string { return "page" }

// Acquire implements domain.Source
func (p PageSource) Acquire(ctx context.Context) (string, error) {
	markup, err := p.Fetcher.FetchSessionPage(ctx)
	if err != nil {
		return "", err
	}
	return p.Extract(markup)
}
