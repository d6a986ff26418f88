// Package query carries the pagination conventions shared by the HTTP API
// and the CLI. Listings walk identifier order newest first, and a page token
// is simply the last identifier of the previous page.
package query

import (
	"fmt"
	"strings"

	"quorum/internal/config"
	"quorum/internal/ident"
)

// Page is one window of a listing. NextToken is empty on the final page.
type Page[T any] struct {
	Items     []T
	NextToken string
}

// Limit clamps a requested page size to the configured bounds. Zero or
// negative requests fall back to the default page size.
func Limit(cfg *config.Config, requested int) int {
	if requested <= 0 {
		return cfg.Query.PageSize
	}
	if requested > cfg.Query.MaxPageSize {
		return cfg.Query.MaxPageSize
	}
	return requested
}

// Token renders a resume token for the given identifier, empty for zero.
func Token(id ident.ID) string {
	if id.IsZero() {
		return ""
	}
	return id.String()
}

// ParseToken decodes a resume token. An empty token means the first page.
func ParseToken(token string) (ident.ID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ident.Zero, nil
	}
	id, err := ident.Parse(token)
	if err != nil {
		return ident.Zero, fmt.Errorf("invalid page token %q: %w", token, err)
	}
	return id, nil
}

// PageOf wraps a listing result. A full page carries a token for the next
// one; short pages are final. last extracts the pagination key of an item.
func PageOf[T any](items []T, limit int, last func(T) ident.ID) Page[T] {
	page := Page[T]{Items: items}
	if limit > 0 && len(items) == limit {
		page.NextToken = Token(last(items[len(items)-1]))
	}
	return page
}
