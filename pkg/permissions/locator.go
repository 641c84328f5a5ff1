package permissions

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/canopyhq/canopy/pkg/projects"
)

// SlugResolver looks up the canonical project id for a slug
type SlugResolver interface {
	ResolveSlug(ctx context.Context, slug string) (string, error)
}

const slugCacheSize = 4096

// Locator resolves raw project identifiers to canonical ids. Canonical
// ids pass through untouched; slugs go through storage.
//
// The slug -> id mapping is immutable for as long as the project lives,
// so successful resolutions sit behind a small LRU. Deleting a project
// frees its slug for reuse, so deletion must evict the entry via Forget.
// Misses are never cached, and nothing decision-shaped ever enters this
// cache.
type Locator struct {
	slugs SlugResolver
	cache *lru.Cache[string, string]
}

// NewLocator creates a locator backed by the given slug resolver
func NewLocator(slugs SlugResolver) (*Locator, error) {
	cache, err := lru.New[string, string](slugCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create slug cache: %w", err)
	}
	return &Locator{slugs: slugs, cache: cache}, nil
}

// ResolveProject returns the canonical project id for a raw path
// identifier. Returns ErrNotFound when a slug has no match.
func (l *Locator) ResolveProject(ctx context.Context, raw string) (string, error) {
	id := ClassifyID(raw)
	if id.IsCanonical() {
		return id.String(), nil
	}

	slug := id.String()
	if cached, ok := l.cache.Get(slug); ok {
		return cached, nil
	}

	resolved, err := l.slugs.ResolveSlug(ctx, slug)
	if err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			return "", fmt.Errorf("project %q: %w", slug, ErrNotFound)
		}
		return "", fmt.Errorf("failed to resolve project identifier: %w", err)
	}

	l.cache.Add(slug, resolved)
	return resolved, nil
}

// Forget evicts a slug from the cache. Called when the project owning the
// slug is deleted; a later project may claim the same slug.
func (l *Locator) Forget(slug string) {
	l.cache.Remove(slug)
}
