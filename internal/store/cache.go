package store

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"
)

// Compile-time check to verify that DefinitionCache implements Repository.
var _ Repository = (*DefinitionCache)(nil)

// DefinitionCache decorates a Repository so that repeated upserts of the same
// experiment definition skip the round trip to the database. Every experiment
// node upserts its definition on each run, which makes this the hottest write.
//
// All other calls go straight to the wrapped repository.
type DefinitionCache struct {
	Repository
	seen otter.Cache[string, struct{}]
}

// NewDefinitionCache builds the decorator with a bounded, TTL-evicting cache.
func NewDefinitionCache(next Repository, capacity int, ttl time.Duration) (*DefinitionCache, error) {
	seen, err := otter.MustBuilder[string, struct{}](capacity).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build definition cache: %w", err)
	}
	return &DefinitionCache{Repository: next, seen: seen}, nil
}

func (c *DefinitionCache) UpsertExperimentDefinition(ctx context.Context, def ExperimentDefinition) error {
	key := fmt.Sprintf("%d:%d", def.ID, def.Version)
	if _, ok := c.seen.Get(key); ok {
		return nil
	}
	if err := c.Repository.UpsertExperimentDefinition(ctx, def); err != nil {
		return err
	}
	c.seen.Set(key, struct{}{})
	return nil
}

// Close releases the cache's background resources.
func (c *DefinitionCache) Close() {
	c.seen.Close()
}
