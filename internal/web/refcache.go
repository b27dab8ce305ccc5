package web

import (
	"context"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-drive/internal/drive"
	rutils "github.com/Laisky/laisky-drive/library/db/redis"
)

const projectRefTTL = 10 * time.Minute

// kvStore is the subset of go-redis utils the cache needs.
type kvStore interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, val string, exp time.Duration) error
}

// projectResolver turns references into project rows.
type projectResolver interface {
	ResolveProject(ctx context.Context, ref drive.ProjectRef) (*drive.Project, error)
}

// ProjectRefCache memoizes project name to id lookups in redis.
// Any redis failure degrades to a direct database lookup.
type ProjectRefCache struct {
	store    kvStore
	resolver projectResolver
}

// NewProjectRefCache wraps resolver with an optional redis store.
func NewProjectRefCache(store kvStore, resolver projectResolver) *ProjectRefCache {
	return &ProjectRefCache{store: store, resolver: resolver}
}

// Resolve maps a raw path parameter to a canonical id-based reference.
func (c *ProjectRefCache) Resolve(ctx context.Context, raw string) (drive.ProjectRef, error) {
	ref := drive.ParseProjectRef(raw)
	name, byName := ref.Name()
	if !byName {
		return ref, nil
	}

	key := rutils.KeyPrefixProjectRef + name
	if c.store != nil {
		if id, err := c.store.GetItem(ctx, key); err == nil && id != "" {
			return drive.ProjectByID(id), nil
		}
	}

	project, err := c.resolver.ResolveProject(ctx, ref)
	if err != nil {
		return drive.ProjectRef{}, err
	}

	if c.store != nil {
		if err := c.store.SetItem(ctx, key, project.ID, projectRefTTL); err != nil {
			gmw.GetLogger(ctx).Debug("cache project ref", zap.String("name", name), zap.Error(err))
		}
	}
	return drive.ProjectByID(project.ID), nil
}
