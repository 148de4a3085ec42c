package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/atelier-carto/fondplan/internal/commune"
)

// Resolver is the minimal lookup contract the cache wraps.
type Resolver interface {
	Resolve(ctx context.Context, nameQuery string) (*commune.Commune, error)
}

// CachedResolver consults the boundary cache before delegating to the inner
// resolver. Cache failures never fail a resolution; they only cost the
// remote round trip.
type CachedResolver struct {
	Inner Resolver
	Cache *BoundaryCache
}

// Resolve returns the cached commune for the query when present, otherwise
// resolves remotely and stores the result.
func (r *CachedResolver) Resolve(ctx context.Context, nameQuery string) (*commune.Commune, error) {
	log := zap.L().With(zap.String("component", "store"))

	cm, ok, err := r.Cache.Get(ctx, nameQuery)
	if err != nil {
		log.Warn("boundary cache read failed", zap.String("query", nameQuery), zap.Error(err))
	} else if ok {
		log.Debug("boundary cache hit", zap.String("query", nameQuery), zap.String("insee", cm.Code))
		return cm, nil
	}

	cm, err = r.Inner.Resolve(ctx, nameQuery)
	if err != nil {
		return nil, err
	}

	if err := r.Cache.Put(ctx, nameQuery, cm); err != nil {
		log.Warn("boundary cache write failed", zap.String("query", nameQuery), zap.Error(err))
	}
	return cm, nil
}
