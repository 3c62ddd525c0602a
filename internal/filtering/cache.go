package filtering

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"sieve/internal/constants"
	"sieve/internal/logger"
	"sieve/pkg/metrics"
	"sieve/pkg/models"
)

var errStaleCacheWrite = errors.New("filter set cache invalidated during read")

// CachedRepository keeps the active filter set list in Redis. Redis failures
// fall through to the wrapped repository.
//
// Invalidate bumps a generation counter next to the list. A read that misses
// only writes its result back when the generation it saw before reading the
// repository is still current, so a list loaded before an invalidation is
// never cached after it. Both keys share a hash tag for cluster mode.
type CachedRepository struct {
	repo   Repository
	client redis.UniversalClient
	ttl    time.Duration
	key    string
	genKey string
	logger logger.Logger
}

func NewCachedRepository(repo Repository, client redis.UniversalClient, ttl time.Duration, log logger.Logger) *CachedRepository {
	if ttl <= 0 {
		ttl = time.Duration(constants.DefaultTTLSeconds) * time.Second
	}
	return &CachedRepository{
		repo:   repo,
		client: client,
		ttl:    ttl,
		key:    constants.CacheKeyActiveFilterSets,
		genKey: constants.CacheKeyFilterSetsGeneration,
		logger: log,
	}
}

func (r *CachedRepository) GetActiveFilterSets(ctx context.Context) ([]models.FilterSet, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	switch {
	case err == nil:
		var sets []models.FilterSet
		if err := json.Unmarshal(data, &sets); err == nil {
			metrics.IncFilterSetCache("hit")
			return sets, nil
		}
		r.logger.WarnwCtx(ctx, "Discarding undecodable filter set cache entry", "key", r.key, "error", err)
		metrics.IncFilterSetCache("corrupt")
	case errors.Is(err, redis.Nil):
		metrics.IncFilterSetCache("miss")
	default:
		r.logger.WarnwCtx(ctx, "Filter set cache unavailable, reading from repository", "error", err)
		metrics.IncFilterSetCache("error")
	}

	gen, genErr := r.generation(ctx, r.client)

	sets, err := r.repo.GetActiveFilterSets(ctx)
	if err != nil {
		return nil, err
	}

	if genErr == nil {
		r.store(ctx, gen, sets)
	}
	return sets, nil
}

func (r *CachedRepository) generation(ctx context.Context, c redis.Cmdable) (int64, error) {
	gen, err := c.Get(ctx, r.genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// store writes sets only while the generation still equals gen.
func (r *CachedRepository) store(ctx context.Context, gen int64, sets []models.FilterSet) {
	if sets == nil {
		sets = []models.FilterSet{}
	}
	data, err := json.Marshal(sets)
	if err != nil {
		r.logger.WarnwCtx(ctx, "Failed to encode filter sets for cache", "error", err)
		return
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := r.generation(ctx, tx)
		if err != nil {
			return err
		}
		if current != gen {
			return errStaleCacheWrite
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key, data, r.ttl)
			return nil
		})
		return err
	}, r.genKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleCacheWrite), errors.Is(err, redis.TxFailedErr):
		metrics.IncFilterSetCache("stale")
		r.logger.DebugwCtx(ctx, "Skipping cache write for a list read before invalidation")
	default:
		r.logger.WarnwCtx(ctx, "Failed to write filter set cache", "error", err)
	}
}

// Invalidate drops the cached list and bumps the generation so reads already
// in flight do not repopulate it.
func (r *CachedRepository) Invalidate(ctx context.Context) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, r.genKey)
		pipe.Del(ctx, r.key)
		return nil
	})
	return err
}
