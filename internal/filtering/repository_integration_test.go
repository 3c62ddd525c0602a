//go:build integration

package filtering

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sieve/internal/constants"
	"sieve/internal/logger"
	"sieve/internal/testinfra"
	"sieve/pkg/models"
)

func insertPostgresSet(t *testing.T, db *sql.DB, set models.FilterSet) string {
	t.Helper()
	filters, err := set.Filters.MarshalJSON()
	require.NoError(t, err)

	id := uuid.New().String()
	_, err = db.Exec(`
		INSERT INTO filter_sets (id, name, description, filters, condition, priority, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, set.Name, set.Description, string(filters), set.Condition, set.Priority, set.Enabled,
	)
	require.NoError(t, err)
	return id
}

func TestPostgresRepository_GetActiveFilterSets(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Postgres: true})
	ctx := context.Background()

	low := insertPostgresSet(t, infra.PostgresDB, models.FilterSet{
		Name:     "low",
		Filters:  models.FilterList{models.NewMetricFilter("cpu", 0.5, models.ComparisonLess)},
		Priority: 1,
		Enabled:  true,
	})
	time.Sleep(10 * time.Millisecond)
	high := insertPostgresSet(t, infra.PostgresDB, models.FilterSet{
		Name:      "high",
		Filters:   models.FilterList{models.NewStringFilter("env", "prod", true), models.NewBooleanFilter("ok", true)},
		Condition: "size(payload) > 0",
		Priority:  10,
		Enabled:   true,
	})
	insertPostgresSet(t, infra.PostgresDB, models.FilterSet{Name: "off", Filters: models.FilterList{}, Enabled: false})

	sets, err := NewRepository(infra.PostgresDB, logger.NopLogger()).GetActiveFilterSets(ctx)
	require.NoError(t, err)
	require.Len(t, sets, 2)

	assert.Equal(t, high, sets[0].ID)
	assert.Equal(t, low, sets[1].ID)
	assert.Equal(t, models.NewStringFilter("env", "prod", true), sets[0].Filters[0])
	assert.Equal(t, models.NewMetricFilter("cpu", 0.5, models.ComparisonLess), sets[1].Filters[0])
	assert.Equal(t, "size(payload) > 0", sets[0].Condition)
}

func TestMongoRepository_GetActiveFilterSets(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Mongo: true})
	ctx := context.Background()
	coll := infra.MongoDB.Collection(constants.MongoFilterSetsCollection)

	now := time.Now().UTC().Truncate(time.Millisecond)
	for _, set := range []models.FilterSet{
		{ID: "a", Name: "a", Priority: 1, Enabled: true, CreatedAt: now, Filters: models.FilterList{models.NewNumberFilter("port", 443, false)}},
		{ID: "b", Name: "b", Priority: 5, Enabled: true, CreatedAt: now},
		{ID: "c", Name: "c", Priority: 9, Enabled: false, CreatedAt: now},
	} {
		doc, err := NewFilterSetDocument(&set)
		require.NoError(t, err)
		_, err = coll.InsertOne(ctx, doc)
		require.NoError(t, err)
	}

	sets, err := NewMongoRepository(infra.MongoDB, logger.NopLogger()).GetActiveFilterSets(ctx)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, "b", sets[0].ID)
	assert.Equal(t, "a", sets[1].ID)
	assert.Equal(t, models.FilterList{models.NewNumberFilter("port", 443, false)}, sets[1].Filters)
	assert.Empty(t, sets[0].Filters)
}

func TestPostgresRepository_SkipsUndecodableRow(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Postgres: true})
	ctx := context.Background()

	good := insertPostgresSet(t, infra.PostgresDB, models.FilterSet{
		Name:    "good",
		Filters: models.FilterList{models.NewBooleanFilter("ok", true)},
		Enabled: true,
	})
	_, err := infra.PostgresDB.Exec(`
		INSERT INTO filter_sets (id, name, filters, priority, enabled)
		VALUES ($1, 'broken', '[{"type":"unknown"}]', 5, true)`, uuid.New().String())
	require.NoError(t, err)

	sets, err := NewRepository(infra.PostgresDB, logger.NopLogger()).GetActiveFilterSets(ctx)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, good, sets[0].ID)
}

func TestMongoRepository_SkipsUndecodableDocument(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Mongo: true})
	ctx := context.Background()
	coll := infra.MongoDB.Collection(constants.MongoFilterSetsCollection)

	now := time.Now().UTC()
	_, err := coll.InsertOne(ctx, FilterSetDocument{ID: "broken", Name: "broken", Filters: "not json", Priority: 5, Enabled: true, CreatedAt: now})
	require.NoError(t, err)
	doc, err := NewFilterSetDocument(&models.FilterSet{ID: "good", Name: "good", Enabled: true, CreatedAt: now})
	require.NoError(t, err)
	_, err = coll.InsertOne(ctx, doc)
	require.NoError(t, err)

	sets, err := NewMongoRepository(infra.MongoDB, logger.NopLogger()).GetActiveFilterSets(ctx)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "good", sets[0].ID)
}

func TestCachedRepository(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Redis: true})
	ctx := context.Background()

	repo := &fakeRepository{sets: []models.FilterSet{
		filterSet("a", 1, "", models.NewMetricFilter("cpu", 10, models.ComparisonMore)),
	}}
	cached := NewCachedRepository(repo, infra.RedisClient, time.Minute, logger.NopLogger())

	first, err := cached.GetActiveFilterSets(ctx)
	require.NoError(t, err)
	second, err := cached.GetActiveFilterSets(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), repo.calls.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, models.NewMetricFilter("cpu", 10, models.ComparisonMore), second[0].Filters[0])

	ttl, err := infra.RedisClient.TTL(ctx, constants.CacheKeyActiveFilterSets).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, cached.Invalidate(ctx))
	_, err = cached.GetActiveFilterSets(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.calls.Load())
}

func TestCachedRepository_InvalidateDuringReadSkipsWrite(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Redis: true})
	ctx := context.Background()

	repo := &gatedRepository{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		older:   []models.FilterSet{filterSet("old", 1, "")},
		newer:   []models.FilterSet{filterSet("new", 1, "")},
	}
	cached := NewCachedRepository(repo, infra.RedisClient, time.Minute, logger.NopLogger())

	done := make(chan []models.FilterSet, 1)
	go func() {
		sets, err := cached.GetActiveFilterSets(ctx)
		assert.NoError(t, err)
		done <- sets
	}()
	<-repo.entered

	require.NoError(t, cached.Invalidate(ctx))
	close(repo.release)
	assert.Equal(t, "old", (<-done)[0].ID)

	exists, err := infra.RedisClient.Exists(ctx, constants.CacheKeyActiveFilterSets).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	sets, err := cached.GetActiveFilterSets(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", sets[0].ID)

	exists, err = infra.RedisClient.Exists(ctx, constants.CacheKeyActiveFilterSets).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}

func TestCachedRepository_RedisDownFallsThrough(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Redis: true})
	ctx := context.Background()

	repo := &fakeRepository{sets: []models.FilterSet{filterSet("a", 1, "")}}
	cached := NewCachedRepository(repo, infra.RedisClient, time.Minute, logger.NopLogger())
	require.NoError(t, infra.RedisClient.Close())

	sets, err := cached.GetActiveFilterSets(ctx)
	require.NoError(t, err)
	assert.Len(t, sets, 1)
}

func TestService_WithPostgres(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Postgres: true})
	ctx := context.Background()

	id := insertPostgresSet(t, infra.PostgresDB, models.FilterSet{
		Name:     "status",
		Filters:  models.FilterList{models.NewStringFilter("status", "active", false)},
		Priority: 10,
		Enabled:  true,
	})

	svc := newTestService(t, NewRepository(infra.PostgresDB, logger.NopLogger()), constants.FallbackAllow)
	require.NoError(t, svc.ReloadFilterSets(ctx, true))

	passed, applied, err := svc.Filter(ctx, message(map[string]interface{}{"status": "active"}))
	require.NoError(t, err)
	assert.True(t, passed)
	assert.Equal(t, []string{id}, applied)

	passed, _, err = svc.Filter(ctx, message(map[string]interface{}{"status": "gone"}))
	require.NoError(t, err)
	assert.False(t, passed)
}
