//go:build integration

package management

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sieve/internal/logger"
	"sieve/internal/testinfra"
	pkgerrors "sieve/pkg/errors"
	"sieve/pkg/models"
)

func newSet(name string, priority int) *models.FilterSet {
	return &models.FilterSet{
		Name: name,
		Filters: models.FilterList{
			models.NewStringFilter("env", "prod", false),
			models.NewMetricFilter("cpu", 75.5, models.ComparisonMore),
		},
		Condition: `size(properties) > 0`,
		Priority:  priority,
		Enabled:   true,
	}
}

func exerciseRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	low := newSet("low", 1)
	require.NoError(t, repo.CreateFilterSet(ctx, low))
	require.NotEmpty(t, low.ID)

	high := newSet("high", 9)
	require.NoError(t, repo.CreateFilterSet(ctx, high))

	err := repo.CreateFilterSet(ctx, newSet("low", 3))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))

	got, err := repo.GetFilterSet(ctx, low.ID)
	require.NoError(t, err)
	assert.Equal(t, low.Filters, got.Filters)
	assert.Equal(t, low.Condition, got.Condition)
	assert.Equal(t, low.CreatedAt.Unix(), got.CreatedAt.Unix())

	sets, err := repo.ListFilterSets(ctx)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, high.ID, sets[0].ID)

	got.Enabled = false
	got.Filters = models.FilterList{models.NewBooleanFilter("healthy", true)}
	require.NoError(t, repo.UpdateFilterSet(ctx, got))

	updated, err := repo.GetFilterSet(ctx, low.ID)
	require.NoError(t, err)
	assert.False(t, updated.Enabled)
	assert.Equal(t, models.FilterList{models.NewBooleanFilter("healthy", true)}, updated.Filters)

	got.Name = "high"
	assert.True(t, pkgerrors.IsConflict(repo.UpdateFilterSet(ctx, got)))

	require.NoError(t, repo.DeleteFilterSet(ctx, low.ID))
	_, err = repo.GetFilterSet(ctx, low.ID)
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.True(t, pkgerrors.IsNotFound(repo.DeleteFilterSet(ctx, low.ID)))
}

func TestPostgresRepository(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Postgres: true})
	repo := NewRepository(infra.PostgresDB)

	exerciseRepository(t, repo)

	_, err := repo.GetFilterSet(context.Background(), "not-a-uuid")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestMongoRepository(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Mongo: true})
	exerciseRepository(t, NewMongoRepository(infra.MongoDB))
}

func TestService_VersioningWithPostgres(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Postgres: true})
	ctx := WithRequestInfo(context.Background(), RequestInfo{ChangedBy: "carol", ChangeReason: "rollout"})

	svc, err := NewService(NewRepository(infra.PostgresDB),
		WithVersioning(NewVersioningRepository(infra.PostgresDB)),
		WithLogger(logger.NopLogger()),
	)
	require.NoError(t, err)

	created, err := svc.CreateFilterSet(ctx, CreateFilterSetRequest{
		Name:    "versioned",
		Filters: models.FilterList{models.NewNumberFilter("port", 443, false)},
	})
	require.NoError(t, err)

	_, err = svc.UpdateFilterSet(ctx, created.ID, UpdateFilterSetRequest{Priority: intPtr(4)})
	require.NoError(t, err)

	versions, err := svc.GetFilterSetVersions(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
	assert.Equal(t, "carol", versions[0].ChangedBy)
	assert.Equal(t, "rollout", versions[0].ChangeReason)

	logs, err := svc.GetAuditLogs(ctx, &created.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.ActionUpdate, logs[0].Action)
	assert.Equal(t, float64(4), logs[0].NewValue["priority"])

	logs, err = svc.GetAuditLogs(ctx, nil, models.ActionCreate, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].OldValue)

	require.NoError(t, svc.DeleteFilterSet(ctx, created.ID))
	logs, err = svc.GetAuditLogs(ctx, &created.ID, models.ActionDelete, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}
