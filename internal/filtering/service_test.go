package filtering

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sieve/internal/config"
	"sieve/internal/constants"
	"sieve/internal/logger"
	"sieve/pkg/models"
)

type fakeRepository struct {
	sets  []models.FilterSet
	err   error
	calls atomic.Int32
}

func (r *fakeRepository) GetActiveFilterSets(ctx context.Context) ([]models.FilterSet, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return r.sets, nil
}

func newTestService(t *testing.T, repo Repository, onError string) *Service {
	t.Helper()
	svc, err := NewService(repo, config.FilteringConfig{
		Fallback: config.FallbackConfig{OnError: onError},
		Reload:   config.ReloadConfig{IntervalSeconds: 60},
	}, logger.NopLogger())
	require.NoError(t, err)
	return svc
}

func filterSet(id string, priority int, condition string, filters ...models.FilterData) models.FilterSet {
	return models.FilterSet{
		ID:        id,
		Name:      "set-" + id,
		Filters:   models.FilterList(filters),
		Condition: condition,
		Priority:  priority,
		Enabled:   true,
	}
}

func message(payload map[string]interface{}) models.MessageEnvelope {
	return models.MessageEnvelope{ID: "msg-1", Source: "test", Timestamp: time.Now(), Payload: payload}
}

func TestService_Filter_NoSetsPasses(t *testing.T) {
	svc := newTestService(t, &fakeRepository{}, constants.FallbackAllow)
	require.NoError(t, svc.ReloadFilterSets(context.Background(), true))

	passed, applied, err := svc.Filter(context.Background(), message(map[string]interface{}{"a": 1}))
	require.NoError(t, err)
	assert.True(t, passed)
	assert.Empty(t, applied)
}

func TestService_Filter(t *testing.T) {
	repo := &fakeRepository{sets: []models.FilterSet{
		filterSet("env", 10, "", models.NewStringFilter("env", "prod", false)),
		filterSet("cpu", 5, "", models.NewMetricFilter("cpu", 50, models.ComparisonMore)),
	}}
	svc := newTestService(t, repo, constants.FallbackAllow)
	require.NoError(t, svc.ReloadFilterSets(context.Background(), true))

	tests := []struct {
		name        string
		payload     map[string]interface{}
		wantPassed  bool
		wantApplied []string
	}{
		{
			name:        "all sets match",
			payload:     map[string]interface{}{"env": "production", "metrics": map[string]interface{}{"cpu": 90.0}},
			wantPassed:  true,
			wantApplied: []string{"env", "cpu"},
		},
		{
			name:        "second set rejects",
			payload:     map[string]interface{}{"env": "production", "metrics": map[string]interface{}{"cpu": 10.0}},
			wantPassed:  false,
			wantApplied: []string{"env"},
		},
		{
			name:        "first set rejects and stops",
			payload:     map[string]interface{}{"env": "staging", "metrics": map[string]interface{}{"cpu": 90.0}},
			wantPassed:  false,
			wantApplied: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passed, applied, err := svc.Filter(context.Background(), message(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.wantPassed, passed)
			assert.Equal(t, tt.wantApplied, applied)
		})
	}
}

func TestService_Filter_EvaluationErrorFallback(t *testing.T) {
	// payload.missing fails at evaluation time with "no such key".
	sets := []models.FilterSet{
		filterSet("broken", 10, "payload.missing == 1"),
		filterSet("ok", 5, "", models.NewBooleanFilter("healthy", true)),
	}
	msg := message(map[string]interface{}{"healthy": true})

	t.Run("allow skips the failing set", func(t *testing.T) {
		svc := newTestService(t, &fakeRepository{sets: sets}, constants.FallbackAllow)
		require.NoError(t, svc.ReloadFilterSets(context.Background(), true))

		passed, applied, err := svc.Filter(context.Background(), msg)
		require.NoError(t, err)
		assert.True(t, passed)
		assert.Equal(t, []string{"ok"}, applied)
	})

	t.Run("deny rejects the message", func(t *testing.T) {
		svc := newTestService(t, &fakeRepository{sets: sets}, constants.FallbackDeny)
		require.NoError(t, svc.ReloadFilterSets(context.Background(), true))

		passed, applied, err := svc.Filter(context.Background(), msg)
		require.NoError(t, err)
		assert.False(t, passed)
		assert.Empty(t, applied)
	})

	t.Run("error surfaces the failure", func(t *testing.T) {
		svc := newTestService(t, &fakeRepository{sets: sets}, constants.FallbackError)
		require.NoError(t, svc.ReloadFilterSets(context.Background(), true))

		passed, _, err := svc.Filter(context.Background(), msg)
		require.Error(t, err)
		assert.False(t, passed)
		assert.Contains(t, err.Error(), "broken")
	})
}

func TestService_Reload_SkipsUncompilableAndDisabledSets(t *testing.T) {
	disabled := filterSet("disabled", 1, "")
	disabled.Enabled = false

	repo := &fakeRepository{sets: []models.FilterSet{
		filterSet("good", 10, ""),
		filterSet("bad-condition", 9, "payload.x +"),
		filterSet("non-bool", 8, "1 + 1"),
		disabled,
	}}
	svc := newTestService(t, repo, constants.FallbackAllow)

	require.NoError(t, svc.ReloadFilterSets(context.Background(), true))
	assert.Equal(t, []string{"good"}, svc.ActiveFilterSetIDs())
}

func TestService_Reload_KeepsPreviousSetsOnError(t *testing.T) {
	repo := &fakeRepository{sets: []models.FilterSet{filterSet("a", 1, "")}}
	svc := newTestService(t, repo, constants.FallbackAllow)
	require.NoError(t, svc.ReloadFilterSets(context.Background(), true))

	repo.err = errors.New("db down")
	err := svc.ReloadFilterSets(context.Background(), true)
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, svc.ActiveFilterSetIDs())
}

func TestService_Reload_JitterHonorsCancellation(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo, config.FilteringConfig{
		Reload: config.ReloadConfig{IntervalSeconds: 60, JitterMaxMilliseconds: 60_000},
	}, logger.NopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = svc.ReloadFilterSets(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, repo.calls.Load())
}

func TestService_StartReloader_LoadsImmediately(t *testing.T) {
	repo := &fakeRepository{sets: []models.FilterSet{filterSet("a", 1, "")}}
	svc := newTestService(t, repo, constants.FallbackAllow)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.StartReloader(ctx) }()

	require.Eventually(t, func() bool { return repo.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reloader did not stop")
	}
	assert.Equal(t, []string{"a"}, svc.ActiveFilterSetIDs())
}

func TestService_Filter_ContextCancelled(t *testing.T) {
	repo := &fakeRepository{sets: []models.FilterSet{filterSet("a", 1, "")}}
	svc := newTestService(t, repo, constants.FallbackAllow)
	require.NoError(t, svc.ReloadFilterSets(context.Background(), true))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	passed, _, err := svc.Filter(ctx, message(nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, passed)
}

// gatedRepository blocks its first read until release is closed and serves
// the older snapshot from it; later reads return the newer snapshot at once.
type gatedRepository struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	older   []models.FilterSet
	newer   []models.FilterSet
}

func (r *gatedRepository) GetActiveFilterSets(ctx context.Context) ([]models.FilterSet, error) {
	if r.calls.Add(1) == 1 {
		close(r.entered)
		<-r.release
		return r.older, nil
	}
	return r.newer, nil
}

func TestService_ReloadSlowOlderReadDoesNotOverwriteNewer(t *testing.T) {
	repo := &gatedRepository{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		older:   []models.FilterSet{filterSet("old", 1, "")},
		newer:   []models.FilterSet{filterSet("new", 1, "")},
	}
	svc := newTestService(t, repo, constants.FallbackError)

	slow := make(chan error, 1)
	go func() { slow <- svc.ReloadFilterSets(context.Background(), true) }()
	<-repo.entered

	require.NoError(t, svc.ReloadFilterSets(context.Background(), true))
	assert.Equal(t, []string{"new"}, svc.ActiveFilterSetIDs())

	close(repo.release)
	require.NoError(t, <-slow)
	assert.Equal(t, []string{"new"}, svc.ActiveFilterSetIDs())
}
