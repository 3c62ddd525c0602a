package filtering

import (
	"context"

	"sieve/internal/config"
	"sieve/pkg/circuitbreaker"
	"sieve/pkg/models"
)

type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Wrapper
}

// NewCircuitBreakerRepository wraps repo in a breaker named name. A disabled
// config yields a pass-through.
func NewCircuitBreakerRepository(name string, repo Repository, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	if !cfg.Enabled {
		return &CircuitBreakerRepository{repo: repo}
	}

	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.NewWrapper(circuitbreaker.FromConfig(name, cfg)),
	}
}

func (r *CircuitBreakerRepository) GetActiveFilterSets(ctx context.Context) ([]models.FilterSet, error) {
	if r.cb == nil {
		return r.repo.GetActiveFilterSets(ctx)
	}

	return circuitbreaker.Execute(ctx, r.cb, func() ([]models.FilterSet, error) {
		return r.repo.GetActiveFilterSets(ctx)
	})
}

func (r *CircuitBreakerRepository) State() string {
	if r.cb == nil {
		return "disabled"
	}
	return r.cb.State().String()
}

func (r *CircuitBreakerRepository) IsOpen() bool {
	if r.cb == nil {
		return false
	}
	return r.cb.IsOpen()
}
