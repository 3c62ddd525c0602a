package management

import (
	"context"

	"sieve/pkg/models"
)

type Service interface {
	CreateFilterSet(ctx context.Context, req CreateFilterSetRequest) (*models.FilterSet, error)
	ListFilterSets(ctx context.Context) ([]models.FilterSet, error)
	GetFilterSet(ctx context.Context, id string) (*models.FilterSet, error)
	UpdateFilterSet(ctx context.Context, id string, req UpdateFilterSetRequest) (*models.FilterSet, error)
	DeleteFilterSet(ctx context.Context, id string) error
	GetFilterSetVersions(ctx context.Context, id string) ([]FilterSetVersion, error)
	GetAuditLogs(ctx context.Context, filterSetID *string, action string, limit int) ([]AuditLog, error)

	EvaluateFilterSet(ctx context.Context, id string, req EvaluateRequest) (*EvaluateResponse, error)
	ValidateFilters(ctx context.Context, req ValidateFiltersRequest) (*ValidateFiltersResponse, error)
}

// Repository stores filter sets. Missing IDs yield errors.ErrNotFound and
// duplicate names errors.ErrConflict.
type Repository interface {
	CreateFilterSet(ctx context.Context, set *models.FilterSet) error
	ListFilterSets(ctx context.Context) ([]models.FilterSet, error)
	GetFilterSet(ctx context.Context, id string) (*models.FilterSet, error)
	UpdateFilterSet(ctx context.Context, set *models.FilterSet) error
	DeleteFilterSet(ctx context.Context, id string) error
}
