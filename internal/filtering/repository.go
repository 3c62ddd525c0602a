package filtering

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sieve/internal/logger"
	"sieve/pkg/metrics"
	"sieve/pkg/models"
)

// ErrInvalidFilters marks a stored filter set whose filters column does not
// decode into a filter list.
var ErrInvalidFilters = errors.New("invalid stored filters")

type Repository interface {
	GetActiveFilterSets(ctx context.Context) ([]models.FilterSet, error)
}

type PostgresRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewRepository(db *sql.DB, log logger.Logger) Repository {
	return &PostgresRepository{db: db, logger: log}
}

func (r *PostgresRepository) GetActiveFilterSets(ctx context.Context) (sets []models.FilterSet, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveDatabaseQuery("filtering", "postgres", "get_active_filter_sets", time.Since(start), err)
	}()

	query := `
		SELECT id, name, description, filters, condition, priority, enabled, created_at, updated_at
		FROM filter_sets
		WHERE enabled = true
		ORDER BY priority DESC, created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query filter sets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		set, err := ScanFilterSet(rows)
		if skipInvalidFilters(ctx, r.logger, err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sets = append(sets, *set)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return sets, nil
}

// skipInvalidFilters reports whether err is a per-row decode failure that the
// active set listing drops instead of failing the whole read.
func skipInvalidFilters(ctx context.Context, log logger.Logger, err error) bool {
	if !errors.Is(err, ErrInvalidFilters) {
		return false
	}
	metrics.FilteringCompileFailuresTotal.Inc()
	log.ErrorwCtx(ctx, "Skipping filter set with undecodable filters", "error", err)
	return true
}

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...interface{}) error
}

// ScanFilterSet reads the column order
// id, name, description, filters, condition, priority, enabled, created_at, updated_at.
func ScanFilterSet(row RowScanner) (*models.FilterSet, error) {
	var (
		set         models.FilterSet
		description sql.NullString
		condition   sql.NullString
		filters     []byte
	)

	if err := row.Scan(
		&set.ID,
		&set.Name,
		&description,
		&filters,
		&condition,
		&set.Priority,
		&set.Enabled,
		&set.CreatedAt,
		&set.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := set.Filters.UnmarshalJSON(filters); err != nil {
		return nil, fmt.Errorf("filter set %s: %w: %w", set.ID, ErrInvalidFilters, err)
	}
	set.Description = description.String
	set.Condition = condition.String

	return &set, nil
}
