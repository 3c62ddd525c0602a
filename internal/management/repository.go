package management

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"sieve/internal/filtering"
	pkgerrors "sieve/pkg/errors"
	"sieve/pkg/metrics"
	"sieve/pkg/models"
)

const filterSetColumns = `id, name, description, filters, condition, priority, enabled, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func observe(operation string, start time.Time, err error) {
	metrics.ObserveDatabaseQuery("management", "postgres", operation, time.Since(start), err)
}

func (r *PostgresRepository) CreateFilterSet(ctx context.Context, set *models.FilterSet) (err error) {
	start := time.Now()
	defer func() { observe("create_filter_set", start, err) }()

	if set.ID == "" {
		set.ID = uuid.New().String()
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	set.CreatedAt = now
	set.UpdatedAt = now

	filters, err := encodeFilters(set.Filters)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO filter_sets (` + filterSetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		set.ID, set.Name, set.Description, filters, set.Condition,
		set.Priority, set.Enabled, set.CreatedAt, set.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return duplicateNameError(set.Name, err)
		}
		return fmt.Errorf("failed to create filter set: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetFilterSet(ctx context.Context, id string) (set *models.FilterSet, err error) {
	start := time.Now()
	defer func() { observe("get_filter_set", start, err) }()

	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}

	query := `SELECT ` + filterSetColumns + ` FROM filter_sets WHERE id = $1`

	set, err = filtering.ScanFilterSet(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get filter set: %w", err)
	}

	return set, nil
}

func (r *PostgresRepository) ListFilterSets(ctx context.Context) (sets []models.FilterSet, err error) {
	start := time.Now()
	defer func() { observe("list_filter_sets", start, err) }()

	query := `SELECT ` + filterSetColumns + ` FROM filter_sets ORDER BY priority DESC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list filter sets: %w", err)
	}
	defer rows.Close()

	sets = make([]models.FilterSet, 0)
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		set, err := filtering.ScanFilterSet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan filter set: %w", err)
		}
		sets = append(sets, *set)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return sets, nil
}

func (r *PostgresRepository) UpdateFilterSet(ctx context.Context, set *models.FilterSet) (err error) {
	start := time.Now()
	defer func() { observe("update_filter_set", start, err) }()

	set.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

	filters, err := encodeFilters(set.Filters)
	if err != nil {
		return err
	}

	query := `
		UPDATE filter_sets
		SET name = $1, description = $2, filters = $3, condition = $4, priority = $5, enabled = $6, updated_at = $7
		WHERE id = $8
	`

	res, err := r.db.ExecContext(ctx, query,
		set.Name, set.Description, filters, set.Condition,
		set.Priority, set.Enabled, set.UpdatedAt, set.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return duplicateNameError(set.Name, err)
		}
		return fmt.Errorf("failed to update filter set: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.ErrNotFound.WithDetail("id", set.ID)
	}

	return nil
}

func (r *PostgresRepository) DeleteFilterSet(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { observe("delete_filter_set", start, err) }()

	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return pkgerrors.ErrNotFound.WithDetail("id", id)
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM filter_sets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete filter set: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.ErrNotFound.WithDetail("id", id)
	}

	return nil
}

// encodeFilters returns the JSONB text for a filter list; nil becomes [].
func encodeFilters(list models.FilterList) (string, error) {
	if list == nil {
		list = models.FilterList{}
	}
	data, err := list.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("failed to encode filters: %w", err)
	}
	return string(data), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint")
}

func duplicateNameError(name string, cause error) error {
	return pkgerrors.ErrConflict.WithCause(cause).WithDetail("message", fmt.Sprintf("filter set with name '%s' already exists", name))
}
