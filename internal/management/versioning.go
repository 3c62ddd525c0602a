package management

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sieve/pkg/models"
)

// FilterSetVersion is a snapshot of a filter set taken after each change.
type FilterSetVersion struct {
	ID           string          `json:"id"`
	FilterSetID  string          `json:"filter_set_id"`
	Data         json.RawMessage `json:"data" swaggertype:"object"`
	Version      int             `json:"version"`
	ChangedBy    string          `json:"changed_by,omitempty"`
	ChangeReason string          `json:"change_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type VersioningRepository interface {
	CreateVersion(ctx context.Context, version *FilterSetVersion) error
	GetVersions(ctx context.Context, filterSetID string) ([]FilterSetVersion, error)
	GetVersion(ctx context.Context, filterSetID string, version int) (*FilterSetVersion, error)
	GetNextVersion(ctx context.Context, filterSetID string) (int, error)
	CreateAuditLog(ctx context.Context, log *AuditLog) error
	GetAuditLogs(ctx context.Context, filterSetID *string, action string, limit int) ([]AuditLog, error)
}

type postgresVersioningRepository struct {
	db *sql.DB
}

func NewVersioningRepository(db *sql.DB) VersioningRepository {
	return &postgresVersioningRepository{db: db}
}

func (r *postgresVersioningRepository) CreateVersion(ctx context.Context, version *FilterSetVersion) error {
	if version.ID == "" {
		version.ID = uuid.New().String()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO filter_set_versions (id, filter_set_id, data, version, changed_by, change_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		version.ID, version.FilterSetID, string(version.Data),
		version.Version, version.ChangedBy, version.ChangeReason, version.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create filter set version: %w", err)
	}

	return nil
}

func (r *postgresVersioningRepository) GetVersions(ctx context.Context, filterSetID string) ([]FilterSetVersion, error) {
	query := `
		SELECT id, filter_set_id, data, version, changed_by, change_reason, created_at
		FROM filter_set_versions
		WHERE filter_set_id = $1
		ORDER BY version DESC
	`

	rows, err := r.db.QueryContext(ctx, query, filterSetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	versions := make([]FilterSetVersion, 0)
	for rows.Next() {
		var v FilterSetVersion
		if err := rows.Scan(
			&v.ID, &v.FilterSetID, &v.Data,
			&v.Version, &v.ChangedBy, &v.ChangeReason, &v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}

	return versions, rows.Err()
}

func (r *postgresVersioningRepository) GetVersion(ctx context.Context, filterSetID string, version int) (*FilterSetVersion, error) {
	query := `
		SELECT id, filter_set_id, data, version, changed_by, change_reason, created_at
		FROM filter_set_versions
		WHERE filter_set_id = $1 AND version = $2
	`

	var v FilterSetVersion
	err := r.db.QueryRowContext(ctx, query, filterSetID, version).Scan(
		&v.ID, &v.FilterSetID, &v.Data,
		&v.Version, &v.ChangedBy, &v.ChangeReason, &v.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	return &v, nil
}

func (r *postgresVersioningRepository) GetNextVersion(ctx context.Context, filterSetID string) (int, error) {
	query := `SELECT COALESCE(MAX(version), 0) + 1 FROM filter_set_versions WHERE filter_set_id = $1`

	var version int
	if err := r.db.QueryRowContext(ctx, query, filterSetID).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get next version: %w", err)
	}

	return version, nil
}

func (r *postgresVersioningRepository) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}

	oldValue, err := nullableJSON(log.OldValue)
	if err != nil {
		return fmt.Errorf("failed to marshal old value: %w", err)
	}
	newValue, err := nullableJSON(log.NewValue)
	if err != nil {
		return fmt.Errorf("failed to marshal new value: %w", err)
	}

	query := `
		INSERT INTO filter_set_audit_logs (id, filter_set_id, action, old_value, new_value, changed_by, change_reason, ip_address, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		log.ID, log.FilterSetID, log.Action,
		oldValue, newValue, log.ChangedBy, log.ChangeReason, log.IPAddress, log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	return nil
}

func (r *postgresVersioningRepository) GetAuditLogs(ctx context.Context, filterSetID *string, action string, limit int) ([]AuditLog, error) {
	query := `
		SELECT id, filter_set_id, action, old_value, new_value, changed_by, change_reason, ip_address, timestamp
		FROM filter_set_audit_logs
		WHERE ($1::uuid IS NULL OR filter_set_id = $1::uuid)
		  AND ($2 = '' OR action = $2)
		ORDER BY timestamp DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, filterSetID, action, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]AuditLog, 0)
	for rows.Next() {
		var (
			log                    AuditLog
			setID                  sql.NullString
			oldValueJSON, newValue []byte
		)

		if err := rows.Scan(
			&log.ID, &setID, &log.Action,
			&oldValueJSON, &newValue, &log.ChangedBy, &log.ChangeReason, &log.IPAddress, &log.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		if setID.Valid {
			log.FilterSetID = &setID.String
		}
		if len(oldValueJSON) > 0 {
			if err := json.Unmarshal(oldValueJSON, &log.OldValue); err != nil {
				return nil, fmt.Errorf("failed to unmarshal old value: %w", err)
			}
		}
		if len(newValue) > 0 {
			if err := json.Unmarshal(newValue, &log.NewValue); err != nil {
				return nil, fmt.Errorf("failed to unmarshal new value: %w", err)
			}
		}

		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// snapshot is the JSON stored for versions and audit values.
func snapshot(set *models.FilterSet) (json.RawMessage, error) {
	data, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal filter set: %w", err)
	}
	return data, nil
}

func nullableJSON(v map[string]interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
