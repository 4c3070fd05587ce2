// database/datasource_store.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gewnthar/bondstats/models"
	"github.com/rs/zerolog"
)

// Schema creates the table VersionStore writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS data_source_versions (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	category VARCHAR(32) NOT NULL,
	source_url VARCHAR(768) NOT NULL,
	local_key VARCHAR(128) NOT NULL,
	period DATE NULL,
	rows_read INT NOT NULL DEFAULT 0,
	data_hash CHAR(64) NULL,
	last_ingested_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	UNIQUE KEY uq_source_url (source_url)
)`

// VersionStore records which documents were ingested, from where and when.
type VersionStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewVersionStore(db *sql.DB, logger zerolog.Logger) *VersionStore {
	return &VersionStore{db: db, logger: logger.With().Str("component", "VersionStore").Logger()}
}

// EnsureSchema creates data_source_versions if it does not exist.
func (s *VersionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create data_source_versions: %w", err)
	}
	return nil
}

func (s *VersionStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LogDocumentVersion inserts v or, if its source URL is already known,
// updates the existing row.
func (s *VersionStore) LogDocumentVersion(ctx context.Context, v models.DataSourceVersion) error {
	var period sql.NullTime
	if v.Period != nil {
		period = sql.NullTime{Time: *v.Period, Valid: true}
	}
	var dataHash sql.NullString
	if v.DataHash != "" {
		dataHash = sql.NullString{String: v.DataHash, Valid: true}
	}

	query := `
		INSERT INTO data_source_versions (
			category, source_url, local_key, period, rows_read, data_hash, last_ingested_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE
			category = VALUES(category),
			local_key = VALUES(local_key),
			period = VALUES(period),
			rows_read = VALUES(rows_read),
			data_hash = VALUES(data_hash),
			last_ingested_at = VALUES(last_ingested_at),
			updated_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query,
		v.Category, v.SourceURL, v.LocalKey, period, v.RowsRead, dataHash, v.LastIngestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to log document version for %s: %w", v.SourceURL, err)
	}

	s.logger.Debug().Str("category", v.Category).Str("url", v.SourceURL).Int("rows", v.RowsRead).Msg("Logged document version")
	return nil
}

// ListDocumentVersions returns every logged document ordered by category, then URL.
func (s *VersionStore) ListDocumentVersions(ctx context.Context) ([]models.DataSourceVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, source_url, local_key, period, rows_read,
		       data_hash, last_ingested_at, created_at, updated_at
		FROM data_source_versions
		ORDER BY category, source_url
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query data_source_versions: %w", err)
	}
	defer rows.Close()

	var versions []models.DataSourceVersion
	for rows.Next() {
		var (
			v        models.DataSourceVersion
			period   sql.NullTime
			dataHash sql.NullString
		)
		if err := rows.Scan(
			&v.ID, &v.Category, &v.SourceURL, &v.LocalKey, &period, &v.RowsRead,
			&dataHash, &v.LastIngestedAt, &v.CreatedAt, &v.UpdatedAt,
		); err != nil {
			s.logger.Error().Err(err).Msg("Failed to scan data_source_versions row")
			continue
		}
		if period.Valid {
			p := period.Time
			v.Period = &p
		}
		v.DataHash = dataHash.String
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data_source_versions rows: %w", err)
	}
	return versions, nil
}
