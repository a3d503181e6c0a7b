package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	_ "modernc.org/sqlite"

	"github.com/ratewriter/ratewriter/pkg/types"
)

const sqliteDriverName = "sqlite"

const schemaSiteConfigs = `
CREATE TABLE IF NOT EXISTS site_configs (
    site_id TEXT PRIMARY KEY,
    json TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaPushHistory = `
CREATE TABLE IF NOT EXISTS push_history (
    id TEXT PRIMARY KEY,
    site_id TEXT NOT NULL,
    json TEXT NOT NULL,
    finished_at TIMESTAMP NOT NULL
);
`

const schemaPushHistoryIndex = `
CREATE INDEX IF NOT EXISTS push_history_site_finished
    ON push_history (site_id, finished_at);
`

const (
	upsertSiteConfigSQL = `
		INSERT INTO site_configs (site_id, json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(site_id) DO UPDATE SET
			json=excluded.json,
			updated_at=excluded.updated_at
	`

	selectSiteConfigSQL = `SELECT json FROM site_configs WHERE site_id=?`

	listSiteIDsSQL = `SELECT site_id FROM site_configs ORDER BY site_id`

	deleteSiteConfigSQL = `DELETE FROM site_configs WHERE site_id=?`

	insertPushResultSQL = `
		INSERT INTO push_history (id, site_id, json, finished_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			site_id=excluded.site_id,
			json=excluded.json,
			finished_at=excluded.finished_at
	`

	selectLastPushResultSQL = `
		SELECT json FROM push_history
		WHERE site_id=?
		ORDER BY finished_at DESC, rowid DESC
		LIMIT 1
	`
)

// SQLiteProvider implements the Database interface on a local SQLite file.
// It suits single-node deployments that need durability without a cloud
// dependency.
type SQLiteProvider struct {
	db   *sql.DB
	path string
}

// configuredSQLite sets up the SQLite provider.
// It registers flags for configuration.
func configuredSQLite() *SQLiteProvider {
	path := lflag.String("sqlite-path", "", "Path to the SQLite database file")

	s := &SQLiteProvider{}

	lflag.Do(func() {
		s.path = *path
	})

	return s
}

// Validate checks if the provider is properly configured.
func (s *SQLiteProvider) Validate() error {
	if s.path == "" {
		return errors.New("sqlite-path is required")
	}
	return nil
}

// Init opens or creates the database file and ensures tables exist.
// This must be called before using the provider methods.
func (s *SQLiteProvider) Init(ctx context.Context) error {
	db, err := sql.Open(sqliteDriverName, s.path)
	if err != nil {
		return fmt.Errorf("open sqlite at %q: %w", s.path, err)
	}

	// SQLite allows a single writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return fmt.Errorf("set PRAGMA journal_mode=WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return fmt.Errorf("set PRAGMA foreign_keys=ON: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return fmt.Errorf("set PRAGMA busy_timeout=5000: %w", err)
	}

	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping sqlite: %w", err)
	}

	s.db = db
	return nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		// Rollback is a no-op once the transaction has committed.
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaSiteConfigs,
		schemaPushHistory,
		schemaPushHistoryIndex,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteProvider) UpsertSiteConfig(ctx context.Context, site types.SiteConfig) error {
	if site.SiteID == "" {
		return fmt.Errorf("siteID cannot be empty")
	}
	jsonBytes, err := json.Marshal(site)
	if err != nil {
		return fmt.Errorf("failed to marshal site config %s: %w", site.SiteID, err)
	}
	_, err = s.db.ExecContext(ctx, upsertSiteConfigSQL,
		site.SiteID,
		string(jsonBytes),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert site config %s: %w", site.SiteID, err)
	}
	return nil
}

func (s *SQLiteProvider) GetSiteConfig(ctx context.Context, siteID string) (types.SiteConfig, error) {
	row := s.db.QueryRowContext(ctx, selectSiteConfigSQL, siteID)

	var jsonStr string
	if err := row.Scan(&jsonStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.SiteConfig{}, fmt.Errorf("%w: site %s", ErrNotFound, siteID)
		}
		return types.SiteConfig{}, fmt.Errorf("failed to get site config %s: %w", siteID, err)
	}

	var site types.SiteConfig
	if err := json.Unmarshal([]byte(jsonStr), &site); err != nil {
		return types.SiteConfig{}, fmt.Errorf("failed to unmarshal site config %s: %w", siteID, err)
	}
	return site, nil
}

func (s *SQLiteProvider) ListSiteIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, listSiteIDsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list site IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan site ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating site IDs: %w", err)
	}
	return ids, nil
}

func (s *SQLiteProvider) DeleteSiteConfig(ctx context.Context, siteID string) error {
	if _, err := s.db.ExecContext(ctx, deleteSiteConfigSQL, siteID); err != nil {
		return fmt.Errorf("failed to delete site config %s: %w", siteID, err)
	}
	return nil
}

func (s *SQLiteProvider) RecordPushResult(ctx context.Context, siteID string, res types.PushResult) error {
	if siteID == "" {
		return fmt.Errorf("siteID cannot be empty")
	}
	jsonBytes, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal push result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, insertPushResultSQL,
		res.ID,
		siteID,
		string(jsonBytes),
		res.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record push result: %w", err)
	}
	return nil
}

func (s *SQLiteProvider) GetLastPushResult(ctx context.Context, siteID string) (types.PushResult, error) {
	row := s.db.QueryRowContext(ctx, selectLastPushResultSQL, siteID)

	var jsonStr string
	if err := row.Scan(&jsonStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.PushResult{}, fmt.Errorf("%w: no push results for site %s", ErrNotFound, siteID)
		}
		return types.PushResult{}, fmt.Errorf("failed to get latest push result: %w", err)
	}

	var res types.PushResult
	if err := json.Unmarshal([]byte(jsonStr), &res); err != nil {
		return types.PushResult{}, fmt.Errorf("failed to unmarshal push result: %w", err)
	}
	return res, nil
}
