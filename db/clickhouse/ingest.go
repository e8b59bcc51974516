package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Bookkeeping tables for the catalog update job. catalog_versions records
// every processed price-list version; catalog_files records every loaded
// file so interrupted runs can resume without re-downloading.
const (
	versionsTable = "catalog_versions"
	filesTable    = "catalog_files"
)

// EnsureBookkeeping creates the ingestion bookkeeping tables if absent.
func (s *Store) EnsureBookkeeping(ctx context.Context) error {
	ddl := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				version_id   String,
				run_id       UUID,
				processed_at DateTime
			) ENGINE = MergeTree ORDER BY version_id
		`, versionsTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				filename      String,
				url           String,
				status        String,
				size_bytes    UInt64,
				downloaded_at DateTime
			) ENGINE = MergeTree ORDER BY filename
		`, filesTable),
	}
	for _, q := range ddl {
		if err := s.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to create bookkeeping table: %w", err)
		}
	}
	return nil
}

// IsVersionProcessed reports whether a price-list version was already
// ingested.
func (s *Store) IsVersionProcessed(ctx context.Context, versionID string) (bool, error) {
	query := fmt.Sprintf(`SELECT count() FROM %s WHERE version_id = ?`, versionsTable)
	var count uint64
	if err := s.conn.QueryRow(ctx, query, versionID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check version %s: %w", versionID, err)
	}
	return count > 0, nil
}

// MarkVersionProcessed records a processed price-list version.
func (s *Store) MarkVersionProcessed(ctx context.Context, versionID string, runID uuid.UUID) error {
	query := fmt.Sprintf(`INSERT INTO %s (version_id, run_id, processed_at) VALUES (?, ?, ?)`, versionsTable)
	if err := s.conn.Exec(ctx, query, versionID, runID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record version %s: %w", versionID, err)
	}
	return nil
}

// IsFileLoaded reports whether a catalog file was already loaded
// successfully.
func (s *Store) IsFileLoaded(ctx context.Context, filename string) (bool, error) {
	query := fmt.Sprintf(`SELECT count() FROM %s WHERE filename = ? AND status = 'success'`, filesTable)
	var count uint64
	if err := s.conn.QueryRow(ctx, query, filename).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check file %s: %w", filename, err)
	}
	return count > 0, nil
}

// MarkFileLoaded records a successfully loaded catalog file.
func (s *Store) MarkFileLoaded(ctx context.Context, filename, url string, sizeBytes int64) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (filename, url, status, size_bytes, downloaded_at)
		VALUES (?, ?, 'success', ?, ?)
	`, filesTable)
	if err := s.conn.Exec(ctx, query, filename, url, uint64(sizeBytes), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record file %s: %w", filename, err)
	}
	return nil
}

// CreateCatalogTable (re)creates a versioned catalog table with one String
// column per sanitized CSV header. Recreating gives truncate-on-reload
// semantics; the table only becomes visible to readers once the latest
// view is swapped onto it.
func (s *Store) CreateCatalogTable(ctx context.Context, table string, columns []string) error {
	if !validIdentifier(table) {
		return fmt.Errorf("invalid catalog table name: %q", table)
	}
	defs := make([]string, len(columns))
	for i, c := range columns {
		if !validIdentifier(c) {
			return fmt.Errorf("invalid column name: %q", c)
		}
		defs[i] = fmt.Sprintf("`%s` String", c)
	}

	if err := s.conn.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
		return fmt.Errorf("failed to drop stale table %s: %w", table, err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE %s (%s) ENGINE = MergeTree ORDER BY tuple()`,
		table, strings.Join(defs, ", "))
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create catalog table %s: %w", table, err)
	}
	return nil
}

// LoadBatch appends one chunk of CSV records to a catalog table. Records
// must already be padded to the column count.
func (s *Store) LoadBatch(ctx context.Context, table string, columns []string, records [][]string) error {
	if len(records) == 0 {
		return nil
	}
	if !validIdentifier(table) {
		return fmt.Errorf("invalid catalog table name: %q", table)
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO %s`, table))
	if err != nil {
		return fmt.Errorf("failed to prepare batch for %s: %w", table, err)
	}
	for _, rec := range records {
		vals := make([]interface{}, len(rec))
		for i, v := range rec {
			vals[i] = v
		}
		if err := batch.Append(vals...); err != nil {
			return fmt.Errorf("failed to append to batch for %s: %w", table, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch for %s: %w", table, err)
	}
	return nil
}

// PublishLatestView points the latest view at a freshly loaded table and
// returns the table the view previously selected from, so the caller can
// drop it once the swap is visible.
func (s *Store) PublishLatestView(ctx context.Context, table, view string) (string, error) {
	if !validIdentifier(table) || !validIdentifier(view) {
		return "", fmt.Errorf("invalid table/view name: %q/%q", table, view)
	}

	old, err := s.currentViewSource(ctx, view)
	if err != nil {
		return "", err
	}

	query := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM %s`, view, table)
	if err := s.conn.Exec(ctx, query); err != nil {
		return "", fmt.Errorf("failed to publish view %s: %w", view, err)
	}
	return old, nil
}

// currentViewSource extracts the table a view currently selects from.
// Empty when the view does not exist yet.
func (s *Store) currentViewSource(ctx context.Context, view string) (string, error) {
	query := `
		SELECT as_select FROM system.tables
		WHERE database = currentDatabase() AND name = ? AND engine = 'View'
	`
	var asSelect string
	if err := s.conn.QueryRow(ctx, query, view).Scan(&asSelect); err != nil {
		// No rows means the view has never been published.
		if errors.Is(err, sql.ErrNoRows) || strings.Contains(err.Error(), "no rows") {
			return "", nil
		}
		return "", fmt.Errorf("failed to inspect view %s: %w", view, err)
	}

	// as_select looks like "SELECT * FROM db.table" or "SELECT * FROM table".
	fields := strings.Fields(asSelect)
	if len(fields) == 0 {
		return "", nil
	}
	last := fields[len(fields)-1]
	if i := strings.LastIndex(last, "."); i >= 0 {
		last = last[i+1:]
	}
	return strings.Trim(last, "`"), nil
}

// DropTable removes a superseded catalog table.
func (s *Store) DropTable(ctx context.Context, table string) error {
	if !validIdentifier(table) {
		return fmt.Errorf("invalid catalog table name: %q", table)
	}
	if err := s.conn.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	return nil
}

// VersionRecord is one processed price-list version.
type VersionRecord struct {
	VersionID   string
	RunID       uuid.UUID
	ProcessedAt time.Time
}

// FileRecord is one loaded catalog file.
type FileRecord struct {
	Filename     string
	URL          string
	Status       string
	SizeBytes    uint64
	DownloadedAt time.Time
}

// RecentVersions lists the most recently processed versions.
func (s *Store) RecentVersions(ctx context.Context, limit int) ([]VersionRecord, error) {
	query := fmt.Sprintf(`
		SELECT version_id, run_id, processed_at FROM %s
		ORDER BY processed_at DESC LIMIT %d
	`, versionsTable, limit)

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var out []VersionRecord
	for rows.Next() {
		var v VersionRecord
		if err := rows.Scan(&v.VersionID, &v.RunID, &v.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version record: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// RecentFiles lists the most recently loaded catalog files.
func (s *Store) RecentFiles(ctx context.Context, limit int) ([]FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT filename, url, status, size_bytes, downloaded_at FROM %s
		ORDER BY downloaded_at DESC LIMIT %d
	`, filesTable, limit)

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.Filename, &f.URL, &f.Status, &f.SizeBytes, &f.DownloadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file record: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
