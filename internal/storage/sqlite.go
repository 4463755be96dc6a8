package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Storage keeps the history of inspected bundles.
type Storage struct {
	db *sql.DB
}

// Report is one stored inspection run.
type Report struct {
	ID            int64
	ReportID      string
	CreatedAt     time.Time
	Source        string // bundle path or directory the run read
	FileCount     int
	InfoCount     int
	WarnCount     int
	ErrorCount    int
	FailedFiles   []string
	DurationMs    int64
	TriageStatus  string // empty when triage did not run
	TriageSummary string
	Findings      []Finding // written by SaveReport; loaded by GetReportFindings
}

// Finding is one stored finding of a report.
type Finding struct {
	Filename string
	Kind     string
	Severity string // "info", "warn" or "error"
	Position int    // order within the file's report
	Message  string
}

// Database configuration constants
const (
	// busyTimeoutMs is how long SQLite waits when database is locked (5 seconds)
	busyTimeoutMs = 5000
	// maxOpenConns limits concurrent connections (SQLite works best with 1)
	maxOpenConns = 1
	// maxIdleConns is the number of idle connections to keep
	maxIdleConns = 1
	// connMaxLifetime is how long a connection can be reused
	connMaxLifetime = 30 * time.Minute
)

// New opens (and migrates) the report database at dbPath.
func New(dbPath string) (*Storage, error) {
	// 0700: owner only
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d", dbPath, busyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// currentSchemaVersion is the latest schema version.
// Increment this when adding new migrations.
const currentSchemaVersion = 2

// initSchema creates the database schema if it doesn't exist
func (s *Storage) initSchema() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	version := s.getSchemaVersion()

	if err := s.migrateSchema(version); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	return nil
}

// getSchemaVersion returns the current schema version (0 if not set)
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

// setSchemaVersion updates the schema version
func (s *Storage) setSchemaVersion(version int) error {
	if _, err := s.db.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
		return err
	}
	return nil
}

// migrateSchema runs migrations from currentVersion to latest
func (s *Storage) migrateSchema(currentVersion int) error {
	if currentVersion >= currentSchemaVersion {
		return nil
	}

	log.Printf("storage: migrating schema from version %d to %d", currentVersion, currentSchemaVersion)

	// 0 -> 1: reports and findings tables
	if currentVersion < 1 {
		if err := s.migrateV1(); err != nil {
			return fmt.Errorf("migration v1 failed: %w", err)
		}
	}

	// 1 -> 2: bundle source and triage columns
	if currentVersion < 2 {
		if err := s.migrateV2(); err != nil {
			return fmt.Errorf("migration v2 failed: %w", err)
		}
	}

	if err := s.setSchemaVersion(currentSchemaVersion); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	log.Printf("storage: schema migration completed successfully (now at version %d)", currentSchemaVersion)
	return nil
}

// migrateV1 creates the base reports and findings tables
func (s *Storage) migrateV1() error {
	log.Printf("storage: running migration v1 - create base tables")

	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_id TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		file_count INTEGER NOT NULL DEFAULT 0,
		info_count INTEGER NOT NULL DEFAULT 0,
		warn_count INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		failed_files TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);

	CREATE TABLE IF NOT EXISTS findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_id TEXT NOT NULL REFERENCES reports(report_id) ON DELETE CASCADE,
		filename TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL,
		position INTEGER NOT NULL,
		message TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_findings_report ON findings(report_id);
	CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings(severity);
	`

	_, err := s.db.Exec(schema)
	return err
}

// migrateV2 adds the bundle source and AI triage columns
func (s *Storage) migrateV2() error {
	log.Printf("storage: running migration v2 - add source and triage columns")

	// Databases created by hand may already have the columns
	hasSource, err := s.hasColumn("reports", "source")
	if err != nil {
		return err
	}

	if !hasSource {
		for _, stmt := range []string{
			`ALTER TABLE reports ADD COLUMN source TEXT NOT NULL DEFAULT ''`,
			`ALTER TABLE reports ADD COLUMN triage_status TEXT NOT NULL DEFAULT ''`,
			`ALTER TABLE reports ADD COLUMN triage_summary TEXT NOT NULL DEFAULT ''`,
		} {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("failed to add column: %w", err)
			}
		}
	}

	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_reports_triage ON reports(triage_status)`); err != nil {
		return fmt.Errorf("failed to create triage index: %w", err)
	}

	return nil
}

// hasColumn reports whether table already has column.
func (s *Storage) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to get table info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("failed to scan column info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// SaveReport stores a report and its findings in one transaction.
func (s *Storage) SaveReport(report *Report) error {
	failedJSON, err := json.Marshal(report.FailedFiles)
	if err != nil {
		return fmt.Errorf("failed to marshal failed files: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.Exec(`
		INSERT INTO reports (
			report_id, created_at, source, file_count,
			info_count, warn_count, error_count, failed_files, duration_ms,
			triage_status, triage_summary
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.ReportID,
		report.CreatedAt.UTC().Format(time.RFC3339),
		report.Source,
		report.FileCount,
		report.InfoCount,
		report.WarnCount,
		report.ErrorCount,
		string(failedJSON),
		report.DurationMs,
		report.TriageStatus,
		report.TriageSummary,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO findings (report_id, filename, kind, severity, position, message)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare finding insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, f := range report.Findings {
		if _, err := stmt.Exec(report.ReportID, f.Filename, f.Kind, f.Severity, f.Position, f.Message); err != nil {
			return fmt.Errorf("failed to insert finding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	report.ID = id
	return nil
}

// GetRecentReports returns reports from the last N days, newest first.
// Findings are not loaded.
func (s *Storage) GetRecentReports(days int) ([]*Report, error) {
	cutoffDate := time.Now().AddDate(0, 0, -days).UTC().Format(time.RFC3339)

	rows, err := s.db.Query(`
		SELECT id, report_id, created_at, source, file_count,
		       info_count, warn_count, error_count, failed_files, duration_ms,
		       triage_status, triage_summary
		FROM reports
		WHERE created_at >= ?
		ORDER BY created_at DESC, id DESC
	`, cutoffDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			log.Printf("storage: failed to close database rows: %v", err)
		}
	}(rows)

	var reports []*Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	return reports, rows.Err()
}

// GetReportFindings returns the stored findings of one report ordered by
// file (in insertion order) and position.
func (s *Storage) GetReportFindings(reportID string) ([]Finding, error) {
	rows, err := s.db.Query(`
		SELECT filename, kind, severity, position, message
		FROM findings
		WHERE report_id = ?
		ORDER BY id
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			log.Printf("storage: failed to close database rows: %v", err)
		}
	}(rows)

	var findings []Finding
	for rows.Next() {
		var f Finding
		if err := rows.Scan(&f.Filename, &f.Kind, &f.Severity, &f.Position, &f.Message); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// CleanupOldReports deletes reports (and their findings) older than N days.
func (s *Storage) CleanupOldReports(days int) (int64, error) {
	cutoffDate := time.Now().AddDate(0, 0, -days).UTC().Format(time.RFC3339)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		DELETE FROM findings WHERE report_id IN (
			SELECT report_id FROM reports WHERE created_at < ?
		)
	`, cutoffDate); err != nil {
		return 0, fmt.Errorf("failed to cleanup old findings: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM reports WHERE created_at < ?`, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old reports: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cleanup: %w", err)
	}
	return affected, nil
}

// Statistics summarises the stored history.
type Statistics struct {
	TotalReports         int
	ReportsWithErrors    int
	FindingsBySeverity   map[string]int
	TopErrorFiles        map[string]int // filename -> error findings, top 5
	TriageStatusCounters map[string]int
}

// GetStatistics returns aggregate counts over all stored reports.
func (s *Storage) GetStatistics() (*Statistics, error) {
	stats := &Statistics{
		FindingsBySeverity:   make(map[string]int),
		TopErrorFiles:        make(map[string]int),
		TriageStatusCounters: make(map[string]int),
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM reports`).Scan(&stats.TotalReports); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM reports WHERE error_count > 0`).Scan(&stats.ReportsWithErrors); err != nil {
		return nil, err
	}

	if err := s.countInto(stats.FindingsBySeverity,
		`SELECT severity, COUNT(*) FROM findings GROUP BY severity`); err != nil {
		return nil, err
	}
	if err := s.countInto(stats.TopErrorFiles, `
		SELECT filename, COUNT(*) AS n FROM findings
		WHERE severity = 'error'
		GROUP BY filename
		ORDER BY n DESC, filename
		LIMIT 5
	`); err != nil {
		return nil, err
	}
	if err := s.countInto(stats.TriageStatusCounters,
		`SELECT triage_status, COUNT(*) FROM reports WHERE triage_status != '' GROUP BY triage_status`); err != nil {
		return nil, err
	}

	return stats, nil
}

// countInto runs a two-column (key, count) query into dst.
func (s *Storage) countInto(dst map[string]int, query string) error {
	rows, err := s.db.Query(query)
	if err != nil {
		return err
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			log.Printf("storage: failed to close database rows: %v", err)
		}
	}(rows)

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		dst[key] = count
	}
	return rows.Err()
}

// scanReport scans a database row into a Report
func scanReport(rows *sql.Rows) (*Report, error) {
	var (
		r          Report
		createdAt  string
		failedJSON sql.NullString
	)

	err := rows.Scan(
		&r.ID, &r.ReportID, &createdAt, &r.Source, &r.FileCount,
		&r.InfoCount, &r.WarnCount, &r.ErrorCount, &failedJSON, &r.DurationMs,
		&r.TriageStatus, &r.TriageSummary,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	r.CreatedAt = ts

	if failedJSON.Valid && failedJSON.String != "" {
		if err := json.Unmarshal([]byte(failedJSON.String), &r.FailedFiles); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failed files: %w", err)
		}
	}

	return &r, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
