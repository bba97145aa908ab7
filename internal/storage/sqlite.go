// Package storage keeps an audit trail of runs and applied rules in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/winspan/blocksync/pkg/utils"
)

// RunRecord is one pipeline run as persisted.
type RunRecord struct {
	ID             int64     `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	DeniedCount    int       `json:"denied_count"`
	DevicesOK      int       `json:"devices_ok"`
	DevicesSkipped int       `json:"devices_skipped"`
	RulesApplied   int       `json:"rules_applied"`
	RuleFailures   int       `json:"rule_failures"`
	Error          string    `json:"error,omitempty"`
}

// History is the SQLite-backed run log.
type History struct {
	db *sql.DB
}

// NewHistory opens (or creates) the history database at dbPath.
func NewHistory(dbPath string) (*History, error) {
	if err := utils.EnsureDir(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("create history directory: %v", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %v", err)
	}

	// SQLite wants a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &History{db: db}, nil
}

func createTables(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			denied_count INTEGER NOT NULL,
			devices_ok INTEGER NOT NULL,
			devices_skipped INTEGER NOT NULL,
			rules_applied INTEGER NOT NULL,
			rule_failures INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS blocked_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			device TEXT NOT NULL,
			domain TEXT NOT NULL,
			created_at INTEGER DEFAULT (strftime('%s', 'now')),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("create table: %v", err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_blocked_rules_run ON blocked_rules(run_id)",
		"CREATE INDEX IF NOT EXISTS idx_blocked_rules_device ON blocked_rules(device)",
		"CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)",
	}

	for _, index := range indexes {
		if _, err := db.Exec(index); err != nil {
			return fmt.Errorf("create index: %v", err)
		}
	}

	return nil
}

// RecordRun inserts a run record and returns its id.
func (h *History) RecordRun(r RunRecord) (int64, error) {
	res, err := h.db.Exec(
		`INSERT INTO runs (started_at, finished_at, denied_count, devices_ok,
			devices_skipped, rules_applied, rule_failures, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.StartedAt.Unix(), r.FinishedAt.Unix(), r.DeniedCount, r.DevicesOK,
		r.DevicesSkipped, r.RulesApplied, r.RuleFailures, r.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("record run: %v", err)
	}
	return res.LastInsertId()
}

// RecordBlocked stores the domains newly blocked on one device in one run.
func (h *History) RecordBlocked(runID int64, device string, blocked []string) error {
	if len(blocked) == 0 {
		return nil
	}

	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %v", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		"INSERT INTO blocked_rules (run_id, device, domain) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %v", err)
	}
	defer stmt.Close()

	for _, domain := range blocked {
		if _, err := stmt.Exec(runID, device, domain); err != nil {
			return fmt.Errorf("record blocked domain: %v", err)
		}
	}

	return tx.Commit()
}

// RecentRuns returns the latest runs, newest first.
func (h *History) RecentRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.Query(
		`SELECT id, started_at, finished_at, denied_count, devices_ok,
			devices_skipped, rules_applied, rule_failures, error
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %v", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished int64
		if err := rows.Scan(&r.ID, &started, &finished, &r.DeniedCount,
			&r.DevicesOK, &r.DevicesSkipped, &r.RulesApplied, &r.RuleFailures,
			&r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %v", err)
		}
		r.StartedAt = time.Unix(started, 0)
		r.FinishedAt = time.Unix(finished, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// BlockedDomains returns the domains recorded for one run, optionally
// filtered by device (empty device means all).
func (h *History) BlockedDomains(runID int64, device string) ([]string, error) {
	query := "SELECT domain FROM blocked_rules WHERE run_id = ?"
	args := []interface{}{runID}
	if device != "" {
		query += " AND device = ?"
		args = append(args, device)
	}
	query += " ORDER BY domain"

	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query blocked domains: %v", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan blocked domain: %v", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}
