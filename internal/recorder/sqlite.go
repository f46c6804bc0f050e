package recorder

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists refresh cycles to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *logrus.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *logrus.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode lets dashboards read while the service writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.WithField("path", dbPath).Info("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS refresh_cycles (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			generation    INTEGER NOT NULL,
			full_refresh  INTEGER NOT NULL,
			started_at    INTEGER NOT NULL,
			finished_at   INTEGER NOT NULL,
			duration_ms   INTEGER,
			total_stocks  INTEGER,
			success_count INTEGER,
			fail_count    INTEGER,
			live          INTEGER,
			synthetic     INTEGER,
			provider      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_started ON refresh_cycles(started_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordCycle(rec *CycleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO refresh_cycles
		(generation, full_refresh, started_at, finished_at, duration_ms,
		 total_stocks, success_count, fail_count, live, synthetic, provider)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		rec.Generation, rec.Full, rec.StartedAt.Unix(), rec.FinishedAt.Unix(),
		rec.FinishedAt.Sub(rec.StartedAt).Milliseconds(),
		rec.TotalStocks, rec.SuccessCount, rec.FailCount,
		rec.Live, rec.Synthetic, rec.Provider,
	)
	return err
}

// CountCycles returns the number of recorded cycles.
func (r *SQLiteRecorder) CountCycles() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM refresh_cycles`).Scan(&n)
	return n, err
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}
