package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const dbFileName = "team_pulse.db"

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// NewDB opens (creating if needed) the SQLite database under dataDir and migrates it
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFileName)

	// foreign keys must be on per connection for RESTRICT / CASCADE to apply
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pool := NewConnectionPool(db, 25, 5, 5*time.Minute)

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := database.initPreparedStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized with connection pooling",
		"path", dbPath,
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns,
		"max_lifetime", pool.maxLifetime)

	return database, nil
}

// migrate creates the necessary tables. Every statement is idempotent.
func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL UNIQUE,
			full_name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			position TEXT,
			experience_months INTEGER,
			employment_type TEXT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS assessments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			respondent_code TEXT NOT NULL,
			fill_time_minutes INTEGER,
			leadership TEXT, -- JSON {code: rank}
			expertise TEXT,
			collaboration TEXT,
			innovation TEXT,
			reliability TEXT,
			communication TEXT,
			adaptability TEXT,
			mentorship TEXT,
			self_leadership TEXT,
			self_expertise TEXT,
			self_collaboration TEXT,
			competency_matrix TEXT, -- opaque JSON object
			frequent_collaboration TEXT, -- JSON string lists
			desired_collaboration TEXT,
			learning_sources TEXT,
			team_trust_index REAL,
			psychological_safety REAL,
			role_satisfaction REAL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (respondent_code) REFERENCES members(code) ON DELETE RESTRICT ON UPDATE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			member_code TEXT NOT NULL,
			assessment_id INTEGER NOT NULL,
			mean_rank_leadership REAL,
			mean_rank_expertise REAL,
			status_score REAL,
			updated_at DATETIME NOT NULL,
			UNIQUE(member_code, assessment_id),
			FOREIGN KEY (member_code) REFERENCES members(code) ON DELETE RESTRICT ON UPDATE CASCADE,
			FOREIGN KEY (assessment_id) REFERENCES assessments(id) ON DELETE RESTRICT ON UPDATE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS admin_users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_members_active ON members(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_members_created ON members(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_assessments_timestamp ON assessments(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_assessments_respondent ON assessments(respondent_code)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_member ON metrics(member_code)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_assessment ON metrics(assessment_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// initPreparedStatements initializes frequently used prepared statements
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		stmtUpsertMetric: `INSERT INTO metrics (
			member_code, assessment_id, mean_rank_leadership, mean_rank_expertise, status_score, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(member_code, assessment_id) DO UPDATE SET
			mean_rank_leadership = excluded.mean_rank_leadership,
			mean_rank_expertise = excluded.mean_rank_expertise,
			status_score = excluded.status_score,
			updated_at = excluded.updated_at`,

		stmtGetMetric: `SELECT ` + metricColumns + ` FROM metrics WHERE member_code = ? AND assessment_id = ?`,

		stmtGetMemberByCode: `SELECT ` + memberColumns + ` FROM members WHERE code = ?`,

		stmtCountMembers: `SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) FROM members`,

		stmtGetAdmin: `SELECT id, username, password_hash, created_at FROM admin_users WHERE username = ?`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// HealthCheck pings the database
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Close closes the database connection and prepared statements
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}

	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
