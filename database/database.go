package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mediaproof/config"
	"mediaproof/models"

	"github.com/apex/log"
	"github.com/go-sql-driver/mysql"
)

// mysqlDupEntry is the MySQL error number for a unique key violation.
// It is the arbiter of the dedup race: two concurrent submissions of
// the same bytes both pass the lookup, one insert wins, the other gets
// 1062 and is treated as a dedup hit.
const mysqlDupEntry = 1062

// maxListLimit bounds ListRecent scans.
const maxListLimit = 500

// Database handles all case store operations
type Database struct {
	db *sql.DB
}

// NewDatabase creates a new database connection
func NewDatabase(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Infof("Database connected successfully to %s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)

	return &Database{db: db}, nil
}

// New wraps an existing connection. Used by tests.
func New(db *sql.DB) *Database {
	return &Database{db: db}
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// EnsureCasesTable creates the cases table if it doesn't exist
func (d *Database) EnsureCasesTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS cases (
			id VARCHAR(64) NOT NULL,
			media_type ENUM('image', 'video') NOT NULL,
			filename VARCHAR(255) NOT NULL,
			media_hash CHAR(64) NOT NULL,
			is_ai_generated BOOLEAN NOT NULL,
			detection_score DOUBLE NOT NULL,
			blockchain_tx VARCHAR(80),
			report_path VARCHAR(512),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id),
			UNIQUE INDEX media_hash_unique (media_hash),
			INDEX created_at_index (created_at)
		)
	`

	_, err := d.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create cases table: %w", err)
	}

	log.Info("Cases table ensured")
	return nil
}

// CreateCase inserts a new case row. Returns models.ErrDuplicate when a
// case with the same media hash already exists.
func (d *Database) CreateCase(ctx context.Context, c *models.Case) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO cases (id, media_type, filename, media_hash, is_ai_generated, detection_score, blockchain_tx, report_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.MediaType, c.Filename, c.MediaHash, c.IsAIGenerated, c.DetectionScore,
		c.BlockchainTx, c.ReportPath, c.CreatedAt)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDupEntry {
			return models.ErrDuplicate
		}
		return fmt.Errorf("failed to insert case %s: %w", c.ID, err)
	}
	return nil
}

// GetCase returns the case with the given id, or models.ErrNotFound.
func (d *Database) GetCase(ctx context.Context, caseID string) (*models.Case, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, media_type, filename, media_hash, is_ai_generated, detection_score, blockchain_tx, report_path, created_at
		 FROM cases WHERE id = ?`, caseID)
	return scanCase(row)
}

// GetCaseByFingerprint returns the case holding the given media hash,
// or models.ErrNotFound. Backed by the unique media_hash index.
func (d *Database) GetCaseByFingerprint(ctx context.Context, mediaHash string) (*models.Case, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, media_type, filename, media_hash, is_ai_generated, detection_score, blockchain_tx, report_path, created_at
		 FROM cases WHERE media_hash = ?`, mediaHash)
	return scanCase(row)
}

// UpdateVerdict sets the detection outcome of an existing case. Only
// the report-rebuild recovery path reaches it; the analyze pipeline
// writes the verdict at insert time.
func (d *Database) UpdateVerdict(ctx context.Context, caseID string, isAIGenerated bool, score float64) error {
	return d.updateField(ctx, caseID,
		"UPDATE cases SET is_ai_generated = ?, detection_score = ? WHERE id = ?",
		isAIGenerated, score, caseID)
}

// UpdateLedgerReference records the anchoring transaction hash.
func (d *Database) UpdateLedgerReference(ctx context.Context, caseID, txHash string) error {
	return d.updateField(ctx, caseID,
		"UPDATE cases SET blockchain_tx = ? WHERE id = ?", txHash, caseID)
}

// UpdateReportPath records the location of the compiled report artifact.
func (d *Database) UpdateReportPath(ctx context.Context, caseID, reportPath string) error {
	return d.updateField(ctx, caseID,
		"UPDATE cases SET report_path = ? WHERE id = ?", reportPath, caseID)
}

func (d *Database) updateField(ctx context.Context, caseID, query string, args ...interface{}) error {
	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update case %s: %w", caseID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for case %s: %w", caseID, err)
	}
	if rows == 0 {
		// MySQL also reports 0 when the value is unchanged; treat a
		// present row as success.
		if _, getErr := d.GetCase(ctx, caseID); getErr != nil {
			return models.ErrNotFound
		}
	}
	return nil
}

// ListRecentCases returns up to limit cases, newest first. The limit is
// clamped to keep scans bounded.
func (d *Database) ListRecentCases(ctx context.Context, limit int) ([]models.Case, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, media_type, filename, media_hash, is_ai_generated, detection_score, blockchain_tx, report_path, created_at
		 FROM cases ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	cases := []models.Case{}
	for rows.Next() {
		c, err := scanCaseRow(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cases: %w", err)
	}
	return cases, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCase(row *sql.Row) (*models.Case, error) {
	c, err := scanCaseRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return c, err
}

func scanCaseRow(row rowScanner) (*models.Case, error) {
	var c models.Case
	var blockchainTx, reportPath sql.NullString
	if err := row.Scan(&c.ID, &c.MediaType, &c.Filename, &c.MediaHash,
		&c.IsAIGenerated, &c.DetectionScore, &blockchainTx, &reportPath, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan case row: %w", err)
	}
	if blockchainTx.Valid {
		c.BlockchainTx = &blockchainTx.String
	}
	if reportPath.Valid {
		c.ReportPath = &reportPath.String
	}
	return &c, nil
}
