package database

import (
	"database/sql"
	"fmt"
	"time"

	"civicreport/config"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"
)

// Database represents the database connection
type Database struct {
	db *sql.DB
}

// NewDatabase creates a new database connection
func NewDatabase(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection with exponential backoff retry
	var waitInterval time.Duration = 1 * time.Second
	for {
		if err := db.Ping(); err == nil {
			break // Connection successful
		} else {
			log.WithError(err).Warnf("Database connection failed, retrying in %v", waitInterval)
		}
		time.Sleep(waitInterval)
		waitInterval *= 2 // Exponential backoff: 1s, 2s, 4s, 8s, ...
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Database{db: db}, nil
}

// NewFromDB wraps an existing connection. Used by tests.
func NewFromDB(db *sql.DB) *Database {
	return &Database{db: db}
}

// GetDB returns the underlying database connection
func (d *Database) GetDB() *sql.DB {
	return d.db
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// CreateReportsTable creates the reports table if it doesn't exist
func (d *Database) CreateReportsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS reports (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		kind VARCHAR(32) NOT NULL,
		title VARCHAR(500) NOT NULL DEFAULT '',
		description TEXT,
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		geometry TEXT,
		author_id VARCHAR(255) NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'unknown',
		priority VARCHAR(16) NOT NULL DEFAULT '',
		potential_duplicate_of VARCHAR(36) NOT NULL DEFAULT '',
		last_reported DATETIME NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_reports_kind_last_reported (kind, last_reported),
		INDEX idx_reports_author (author_id),
		INDEX idx_reports_status (status)
	)`

	_, err := d.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}

	log.Info("reports table created/verified successfully")
	return nil
}

// CreateReportUpdatesTable creates the report_updates table if it doesn't exist
func (d *Database) CreateReportUpdatesTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS report_updates (
		seq INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		report_id VARCHAR(36) NOT NULL,
		text TEXT,
		author_id VARCHAR(255) NOT NULL,
		photo_ref VARCHAR(500) NOT NULL DEFAULT '',
		ts DATETIME NOT NULL,
		INDEX idx_report_updates_report (report_id)
	)`

	_, err := d.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create report_updates table: %w", err)
	}

	log.Info("report_updates table created/verified successfully")
	return nil
}

// EnsureTables creates all tables required by the service
func (d *Database) EnsureTables() error {
	if err := d.CreateReportsTable(); err != nil {
		return err
	}
	if err := d.CreateReportUpdatesTable(); err != nil {
		return err
	}
	return d.CreateNotificationLogTable()
}
