package daq

import (
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx"

	"github.com/google/uuid"
)

// RunDB records run bookkeeping rows in the shared MySQL runs database, so
// offline analysis can resolve a data directory back to its run conditions.
// It is optional: with no_db set the orchestrator simply never gets one.
type RunDB struct {
	db  *sqlx.DB
	log *slog.Logger
}

// ConnectRunDB opens the runs database. Returns nil with no error when the
// configuration disables the database.
func ConnectRunDB(cfg DatabaseConfig, logger *slog.Logger) (*RunDB, error) {
	if cfg.NoDB {
		logger.Info("Run database disabled", "module", "database")
		return nil, nil
	}
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", cfg.User, cfg.Passwd, cfg.Host, port, cfg.DBName)
	db, err := sqlx.Connect("mysql", dbURI)
	if err != nil {
		return nil, fmt.Errorf("error connecting to run database: %w", err)
	}
	logger.Info(fmt.Sprintf("Connected to run database %s on %s", cfg.DBName, cfg.Host), "module", "database")
	return &RunDB{db: db, log: logger}, nil
}

// OpenRun inserts the bookkeeping row for a starting run.
func (r *RunDB) OpenRun(runID uuid.UUID, nDigitizers int, outputDir string) error {
	query := `INSERT INTO Runs (RunID, StartTime, Digitizers, OutputDir) VALUES (?, ?, ?, ?)`
	if _, err := r.db.Exec(query, runID.String(), time.Now().UTC(), nDigitizers, outputDir); err != nil {
		return fmt.Errorf("error inserting run row: %w", err)
	}
	r.log.Info(fmt.Sprintf("Run %s registered in database", runID), "module", "database")
	return nil
}

// CloseRun stamps the end time and final event count on the run's row.
func (r *RunDB) CloseRun(runID uuid.UUID, totalEvents uint64) error {
	query := `UPDATE Runs SET EndTime = ?, TotalEvents = ? WHERE RunID = ?`
	if _, err := r.db.Exec(query, time.Now().UTC(), totalEvents, runID.String()); err != nil {
		return fmt.Errorf("error closing run row: %w", err)
	}
	r.log.Info(fmt.Sprintf("Run %s closed in database: %d events", runID, totalEvents), "module", "database")
	return nil
}

// Close releases the database connection.
func (r *RunDB) Close() error {
	return r.db.Close()
}
