package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"civicreport/models"

	"github.com/apex/log"
	"github.com/go-sql-driver/mysql"
	geojson "github.com/paulmach/go.geojson"
)

// ErrNotFound is returned when a report id does not exist.
var ErrNotFound = errors.New("report not found")

// ConflictError is returned by Append when the generated report id is
// already taken. The caller retries once with a fresh id.
type ConflictError struct {
	ID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("report id %s already exists", e.ID)
}

const mysqlErrDuplicateEntry = 1062

// Append stores a new report and its creation update in one
// transaction. The id uniqueness check happens inside the transaction,
// so no two concurrent ingestions can claim the same id.
func (d *Database) Append(ctx context.Context, r models.Report) (models.Report, error) {
	if len(r.Updates) == 0 {
		return models.Report{}, fmt.Errorf("report %s has no creation update", r.ID)
	}

	geometry, err := marshalGeometry(r.Geometry)
	if err != nil {
		return models.Report{}, err
	}

	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return models.Report{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT id FROM reports WHERE id = ?`, r.ID).Scan(&existing)
	if err == nil {
		return models.Report{}, &ConflictError{ID: r.ID}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Report{}, fmt.Errorf("failed to check report id: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT
	  INTO reports (id, kind, title, description, latitude, longitude, geometry, author_id, status, priority, potential_duplicate_of, last_reported)
	  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), r.Title, r.Description, r.Latitude, r.Longitude, geometry,
		r.AuthorID, string(r.Status), string(r.Priority), r.PotentialDuplicateOfID, r.LastReported)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return models.Report{}, &ConflictError{ID: r.ID}
		}
		return models.Report{}, fmt.Errorf("failed to insert report: %w", err)
	}

	for _, u := range r.Updates {
		_, err = tx.ExecContext(ctx, `INSERT
		  INTO report_updates (report_id, text, author_id, photo_ref, ts)
		  VALUES (?, ?, ?, ?, ?)`,
			r.ID, u.Text, u.AuthorID, u.PhotoRef, u.Timestamp)
		if err != nil {
			return models.Report{}, fmt.Errorf("failed to insert report update: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Report{}, fmt.Errorf("failed to commit report: %w", err)
	}

	return r, nil
}

// QueryByKindSince returns non-deleted reports of the given kind whose
// last_reported is at or after since, in canonical read order.
// Update history is not loaded.
func (d *Database) QueryByKindSince(ctx context.Context, kind models.ReportKind, since time.Time) ([]models.Report, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, kind, title, description, latitude, longitude, geometry, author_id, status, priority, potential_duplicate_of, last_reported
		FROM reports
		WHERE kind = ? AND last_reported >= ? AND status != 'deleted'
		ORDER BY last_reported ASC, id ASC`, string(kind), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	return scanReports(rows)
}

// GetByID returns one report with its full update history.
func (d *Database) GetByID(ctx context.Context, id string) (models.Report, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, kind, title, description, latitude, longitude, geometry, author_id, status, priority, potential_duplicate_of, last_reported
		FROM reports
		WHERE id = ?`, id)

	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Report{}, ErrNotFound
		}
		return models.Report{}, err
	}

	updates, err := d.getUpdates(ctx, id)
	if err != nil {
		return models.Report{}, err
	}
	report.Updates = updates

	return report, nil
}

// UpdateStatus transitions a report's status and appends the
// explaining update entry in the same transaction, so history always
// explains current state.
func (d *Database) UpdateStatus(ctx context.Context, id string, newStatus models.ReportStatus, update models.ReportUpdate) (models.Report, error) {
	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return models.Report{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE reports
		SET status = ?, last_reported = ?
		WHERE id = ?`, string(newStatus), update.Timestamp, id)
	if err != nil {
		return models.Report{}, fmt.Errorf("failed to update report status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return models.Report{}, fmt.Errorf("failed to get status of db op: %w", err)
	}
	if rows == 0 {
		return models.Report{}, ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `INSERT
	  INTO report_updates (report_id, text, author_id, photo_ref, ts)
	  VALUES (?, ?, ?, ?, ?)`,
		id, update.Text, update.AuthorID, update.PhotoRef, update.Timestamp)
	if err != nil {
		return models.Report{}, fmt.Errorf("failed to insert status update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Report{}, fmt.Errorf("failed to commit status update: %w", err)
	}

	return d.GetByID(ctx, id)
}

// SnapshotFor returns the full set of reports currently visible to a
// viewer, in canonical read order. Visibility is global in this core;
// the viewer id is kept on the signature for audience-aware callers.
func (d *Database) SnapshotFor(ctx context.Context, viewerID string) (models.Snapshot, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, kind, title, description, latitude, longitude, geometry, author_id, status, priority, potential_duplicate_of, last_reported
		FROM reports
		WHERE status != 'deleted'
		ORDER BY last_reported ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	reports, err := scanReports(rows)
	if err != nil {
		return nil, err
	}
	return models.Snapshot(reports), nil
}

// AppendUpdate appends a comment or photo entry to a report's history.
func (d *Database) AppendUpdate(ctx context.Context, id string, update models.ReportUpdate) error {
	result, err := d.db.ExecContext(ctx, `INSERT
	  INTO report_updates (report_id, text, author_id, photo_ref, ts)
	  SELECT ?, ?, ?, ?, ? FROM reports WHERE id = ?`,
		id, update.Text, update.AuthorID, update.PhotoRef, update.Timestamp, id)
	if err != nil {
		return fmt.Errorf("failed to append update: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get status of db op: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *Database) getUpdates(ctx context.Context, id string) ([]models.ReportUpdate, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT text, author_id, photo_ref, ts
		FROM report_updates
		WHERE report_id = ?
		ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query report updates: %w", err)
	}
	defer rows.Close()

	var updates []models.ReportUpdate
	for rows.Next() {
		var u models.ReportUpdate
		if err := rows.Scan(&u.Text, &u.AuthorID, &u.PhotoRef, &u.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan report update: %w", err)
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (models.Report, error) {
	var (
		r        models.Report
		kind     string
		status   string
		priority string
		geometry sql.NullString
	)
	err := row.Scan(&r.ID, &kind, &r.Title, &r.Description, &r.Latitude, &r.Longitude,
		&geometry, &r.AuthorID, &status, &priority, &r.PotentialDuplicateOfID, &r.LastReported)
	if err != nil {
		return models.Report{}, err
	}
	r.Kind = models.ReportKind(kind)
	r.Status = models.ReportStatus(status)
	r.Priority = models.Priority(priority)
	if geometry.Valid && geometry.String != "" {
		g, err := geojson.UnmarshalGeometry([]byte(geometry.String))
		if err != nil {
			log.WithError(err).Warnf("Report %s has malformed geometry, dropping it", r.ID)
		} else {
			r.Geometry = g
		}
	}
	return r, nil
}

func scanReports(rows *sql.Rows) ([]models.Report, error) {
	var reports []models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func marshalGeometry(g *geojson.Geometry) (sql.NullString, error) {
	if g == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(g)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal geometry: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
