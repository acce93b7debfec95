package attendance

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new record. Records are immutable once written; there is
// deliberately no update or delete path.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ScannedAt.IsZero() {
		rec.ScannedAt = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, student_id, scanned_by, scanned_by_role, purpose, location, scanned_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, rec.ID, rec.StudentID, rec.ScannedBy, rec.ScannedByRole, rec.Purpose, rec.Location, rec.ScannedAt)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get returns a single record by id.
func (r *Repository) Get(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, scanned_by, scanned_by_role, purpose, location, scanned_at, created_at
		FROM attendance_records WHERE id = $1
	`, id)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.ScannedBy, &rec.ScannedByRole, &rec.Purpose, &rec.Location, &rec.ScannedAt, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ListByStudent returns one page of a student's records, newest first, plus
// the total count so callers can report server-computed pagination.
func (r *Repository) ListByStudent(ctx context.Context, studentID string, limit, offset int) ([]Record, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_records WHERE student_id = $1
	`, studentID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, scanned_by, scanned_by_role, purpose, location, scanned_at, created_at
		FROM attendance_records
		WHERE student_id = $1
		ORDER BY scanned_at DESC
		LIMIT $2 OFFSET $3
	`, studentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.ScannedBy, &rec.ScannedByRole, &rec.Purpose, &rec.Location, &rec.ScannedAt, &rec.CreatedAt); err != nil {
			return nil, 0, err
		}
		res = append(res, rec)
	}
	return res, total, rows.Err()
}

// BumpDailyTally increments the per-student counter for the day of a scan.
// Idempotent per record id so the worker can safely reprocess.
func (r *Repository) BumpDailyTally(ctx context.Context, recordID, studentID string, scannedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_tally_sources (record_id) VALUES ($1)
		ON CONFLICT (record_id) DO NOTHING
	`, recordID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil // already counted
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO attendance_daily_tallies (student_id, day, scans)
		VALUES ($1, $2, 1)
		ON CONFLICT (student_id, day) DO UPDATE SET scans = attendance_daily_tallies.scans + 1
	`, studentID, scannedAt.UTC().Truncate(24*time.Hour))
	return err
}
