package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Student is a directory entry resolvable from a QR payload.
type Student struct {
	StudentID      string    `json:"studentId"`
	Name           string    `json:"name"`
	Department     string    `json:"department"`
	Year           string    `json:"year"`
	UniversityName string    `json:"universityName"`
	AvatarURL      *string   `json:"avatar,omitempty"`
	CreatedAt      time.Time `json:"-"`
}

// Repository reads the student directory in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns a single student by student id, or nil when unknown.
func (r *Repository) Get(ctx context.Context, studentID string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT student_id, name, department, year, university_name, avatar_url, created_at
		FROM students WHERE student_id = $1
	`, studentID)
	var s Student
	if err := row.Scan(&s.StudentID, &s.Name, &s.Department, &s.Year, &s.UniversityName, &s.AvatarURL, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Upsert creates or updates a directory entry.
func (r *Repository) Upsert(ctx context.Context, s Student) error {
	if s.StudentID == "" {
		return errors.New("student id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (student_id, name, department, year, university_name, avatar_url)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (student_id) DO UPDATE SET
			name = EXCLUDED.name,
			department = EXCLUDED.department,
			year = EXCLUDED.year,
			university_name = EXCLUDED.university_name,
			avatar_url = COALESCE(EXCLUDED.avatar_url, students.avatar_url),
			updated_at = NOW()
	`, s.StudentID, s.Name, s.Department, s.Year, s.UniversityName, s.AvatarURL)
	return err
}

// List returns all students ordered by id.
func (r *Repository) List(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, name, department, year, university_name, avatar_url, created_at
		FROM students
		ORDER BY student_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.StudentID, &s.Name, &s.Department, &s.Year, &s.UniversityName, &s.AvatarURL, &s.CreatedAt); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}
