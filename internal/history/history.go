// Package history is the read-only, paginated attendance list: either the
// caller's own records or, role-gated server-side, an arbitrary student's.
package history

import (
	"context"
	"errors"
	"sync"

	"campusqr/internal/qrclient"
)

// ErrPageOutOfRange is returned for page requests outside the known bounds.
// No network call is issued and the displayed page is left unchanged.
var ErrPageOutOfRange = errors.New("page out of range")

// API is the slice of the attendance client the viewer needs.
type API interface {
	MyHistory(ctx context.Context, page, limit int) (*qrclient.HistoryResult, error)
	StudentHistory(ctx context.Context, studentID string, page, limit int) (*qrclient.StudentHistoryResult, error)
}

// Viewer holds one page of records plus the server-reported cursor. Totals
// always come from the server; the viewer never computes them. Pages are not
// cached — revisiting a page refetches it.
type Viewer struct {
	api   API
	limit int

	mu        sync.Mutex
	studentID string // empty means the caller's own history
	records   []qrclient.AttendanceRecord
	cursor    qrclient.Pagination
	student   *qrclient.Student
	loaded    bool
	lastErr   error
}

// NewViewer creates a viewer over the caller's own history.
func NewViewer(api API, limit int) *Viewer {
	if limit <= 0 {
		limit = 10
	}
	return &Viewer{api: api, limit: limit}
}

// SetStudent switches the target identity. Changing targets drops the loaded
// page and cursor so the next load starts from scratch.
func (v *Viewer) SetStudent(studentID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.studentID == studentID {
		return
	}
	v.studentID = studentID
	v.records = nil
	v.cursor = qrclient.Pagination{}
	v.student = nil
	v.loaded = false
	v.lastErr = nil
}

// LoadPage fetches page n. Requests below 1, or beyond the known total, are
// not issued at all.
func (v *Viewer) LoadPage(ctx context.Context, n int) error {
	v.mu.Lock()
	if n < 1 || (v.loaded && n > v.cursor.TotalPages) {
		v.mu.Unlock()
		return ErrPageOutOfRange
	}
	studentID := v.studentID
	limit := v.limit
	v.mu.Unlock()

	var (
		records []qrclient.AttendanceRecord
		cursor  qrclient.Pagination
		student *qrclient.Student
		err     error
	)
	if studentID == "" {
		var res *qrclient.HistoryResult
		res, err = v.api.MyHistory(ctx, n, limit)
		if err == nil {
			records, cursor = res.Attendance, res.Pagination
		}
	} else {
		var res *qrclient.StudentHistoryResult
		res, err = v.api.StudentHistory(ctx, studentID, n, limit)
		if err == nil {
			records, cursor, student = res.Attendance, res.Pagination, &res.Student
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.studentID != studentID {
		return nil // target changed while in flight; drop the stale page
	}
	if err != nil {
		v.lastErr = err
		return err
	}
	v.records = records
	v.cursor = cursor
	v.student = student
	v.loaded = true
	v.lastErr = nil
	return nil
}

// Reload refetches the current page; this is the manual retry affordance.
func (v *Viewer) Reload(ctx context.Context) error {
	v.mu.Lock()
	page := v.cursor.CurrentPage
	v.mu.Unlock()
	if page < 1 {
		page = 1
	}
	return v.LoadPage(ctx, page)
}

// Next loads the following page when there is one.
func (v *Viewer) Next(ctx context.Context) error {
	return v.LoadPage(ctx, v.Cursor().CurrentPage+1)
}

// Prev loads the preceding page when there is one.
func (v *Viewer) Prev(ctx context.Context) error {
	return v.LoadPage(ctx, v.Cursor().CurrentPage-1)
}

// HasNext reports whether a next page exists.
func (v *Viewer) HasNext() bool {
	c := v.Cursor()
	return c.CurrentPage < c.TotalPages
}

// HasPrev reports whether a previous page exists.
func (v *Viewer) HasPrev() bool {
	return v.Cursor().CurrentPage > 1
}

// Records returns the currently displayed page.
func (v *Viewer) Records() []qrclient.AttendanceRecord {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.records
}

// Cursor returns the server-reported pagination state.
func (v *Viewer) Cursor() qrclient.Pagination {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cursor
}

// Student returns the resolved student when browsing by id, nil otherwise.
func (v *Viewer) Student() *qrclient.Student {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.student
}

// Err returns the last load failure.
func (v *Viewer) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}
