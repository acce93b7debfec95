package history

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"campusqr/internal/qrclient"
)

type fakeAPI struct {
	mu         sync.Mutex
	myRes      *qrclient.HistoryResult
	myErr      error
	studentRes *qrclient.StudentHistoryResult
	studentErr error
	calls      int
}

func (f *fakeAPI) MyHistory(_ context.Context, page, limit int) (*qrclient.HistoryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.myRes, f.myErr
}

func (f *fakeAPI) StudentHistory(_ context.Context, studentID string, page, limit int) (*qrclient.StudentHistoryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.studentRes, f.studentErr
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func pageOf(current, totalPages, totalRecords, limit int) qrclient.Pagination {
	return qrclient.Pagination{
		CurrentPage:  current,
		TotalPages:   totalPages,
		TotalRecords: totalRecords,
		Limit:        limit,
	}
}

func TestLoadPageTracksServerTotals(t *testing.T) {
	api := &fakeAPI{myRes: &qrclient.HistoryResult{
		Attendance: []qrclient.AttendanceRecord{{ID: "r1"}},
		Pagination: pageOf(2, 5, 93, 20),
	}}
	v := NewViewer(api, 20)

	require.NoError(t, v.LoadPage(context.Background(), 2))
	cursor := v.Cursor()
	require.Equal(t, 93, cursor.TotalRecords)
	require.Equal(t, 5, cursor.TotalPages)
	require.True(t, v.HasNext())
	require.True(t, v.HasPrev())
	require.Len(t, v.Records(), 1)
}

func TestOutOfBoundsPagesIssueNoCall(t *testing.T) {
	api := &fakeAPI{myRes: &qrclient.HistoryResult{
		Attendance: []qrclient.AttendanceRecord{{ID: "r1"}},
		Pagination: pageOf(1, 5, 93, 20),
	}}
	v := NewViewer(api, 20)

	// Below 1: never issued, even before anything is loaded.
	require.ErrorIs(t, v.LoadPage(context.Background(), 0), ErrPageOutOfRange)
	require.Zero(t, api.callCount())

	require.NoError(t, v.LoadPage(context.Background(), 1))
	require.Equal(t, 1, api.callCount())

	// Beyond the known total: not issued, displayed page unchanged.
	require.ErrorIs(t, v.LoadPage(context.Background(), 6), ErrPageOutOfRange)
	require.Equal(t, 1, api.callCount())
	require.Equal(t, 1, v.Cursor().CurrentPage)
	require.Len(t, v.Records(), 1)
}

func TestRevisitingPageRefetches(t *testing.T) {
	api := &fakeAPI{myRes: &qrclient.HistoryResult{Pagination: pageOf(1, 3, 25, 10)}}
	v := NewViewer(api, 10)

	require.NoError(t, v.LoadPage(context.Background(), 1))
	require.NoError(t, v.LoadPage(context.Background(), 1))
	require.Equal(t, 2, api.callCount()) // no page cache
}

func TestSwitchingStudentResetsCursor(t *testing.T) {
	api := &fakeAPI{
		myRes: &qrclient.HistoryResult{Pagination: pageOf(2, 5, 93, 20)},
		studentRes: &qrclient.StudentHistoryResult{
			Student:    qrclient.Student{StudentID: "STU1", Name: "Jane Doe"},
			Pagination: pageOf(1, 1, 3, 20),
		},
	}
	v := NewViewer(api, 20)

	require.NoError(t, v.LoadPage(context.Background(), 2))
	require.Nil(t, v.Student())

	v.SetStudent("STU1")
	require.Empty(t, v.Records())
	require.Equal(t, qrclient.Pagination{}, v.Cursor())

	require.NoError(t, v.LoadPage(context.Background(), 1))
	require.NotNil(t, v.Student())
	require.Equal(t, "Jane Doe", v.Student().Name)

	// Setting the same target again does not drop the loaded page.
	v.SetStudent("STU1")
	require.Equal(t, 1, v.Cursor().CurrentPage)
}

func TestLoadFailureKeepsPriorPageAndRetries(t *testing.T) {
	api := &fakeAPI{myRes: &qrclient.HistoryResult{
		Attendance: []qrclient.AttendanceRecord{{ID: "r1"}},
		Pagination: pageOf(1, 2, 12, 10),
	}}
	v := NewViewer(api, 10)
	require.NoError(t, v.LoadPage(context.Background(), 1))

	api.mu.Lock()
	api.myErr = errors.New("network down")
	api.mu.Unlock()

	require.Error(t, v.Next(context.Background()))
	require.Error(t, v.Err())
	require.Len(t, v.Records(), 1) // prior page still displayed

	api.mu.Lock()
	api.myErr = nil
	api.myRes = &qrclient.HistoryResult{Pagination: pageOf(2, 2, 12, 10)}
	api.mu.Unlock()

	require.NoError(t, v.Next(context.Background()))
	require.Equal(t, 2, v.Cursor().CurrentPage)
	require.NoError(t, v.Err())
}

func TestNextPrevBounds(t *testing.T) {
	api := &fakeAPI{myRes: &qrclient.HistoryResult{Pagination: pageOf(1, 1, 4, 10)}}
	v := NewViewer(api, 10)
	require.NoError(t, v.LoadPage(context.Background(), 1))

	require.False(t, v.HasNext())
	require.False(t, v.HasPrev())
	require.ErrorIs(t, v.Next(context.Background()), ErrPageOutOfRange)
	require.ErrorIs(t, v.Prev(context.Background()), ErrPageOutOfRange)
	require.Equal(t, 1, api.callCount())
}
