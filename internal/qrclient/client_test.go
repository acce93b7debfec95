package qrclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/qr/generate", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"qrData":"abc123","expiresIn":86400,"userInfo":{"name":"Jane Doe","userType":"student","id":"STU1"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, Static("tok"))
	res, err := c.Generate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Bearer tok", gotAuth)
	require.Equal(t, "abc123", res.QRData)
	require.Equal(t, 86400, res.ExpiresIn)
	require.Equal(t, "Jane Doe", res.UserInfo.Name)
	require.Equal(t, "student", res.UserInfo.UserType)
	require.Equal(t, "STU1", res.UserInfo.ID)
}

func TestVerifyDecodesStudent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/qr/verify", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"valid":true,"student":{"studentId":"STU1","name":"Jane Doe","department":"CS","year":"200L","universityName":"X Univ"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, Static("tok"))
	res, err := c.Verify(context.Background(), "abc123")
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, Student{
		StudentID:      "STU1",
		Name:           "Jane Doe",
		Department:     "CS",
		Year:           "200L",
		UniversityName: "X Univ",
	}, res.Student)
}

func TestNoCredentialAbortsBeforeNetwork(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
	}))
	defer srv.Close()

	c := New(srv.URL, Static(""))
	_, err := c.Generate(context.Background())
	require.ErrorIs(t, err, ErrNoCredential)

	c = New(srv.URL, nil)
	_, err = c.Verify(context.Background(), "abc123")
	require.ErrorIs(t, err, ErrNoCredential)

	require.Zero(t, atomic.LoadInt64(&calls))
}

func TestErrorMessageSurfacedVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"QR expired"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, Static("tok"))
	_, err := c.Verify(context.Background(), "abc123")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, "QR expired", apiErr.Message)
}

func TestErrorFallbackWhenBodyUnparseable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	c := New(srv.URL, Static("tok"))
	_, err := c.Generate(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusInternalServerError, apiErr.Status)
	require.Contains(t, apiErr.Message, "request failed")
}

func TestHistoryPaging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/qr/attendance/my-history", r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "20", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"attendance":[],"pagination":{"currentPage":2,"totalPages":5,"totalRecords":93,"limit":20}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, Static("tok"))
	res, err := c.MyHistory(context.Background(), 2, 20)
	require.NoError(t, err)
	require.Equal(t, 93, res.Pagination.TotalRecords)
	require.Equal(t, 5, res.Pagination.TotalPages)
}

func TestStudentHistoryPathEscaped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/qr/attendance/student/STU1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"student":{"studentId":"STU1","name":"Jane Doe"},"attendance":[],"pagination":{"currentPage":1,"totalPages":1,"totalRecords":0,"limit":10}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, Static("tok"))
	res, err := c.StudentHistory(context.Background(), "STU1", 1, 10)
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", res.Student.Name)
}
