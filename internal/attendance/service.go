package attendance

import (
	"context"
	"errors"
	"time"
)

// Record is one immutable attendance event.
type Record struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"studentId"`
	ScannedBy     string    `json:"scannedBy"`
	ScannedByRole string    `json:"scannedByRole"`
	Purpose       string    `json:"purpose,omitempty"`
	Location      string    `json:"location,omitempty"`
	ScannedAt     time.Time `json:"scannedAt"`
	CreatedAt     time.Time `json:"-"`
}

// Page carries server-computed pagination totals. Clients must not derive
// totals themselves.
type Page struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalRecords int `json:"totalRecords"`
	Limit        int `json:"limit"`
}

// Service records scans and serves paginated history.
type Service struct {
	repo         *Repository
	defaultLimit int
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, defaultLimit int) *Service {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &Service{repo: repo, defaultLimit: defaultLimit}
}

// RecordScan persists a scan of studentID performed by a staff member.
func (s *Service) RecordScan(ctx context.Context, studentID, scannedBy, scannedByRole, purpose, location string) (Record, error) {
	if studentID == "" || scannedBy == "" {
		return Record{}, errors.New("student and scanner required")
	}
	return s.repo.Insert(ctx, Record{
		StudentID:     studentID,
		ScannedBy:     scannedBy,
		ScannedByRole: scannedByRole,
		Purpose:       purpose,
		Location:      location,
		ScannedAt:     time.Now().UTC(),
	})
}

// History returns one page of a student's records with pagination totals.
func (s *Service) History(ctx context.Context, studentID string, page, limit int) ([]Record, Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	records, total, err := s.repo.ListByStudent(ctx, studentID, limit, (page-1)*limit)
	if err != nil {
		return nil, Page{}, err
	}
	totalPages := (total + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}
	return records, Page{
		CurrentPage:  page,
		TotalPages:   totalPages,
		TotalRecords: total,
		Limit:        limit,
	}, nil
}
