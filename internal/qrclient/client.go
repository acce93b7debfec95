package qrclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNoCredential is returned before any network I/O when the credential
// provider cannot supply a token.
var ErrNoCredential = errors.New("no credential available")

// CredentialProvider supplies the bearer credential attached to every call.
// Injected at construction time so the client is testable with fake
// credentials and credential failures.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed-token credential provider.
type Static string

// Token returns the fixed token.
func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoCredential
	}
	return string(s), nil
}

// APIError is a non-2xx response. Message is the server's verbatim message
// and is safe to surface to the user.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// UserInfo identifies the holder of a generated QR payload.
type UserInfo struct {
	Name     string `json:"name"`
	UserType string `json:"userType"`
	ID       string `json:"id"`
	Avatar   string `json:"avatar,omitempty"`
}

// GenerateResult is the response to a QR payload request.
type GenerateResult struct {
	QRData    string   `json:"qrData"`
	ExpiresIn int      `json:"expiresIn"` // seconds
	UserInfo  UserInfo `json:"userInfo"`
}

// Student is the server-resolved identity summary behind a payload.
type Student struct {
	StudentID      string `json:"studentId"`
	Name           string `json:"name"`
	Department     string `json:"department"`
	Year           string `json:"year"`
	UniversityName string `json:"universityName"`
}

// VerifyResult is the response to a payload verification.
type VerifyResult struct {
	Valid   bool    `json:"valid"`
	Student Student `json:"student"`
}

// ScannedBy identifies the staff member who recorded a scan.
type ScannedBy struct {
	Name     string `json:"name"`
	UserType string `json:"userType"`
}

// ScanResult is the response to a recorded attendance scan.
type ScanResult struct {
	Message   string    `json:"message"`
	Student   Student   `json:"student"`
	ScannedBy ScannedBy `json:"scannedBy"`
	ScannedAt time.Time `json:"scannedAt"`
}

// AttendanceRecord is one immutable server-side attendance event.
type AttendanceRecord struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"studentId"`
	ScannedBy     string    `json:"scannedBy"`
	ScannedByRole string    `json:"scannedByRole"`
	Purpose       string    `json:"purpose,omitempty"`
	Location      string    `json:"location,omitempty"`
	ScannedAt     time.Time `json:"scannedAt"`
}

// Pagination carries server-computed list totals.
type Pagination struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalRecords int `json:"totalRecords"`
	Limit        int `json:"limit"`
}

// HistoryResult is one page of the caller's own attendance history.
type HistoryResult struct {
	Attendance []AttendanceRecord `json:"attendance"`
	Pagination Pagination         `json:"pagination"`
}

// StudentHistoryResult is one page of an arbitrary student's history.
type StudentHistoryResult struct {
	Student    Student            `json:"student"`
	Attendance []AttendanceRecord `json:"attendance"`
	Pagination Pagination         `json:"pagination"`
}

// Client calls the attendance API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	creds   CredentialProvider
}

// New creates a client with an explicit request timeout.
func New(baseURL string, creds CredentialProvider) *Client {
	return &Client{
		BaseURL: baseURL,
		creds:   creds,
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Generate requests a fresh QR payload for the caller.
func (c *Client) Generate(ctx context.Context) (*GenerateResult, error) {
	var out GenerateResult
	if err := c.do(ctx, http.MethodGet, "/api/qr/generate", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify resolves a raw decoded payload to an identity summary. The payload
// is forwarded verbatim; the client never parses it.
func (c *Client) Verify(ctx context.Context, qrData string) (*VerifyResult, error) {
	body := map[string]string{"qrData": qrData}
	var out VerifyResult
	if err := c.do(ctx, http.MethodPost, "/api/qr/verify", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScanAttendance records an attendance event for the identity behind qrData.
// Purpose and location are optional free text.
func (c *Client) ScanAttendance(ctx context.Context, qrData, purpose, location string) (*ScanResult, error) {
	body := map[string]string{"qrData": qrData}
	if purpose != "" {
		body["purpose"] = purpose
	}
	if location != "" {
		body["location"] = location
	}
	var out ScanResult
	if err := c.do(ctx, http.MethodPost, "/api/qr/scan-attendance", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MyHistory fetches one page of the caller's attendance history.
func (c *Client) MyHistory(ctx context.Context, page, limit int) (*HistoryResult, error) {
	var out HistoryResult
	if err := c.do(ctx, http.MethodGet, "/api/qr/attendance/my-history"+pageQuery(page, limit), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StudentHistory fetches one page of a student's history by id (staff only).
func (c *Client) StudentHistory(ctx context.Context, studentID string, page, limit int) (*StudentHistoryResult, error) {
	var out StudentHistoryResult
	path := "/api/qr/attendance/student/" + url.PathEscape(studentID) + pageQuery(page, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func pageQuery(page, limit int) string {
	return "?page=" + strconv.Itoa(page) + "&limit=" + strconv.Itoa(limit)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("attendance api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// token resolves the credential before any network I/O happens.
func (c *Client) token(ctx context.Context) (string, error) {
	if c.creds == nil {
		return "", ErrNoCredential
	}
	token, err := c.creds.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

// decodeAPIError extracts the uniform {message} error body, falling back to
// a generic message when the body is not parseable.
func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: "request failed: " + resp.Status}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiErr
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		apiErr.Message = body.Message
	}
	return apiErr
}
