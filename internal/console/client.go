package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/christopherklint97/deskcheck/internal/reconcile"
)

const (
	defaultBaseURL = "http://localhost:8000"
	maxRetries     = 3
)

// Client talks to the employer API of the coworking HR console.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *EmployeeCache
	logger     *slog.Logger
	backoff    func(attempt int) time.Duration

	mu    sync.RWMutex
	token string

	// relogin, when set, fetches a fresh token after a 401.
	authMu  sync.Mutex
	relogin func(ctx context.Context) (string, error)
}

func NewClient(baseURL, token string, cacheTTL time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache:   NewEmployeeCache(cacheTTL),
		logger:  logger,
		backoff: backoff,
		token:   token,
	}
}

// SetToken replaces the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetCredentials lets the client log in again when the console rejects its token.
// onToken, if non-nil, receives every token obtained that way.
func (c *Client) SetCredentials(email, password string, onToken func(token string)) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if email == "" || password == "" {
		c.relogin = nil
		return
	}
	c.relogin = func(ctx context.Context) (string, error) {
		token, err := c.login(ctx, email, password)
		if err != nil {
			return "", err
		}
		if onToken != nil {
			onToken(token)
		}
		return token, nil
	}
}

// doRequest sends the request and, on a 401 with credentials set, logs in again and
// retries once. Concurrent callers that hit the same expired token share one login.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	used := c.Token()
	data, err := c.send(ctx, method, path, body)
	if err == nil || !IsUnauthorized(err) {
		return data, err
	}

	c.authMu.Lock()
	relogin := c.relogin
	if relogin == nil {
		c.authMu.Unlock()
		return nil, err
	}
	if c.Token() == used {
		c.logger.Info("console token rejected, logging in again", "path", path)
		if _, lerr := relogin(ctx); lerr != nil {
			c.authMu.Unlock()
			return nil, fmt.Errorf("re-authenticating after %v: %w", err, lerr)
		}
	}
	c.authMu.Unlock()

	return c.send(ctx, method, path, body)
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	c.logger.Debug("console API request", "method", method, "path", path)

	var resp *http.Response
	requestStart := time.Now()
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if token := c.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err = c.httpClient.Do(req)
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				c.logger.Error("API request transport error", "method", method, "path", path, "error", err, "elapsed", time.Since(requestStart))
				return nil, fmt.Errorf("sending request: %w", err)
			}
			c.logger.Debug("API request transport error, retrying", "method", method, "path", path, "attempt", attempt+1, "error", err)
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				c.logger.Error("API request failed after retries", "method", method, "path", path, "status", resp.StatusCode, "attempts", maxRetries+1, "elapsed", time.Since(requestStart))
				return nil, &APIError{StatusCode: resp.StatusCode, Body: fmt.Sprintf("giving up after %d retries", maxRetries)}
			}
			c.logger.Debug("API request retryable error", "method", method, "path", path, "status", resp.StatusCode, "attempt", attempt+1)
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	c.logger.Debug("console API response", "method", method, "path", path, "status", resp.StatusCode, "bytes", len(respBody), "elapsed", time.Since(requestStart))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("API request failed", "method", method, "path", path, "status", resp.StatusCode, "response", truncate(string(respBody), 200))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 500)}
	}

	return respBody, nil
}

func backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// IsUnauthorized reports whether err is a 401 from the console.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// Login exchanges employer credentials for an access token and starts using it.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", fmt.Errorf("email and password are required to log in")
	}
	return c.login(ctx, email, password)
}

func (c *Client) login(ctx context.Context, email, password string) (string, error) {
	data, err := c.send(ctx, http.MethodPost, "/employer/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", fmt.Errorf("logging in: %w", err)
	}

	var lr loginResponse
	if err := json.Unmarshal(data, &lr); err != nil {
		return "", fmt.Errorf("parsing login response: %w", err)
	}
	if lr.AccessToken == "" {
		return "", fmt.Errorf("login response has no access token")
	}

	c.SetToken(lr.AccessToken)
	return lr.AccessToken, nil
}

func (c *Client) ListEmployees(ctx context.Context) ([]Employee, error) {
	if cached := c.cache.Get(); cached != nil {
		return cached, nil
	}

	data, err := c.doRequest(ctx, http.MethodGet, "/employer/employees", nil)
	if err != nil {
		return nil, fmt.Errorf("listing employees: %w", err)
	}

	var employees []Employee
	if err := json.Unmarshal(data, &employees); err != nil {
		return nil, fmt.Errorf("parsing employees response: %w", err)
	}

	c.cache.Set(employees)
	return employees, nil
}

// GetAttendance returns one employee's attendance records between start and end inclusive.
func (c *Client) GetAttendance(ctx context.Context, employeeID int, start, end time.Time) ([]reconcile.AttendanceRecord, error) {
	params := url.Values{
		"start_date": {start.Format("2006-01-02")},
		"end_date":   {end.Format("2006-01-02")},
	}
	path := fmt.Sprintf("/employer/attendance/employee/%d?%s", employeeID, params.Encode())
	data, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("getting attendance: %w", err)
	}

	records, err := DecodeAttendance(data)
	if err != nil {
		return nil, fmt.Errorf("parsing attendance response: %w", err)
	}
	return records, nil
}

// DecodeAttendance accepts either a bare JSON array of records or an object
// with an attendance_records array. Elements that do not decode are kept in place
// with Malformed set, so the rest of the batch survives.
func DecodeAttendance(data []byte) ([]reconcile.AttendanceRecord, error) {
	trimmed := bytes.TrimSpace(data)
	var raw []json.RawMessage
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env attendanceEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, err
		}
		raw = env.Records
	} else if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, err
	}

	records := make([]reconcile.AttendanceRecord, len(raw))
	for i, elem := range raw {
		if err := json.Unmarshal(elem, &records[i]); err != nil {
			records[i] = reconcile.AttendanceRecord{Malformed: "decoding attendance record: " + err.Error()}
		}
	}
	return records, nil
}

// DecodeBookings decodes a JSON array of bookings element by element. Elements that
// do not decode are kept in place with Malformed set.
func DecodeBookings(data []byte) ([]reconcile.BookingRecord, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	bookings := make([]reconcile.BookingRecord, len(raw))
	for i, elem := range raw {
		if err := json.Unmarshal(elem, &bookings[i]); err != nil {
			bookings[i] = reconcile.BookingRecord{Malformed: "decoding booking: " + err.Error()}
		}
	}
	return bookings, nil
}

// ListBookings returns every booking for one employee. The console does not filter by
// date; the reconciliation window is applied afterwards.
func (c *Client) ListBookings(ctx context.Context, employeeID int) ([]reconcile.BookingRecord, error) {
	path := "/employer/bookings?" + url.Values{"employee_id": {strconv.Itoa(employeeID)}}.Encode()
	data, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("listing bookings: %w", err)
	}

	bookings, err := DecodeBookings(data)
	if err != nil {
		return nil, fmt.Errorf("parsing bookings response: %w", err)
	}
	return bookings, nil
}
