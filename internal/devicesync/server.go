package devicesync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/orgdesk/internal/devicetoken"
)

// APIError is a non-2xx answer from the orgdesk API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("orgdesk api: status %d", e.Status)
	}
	return fmt.Sprintf("orgdesk api: status %d: %s", e.Status, e.Message)
}

// UploadResult mirrors the device check-in response.
type UploadResult struct {
	Processed int       `json:"processed"`
	Skipped   int       `json:"skipped"`
	Unmatched int       `json:"unmatched"`
	Watermark time.Time `json:"-"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type uploadRecord struct {
	DeviceUserID string `json:"deviceUserId"`
	Timestamp    string `json:"timestamp"`
	Punch        *int   `json:"punch,omitempty"`
}

type uploadRequest struct {
	DeviceID string         `json:"deviceId"`
	Records  []uploadRecord `json:"records"`
}

// ServerClient posts device records to the orgdesk API with short-lived device tokens.
type ServerClient struct {
	baseURL  string
	deviceID string
	secret   []byte
	http     *http.Client
	limiter  *rate.Limiter
	now      func() time.Time
}

// ServerOption customizes a ServerClient.
type ServerOption func(*ServerClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) ServerOption {
	return func(c *ServerClient) { c.http = client }
}

// WithUploadRate paces upload requests. A zero limit disables pacing.
func WithUploadRate(limit rate.Limit, burst int) ServerOption {
	return func(c *ServerClient) {
		if limit <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithClock overrides the clock used for token issue times.
func WithClock(now func() time.Time) ServerOption {
	return func(c *ServerClient) { c.now = now }
}

func NewServerClient(baseURL, deviceID string, secret []byte, timeout time.Duration, opts ...ServerOption) *ServerClient {
	c := &ServerClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		deviceID: deviceID,
		secret:   secret,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(5), 1),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DeviceID returns the identifier this client signs for.
func (c *ServerClient) DeviceID() string {
	return c.deviceID
}

// Watermark returns the newest punch the server has accepted from this device.
func (c *ServerClient) Watermark(ctx context.Context) (time.Time, error) {
	var body struct {
		Watermark string `json:"watermark"`
	}
	path := "/api/attendance/devices/" + url.PathEscape(c.deviceID) + "/watermark"
	if err := c.call(ctx, http.MethodGet, path, nil, &body); err != nil {
		return time.Time{}, err
	}
	if body.Watermark == "" {
		return time.Time{}, nil
	}
	mark, err := time.Parse(time.RFC3339Nano, body.Watermark)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse watermark %q: %w", body.Watermark, err)
	}
	return mark, nil
}

// Upload sends one batch of punches.
func (c *ServerClient) Upload(ctx context.Context, punches []Punch) (UploadResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return UploadResult{}, err
		}
	}

	req := uploadRequest{DeviceID: c.deviceID, Records: make([]uploadRecord, 0, len(punches))}
	for _, p := range punches {
		req.Records = append(req.Records, uploadRecord{
			DeviceUserID: p.UserID,
			Timestamp:    p.Timestamp.UTC().Format(time.RFC3339Nano),
			Punch:        p.Punch,
		})
	}

	var body struct {
		UploadResult
		Watermark string `json:"watermark"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/attendance/device-checkin", req, &body); err != nil {
		return UploadResult{}, err
	}
	result := body.UploadResult
	if body.Watermark != "" {
		mark, err := time.Parse(time.RFC3339Nano, body.Watermark)
		if err != nil {
			return result, fmt.Errorf("parse watermark %q: %w", body.Watermark, err)
		}
		result.Watermark = mark
	}
	return result, nil
}

func (c *ServerClient) call(ctx context.Context, method, path string, payload, dst any) error {
	token, err := devicetoken.Sign(c.secret, c.deviceID, c.now(), devicetoken.DefaultTTL)
	if err != nil {
		return fmt.Errorf("sign device token: %w", err)
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build server request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	if dst != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			return fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return nil
}
