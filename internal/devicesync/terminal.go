package devicesync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TerminalInfo describes the biometric terminal.
type TerminalInfo struct {
	SerialNumber string    `json:"serialNumber"`
	Model        string    `json:"model"`
	Firmware     string    `json:"firmware"`
	UserCount    int       `json:"userCount"`
	RecordCount  int       `json:"recordCount"`
	DeviceTime   time.Time `json:"deviceTime"`
}

// TerminalUser is an enrollment on the terminal. UserID is the employee's deviceUserId.
type TerminalUser struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   int    `json:"role"`
	CardNo string `json:"cardNo,omitempty"`
}

// Punch is one attendance record read from the terminal.
type Punch struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
	Punch     *int      `json:"punch,omitempty"`
}

// TerminalClient talks to a terminal gateway that exposes the device over JSON/HTTP.
type TerminalClient struct {
	baseURL string
	http    *http.Client
}

// NewTerminalClient returns a client for baseURL. A nil httpClient gets one with timeout.
func NewTerminalClient(baseURL string, httpClient *http.Client, timeout time.Duration) *TerminalClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &TerminalClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Info reads the terminal's identity and counters.
func (c *TerminalClient) Info(ctx context.Context) (TerminalInfo, error) {
	var info TerminalInfo
	err := c.get(ctx, "/info", nil, &info)
	return info, err
}

// Users lists enrolled users.
func (c *TerminalClient) Users(ctx context.Context) ([]TerminalUser, error) {
	var users []TerminalUser
	err := c.get(ctx, "/users", nil, &users)
	return users, err
}

// Attendance returns records newer than since. A zero since reads everything.
func (c *TerminalClient) Attendance(ctx context.Context, since time.Time) ([]Punch, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	var punches []Punch
	err := c.get(ctx, "/attendance", query, &punches)
	return punches, err
}

func (c *TerminalClient) get(ctx context.Context, path string, query url.Values, dst any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build terminal request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("terminal %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("terminal %s: unexpected status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode terminal %s: %w", path, err)
	}
	return nil
}
