package melcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public MELCloud endpoint.
const DefaultBaseURL = "https://app.melcloud.com/Mitsubishi.Wifi.Client/"

const (
	defaultAppVersion = "1.9.3.0"
	defaultTimeout    = 15 * time.Second
	contextKeyHeader  = "X-MitsContextKey"
	maxResponseBytes  = 4 << 20
)

// Logger is the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config holds connection settings for the client.
type Config struct {
	BaseURL    string
	AppVersion string
	Language   int
	Timeout    time.Duration
}

// Client talks to the MELCloud REST API.
type Client struct {
	baseURL    string
	appVersion string
	language   int
	httpClient *http.Client
	logger     Logger
}

// NewClient creates a client. Zero-valued config fields take defaults.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	appVersion := cfg.AppVersion
	if appVersion == "" {
		appVersion = defaultAppVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:    baseURL,
		appVersion: appVersion,
		language:   cfg.Language,
		httpClient: &http.Client{Timeout: timeout},
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for request diagnostics.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	form := url.Values{}
	form.Set("AppVersion", c.appVersion)
	form.Set("CaptchaChallenge", "")
	form.Set("CaptchaResponse", "")
	form.Set("Email", email)
	form.Set("Language", strconv.Itoa(c.language))
	form.Set("Password", password)
	form.Set("Persist", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"Login/ClientLogin",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp loginResponse
	if err := c.do(req, "login", &resp); err != nil {
		return nil, err
	}
	if resp.LoginData == nil || resp.LoginData.ContextKey == "" {
		if resp.ErrorID != nil {
			return nil, fmt.Errorf("%w: error id %d", ErrLoginFailed, *resp.ErrorID)
		}
		return nil, ErrLoginFailed
	}

	return NewSession(resp.LoginData.ContextKey, resp.LoginData.UseFahrenheit), nil
}

// ListDevices returns every unit in every building visible to the account.
func (c *Client) ListDevices(ctx context.Context, token string) ([]Device, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "User/ListDevices", token, nil)
	if err != nil {
		return nil, err
	}

	var buildings []building
	if err := c.do(req, "list_devices", &buildings); err != nil {
		return nil, err
	}

	var devices []Device
	for _, b := range buildings {
		devices = append(devices, b.devices()...)
	}
	return devices, nil
}

// FetchDevice returns the current snapshot of one unit.
func (c *Client) FetchDevice(ctx context.Context, token string, deviceID, buildingID int) (*Snapshot, error) {
	path := fmt.Sprintf("Device/Get?id=%d&buildingID=%d", deviceID, buildingID)
	req, err := c.newRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := c.do(req, "device_get", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// UpdateDevice sends a modified snapshot. Only fields named by
// snap.EffectiveFlags are applied by MELCloud.
func (c *Client) UpdateDevice(ctx context.Context, token string, snap *Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "Device/SetAta", token, body)
	if err != nil {
		return err
	}
	return c.do(req, "device_set", nil)
}

// UpdateDisplayUnits changes the account-wide temperature display unit.
func (c *Client) UpdateDisplayUnits(ctx context.Context, token string, useFahrenheit bool) error {
	body, err := json.Marshal(newApplicationOptions(useFahrenheit))
	if err != nil {
		return fmt.Errorf("encoding application options: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "User/UpdateApplicationOptions", token, body)
	if err != nil {
		return err
	}
	return c.do(req, "update_application_options", nil)
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body []byte) (*http.Request, error) {
	if token == "" {
		return nil, ErrNoSession
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request %s: %w", path, err)
	}

	req.Header.Set(contextKeyHeader, token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do executes req and decodes a JSON body into out when out is non-nil.
func (c *Client) do(req *http.Request, endpoint string, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	apiDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		apiRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	apiRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: reading body: %w", endpoint, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", endpoint, ErrUnauthorized)
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := headerInt(resp, "Retry-After")
		retryAfterGauge.Set(float64(retryAfter))
		c.logger.Warn("melcloud rate limited", "endpoint", endpoint, "retry_after", retryAfter)
		return fmt.Errorf("%s: %w (retry after %ds)", endpoint, ErrRateLimited, retryAfter)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%s: %w %d", endpoint, ErrUnexpectedStatus, resp.StatusCode)
	}

	if isHTML(body) {
		return fmt.Errorf("%s: %w: html error page", endpoint, ErrMalformedResponse)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Debug("melcloud response not json", "endpoint", endpoint, "bytes", len(body))
		return fmt.Errorf("%s: %w: %v", endpoint, ErrMalformedResponse, err)
	}
	return nil
}

func isHTML(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return bytes.HasPrefix(bytes.ToLower(trimmed), []byte("<!doctype html")) ||
		bytes.HasPrefix(bytes.ToLower(trimmed), []byte("<html"))
}

func headerInt(resp *http.Response, key string) int {
	value := resp.Header.Get(key)
	if value == "" {
		return 0
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}
