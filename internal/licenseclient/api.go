// Package licenseclient is the client side of the licensing protocol: an HTTP client for the
// license endpoints and a Context that tracks the device's activation state.
package licenseclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/schoolresults/server/internal/model"
)

const defaultHTTPTimeout = 15 * time.Second

// ErrUnreachable is returned when the license server could not be contacted
var ErrUnreachable = errors.New("license server unreachable")

// APIError is a {success:false} response from the license server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsNotFound reports whether err is a 404 from the license server
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsRejected reports whether the server answered with a client error (4xx), as opposed to
// failing or being unreachable
func IsRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// LicenseAPI is the set of server calls the Context makes
type LicenseAPI interface {
	Lookup(ctx context.Context, licenseKey, deviceID string) (Lookup, error)
	Recover(ctx context.Context, deviceID string) (Recovery, error)
	Activate(ctx context.Context, licenseKey, deviceID string) (Lookup, error)
	Release(ctx context.Context, licenseKey, deviceID string) error
	StartTrial(ctx context.Context, schoolName, deviceID string) (Trial, error)
}

// Lookup is the license state returned by lookup and activation
type Lookup struct {
	Data  model.LicenseView `json:"data"`
	Token string            `json:"token"`
}

// Recovery is the last known license state of this device
type Recovery struct {
	Data  model.RecoveredSession `json:"data"`
	Token string                 `json:"token"`
}

// Trial is a freshly provisioned trial license
type Trial struct {
	LicenseKey string            `json:"licenseKey"`
	Data       model.LicenseView `json:"data"`
	Token      string            `json:"token"`
}

// Client calls the license server over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL. A nil httpClient gets a default
// client with a 15s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Lookup calls POST /licenses/lookup. The returned token is bound to deviceID when the device
// is activated on the license.
func (c *Client) Lookup(ctx context.Context, licenseKey, deviceID string) (Lookup, error) {
	var out Lookup
	err := c.post(ctx, "/licenses/lookup", map[string]string{"licenseKey": licenseKey, "deviceId": deviceID}, &out)
	return out, err
}

// Recover calls POST /licenses/recover
func (c *Client) Recover(ctx context.Context, deviceID string) (Recovery, error) {
	var out Recovery
	err := c.post(ctx, "/licenses/recover", map[string]string{"deviceId": deviceID}, &out)
	return out, err
}

// Activate calls POST /licenses/activate
func (c *Client) Activate(ctx context.Context, licenseKey, deviceID string) (Lookup, error) {
	var out Lookup
	err := c.post(ctx, "/licenses/activate", map[string]string{"licenseKey": licenseKey, "deviceId": deviceID}, &out)
	return out, err
}

// Release calls POST /licenses/release
func (c *Client) Release(ctx context.Context, licenseKey, deviceID string) error {
	return c.post(ctx, "/licenses/release", map[string]string{"licenseKey": licenseKey, "deviceId": deviceID}, nil)
}

// StartTrial calls POST /licenses/trial
func (c *Client) StartTrial(ctx context.Context, schoolName, deviceID string) (Trial, error) {
	var out Trial
	err := c.post(ctx, "/licenses/trial", map[string]string{"schoolName": schoolName, "deviceId": deviceID}, &out)
	return out, err
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrUnreachable, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("unexpected response (status %d)", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
