package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Backend turns a prompt into generated text.
type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

var (
	ErrBackendCallFailed   = errors.New("llm backend call failed")
	ErrBackendTimeout      = errors.New("llm backend timed out")
	ErrBackendUnconfigured = errors.New("no llm backend configured")
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 1024
)

// BackendOptions are shared by every backend variant.
type BackendOptions struct {
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

func (o BackendOptions) withDefaults() BackendOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature < 0 {
		o.Temperature = DefaultTemperature
	}
	return o
}

func (o BackendOptions) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: o.Timeout}
}

// CallError describes a failed backend request. StatusCode is zero when no
// response was received.
type CallError struct {
	Backend    string
	StatusCode int
	Body       string
	Timeout    bool
	Err        error
}

func (e *CallError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s request timed out: %v", e.Backend, e.Err)
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s response status %d: %s", e.Backend, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s request failed: %v", e.Backend, e.Err)
	}
}

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) Is(target error) bool {
	return target == ErrBackendCallFailed || (e.Timeout && target == ErrBackendTimeout)
}

// postJSON sends payload and returns the raw 2xx response body.
func postJSON(ctx context.Context, client *http.Client, backend, url string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &CallError{Backend: backend, Err: fmt.Errorf("marshal request failed: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &CallError{Backend: backend, Err: fmt.Errorf("build request failed: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &CallError{Backend: backend, Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CallError{Backend: backend, StatusCode: resp.StatusCode, Timeout: isTimeout(err), Err: fmt.Errorf("read response failed: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &CallError{
			Backend:    backend,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	return raw, nil
}

// decodeResponse parses a 2xx body; a malformed body is still a failed call.
func decodeResponse(backend string, raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return &CallError{Backend: backend, StatusCode: http.StatusOK, Body: string(raw), Err: fmt.Errorf("parse response failed: %w", err)}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
