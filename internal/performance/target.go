package performance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/wesleyorama2/stampede/pkg/jsonpath"
)

// Error kinds attached to failed outcomes.
const (
	ErrorKindTimeout    = "timeout"
	ErrorKindConnection = "connection"
	ErrorKindStatus     = "status"
	ErrorKindCheck      = "check"
	ErrorKindRequest    = "request"
)

// DefaultRequestTimeout applies when a template has no timeout.
const DefaultRequestTimeout = 30 * time.Second

// RequestTemplate defines the single HTTP request issued per iteration.
type RequestTemplate struct {
	// HTTP method (default GET)
	Method string `json:"method" yaml:"method"`

	// URL of the target
	URL string `json:"url" yaml:"url"`

	// Headers sent with every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Timeout bounds one request including reading the body
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Expect lists the conditions a response must meet to count as a success
	Expect Expectation `json:"expect,omitempty" yaml:"expect,omitempty"`
}

// Expectation holds the response checks of a request.
type Expectation struct {
	// Status lists the accepted status codes. When empty any status below
	// 400 is accepted.
	Status []int `json:"status,omitempty" yaml:"status,omitempty"`

	// JSON lists body checks evaluated in order.
	JSON []JSONCheck `json:"json,omitempty" yaml:"json,omitempty"`
}

// JSONCheck asserts that the value at Path equals Equals.
type JSONCheck struct {
	Path   string      `json:"path" yaml:"path"`
	Equals interface{} `json:"equals" yaml:"equals"`
}

// RequestError is a per-iteration failure. It is recorded as a failed
// outcome and never stops the VU.
type RequestError struct {
	Kind string
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// RequestResult contains the result of a single HTTP request.
type RequestResult struct {
	StartTime     time.Time
	Latency       time.Duration
	StatusCode    int
	BytesReceived int64
	Err           *RequestError
}

// Success reports whether the request met every expectation.
func (r RequestResult) Success() bool {
	return r.Err == nil
}

// Do issues the request and applies the expectations.
//
// The request runs under its own timeout and is detached from ctx
// cancellation, so a stop signal never aborts a request that is in flight.
func (t *RequestTemplate) Do(ctx context.Context, client *http.Client) RequestResult {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	result := RequestResult{StartTime: time.Now()}

	req, err := t.build(reqCtx)
	if err != nil {
		result.Err = &RequestError{Kind: ErrorKindRequest, Err: err}
		return result
	}

	resp, err := client.Do(req)
	if err != nil {
		result.Latency = time.Since(result.StartTime)
		result.Err = classifyError(err)
		return result
	}
	defer resp.Body.Close()

	// Read the full body so the connection can be reused.
	body, err := io.ReadAll(resp.Body)
	result.Latency = time.Since(result.StartTime)
	result.StatusCode = resp.StatusCode
	result.BytesReceived = int64(len(body))
	if err != nil {
		result.Err = classifyError(fmt.Errorf("failed to read response body: %w", err))
		return result
	}

	if err := t.Expect.checkStatus(resp.StatusCode); err != nil {
		result.Err = &RequestError{Kind: ErrorKindStatus, Err: err}
		return result
	}
	if err := t.Expect.checkBody(body); err != nil {
		result.Err = &RequestError{Kind: ErrorKindCheck, Err: err}
	}
	return result
}

func (t *RequestTemplate) build(ctx context.Context) (*http.Request, error) {
	method := t.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, t.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for key, value := range t.Headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

func (e Expectation) checkStatus(code int) error {
	if len(e.Status) == 0 {
		if code >= 400 {
			return fmt.Errorf("unexpected status %d", code)
		}
		return nil
	}
	if !slices.Contains(e.Status, code) {
		return fmt.Errorf("unexpected status %d, expected one of %v", code, e.Status)
	}
	return nil
}

func (e Expectation) checkBody(body []byte) error {
	for _, check := range e.JSON {
		value, err := jsonpath.Lookup(body, check.Path)
		if err != nil {
			return fmt.Errorf("json %s: %w", check.Path, err)
		}
		if !jsonpath.Equal(value, check.Equals) {
			return fmt.Errorf("json %s: got %s, expected %v", check.Path, value.Raw, check.Equals)
		}
	}
	return nil
}

// classifyError maps a transport error to an error kind.
func classifyError(err error) *RequestError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestError{Kind: ErrorKindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &RequestError{Kind: ErrorKindTimeout, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &RequestError{Kind: ErrorKindConnection, Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &RequestError{Kind: ErrorKindConnection, Err: err}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &RequestError{Kind: ErrorKindConnection, Err: err}
	}
	return &RequestError{Kind: ErrorKindRequest, Err: err}
}
