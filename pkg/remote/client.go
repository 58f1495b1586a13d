package remote

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

	"fundwizard/pkg/logging"
	"fundwizard/pkg/metrics"
	"fundwizard/pkg/resilience"

	"go.uber.org/zap"
)

// ErrRemoteFailure is wrapped by every error the fund service reports,
// whether through an HTTP status or an application-level failure flag.
var ErrRemoteFailure = errors.New("remote: fund service failure")

// RemoteError is a failure reported by the fund service. Message is the
// service's own explanation and is empty when the body carried none.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("remote: status %d: %s", e.StatusCode, msg)
}

func (e *RemoteError) Unwrap() error {
	return ErrRemoteFailure
}

// Rejected reports whether the service answered but refused the request.
// Rejections do not count against the circuit breaker.
func (e *RemoteError) Rejected() bool {
	return e.StatusCode < http.StatusInternalServerError
}

// IsRemoteFailure reports whether err came from the fund service.
func IsRemoteFailure(err error) bool {
	return errors.Is(err, ErrRemoteFailure)
}

// Message returns the service's message carried by err, or "" when there is
// none.
func Message(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Message
	}
	return ""
}

// IdempotencyHeader carries the submission token on mutating calls.
const IdempotencyHeader = "Idempotency-Key"

const maxBodyBytes = 1 << 20

// Config configures a Client.
type Config struct {
	BaseURL string            `yaml:"base_url"`
	Guard   resilience.Config `yaml:"guard"`
}

// DefaultConfig points at a local fund service.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8000",
		Guard:   resilience.DefaultConfig(),
	}
}

// Client talks JSON over HTTP to the fund service. Calls run through a
// resilience.Guard, so they are bounded in time and stop once the service
// keeps failing.
type Client struct {
	base   string
	http   *http.Client
	guard  *resilience.Guard
	logger *logging.Logger
}

// NewClient creates a Client. A nil httpClient uses http.DefaultClient.
func NewClient(config Config, httpClient *http.Client, collector metrics.Collector, logger *logging.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger = logging.OrGlobal(logger)

	guard := resilience.NewGuard("fund-service", config.Guard,
		resilience.WithMetrics(collector),
		resilience.WithLogger(logger),
		resilience.WithSuccessFilter(func(err error) bool {
			var re *RemoteError
			return errors.As(err, &re) && re.Rejected()
		}),
	)

	return &Client{
		base:   strings.TrimRight(config.BaseURL, "/"),
		http:   httpClient,
		guard:  guard,
		logger: logger.Named("remote"),
	}
}

// Guard exposes the client's breaker, mainly for health reporting.
func (c *Client) Guard() *resilience.Guard {
	return c.guard
}

type call struct {
	op          string
	method      string
	path        string
	idempotency string
	in          any
	out         any
}

func (c *Client) do(ctx context.Context, cl call) error {
	return c.guard.Execute(ctx, cl.op, func(ctx context.Context) error {
		return c.roundTrip(ctx, cl)
	})
}

func (c *Client) roundTrip(ctx context.Context, cl call) error {
	var body io.Reader
	if cl.in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(cl.in); err != nil {
			return fmt.Errorf("remote %s: encode: %w", cl.op, err)
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.base+cl.path, body)
	if err != nil {
		return fmt.Errorf("remote %s: %w", cl.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.idempotency != "" {
		req.Header.Set(IdempotencyHeader, cl.idempotency)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote %s: %w", cl.op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("remote %s: read body: %w", cl.op, err)
	}

	c.logger.Debug("fund service call",
		zap.String("op", cl.op),
		zap.String("method", cl.method),
		zap.String("path", cl.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode/100 != 2 {
		return &RemoteError{
			StatusCode: resp.StatusCode,
			Message:    extractMessage(raw),
		}
	}

	if cl.out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, cl.out); err != nil {
		return fmt.Errorf("remote %s: decode: %w", cl.op, err)
	}
	return nil
}

// extractMessage pulls a readable message out of an error body, preferring
// "message" over "error".
func extractMessage(raw []byte) string {
	var body map[string]any
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	for _, field := range []string{"message", "error"} {
		if s, ok := body[field].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// rejected builds the error for a 2xx response whose success flag is false.
func rejected(status int, message string) error {
	return &RemoteError{StatusCode: status, Message: strings.TrimSpace(message)}
}

// malformed builds the error for a 2xx response that lacks what the call
// needs. The detail stays in the error text; the service gave no message to
// show.
func malformed(detail string) error {
	return fmt.Errorf("%s: %w", detail, &RemoteError{StatusCode: http.StatusOK})
}
