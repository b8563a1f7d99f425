// Package dispatch performs a single signed webhook attempt and classifies
// the result. It never mutates messages; callers apply outcomes.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/models"
	"github.com/Chronic700/Agent-Connect/internal/version"
)

const (
	defaultTimeout = 30 * time.Second

	// maxErrorBodyBytes bounds how much of a failure response body is
	// recorded on the message.
	maxErrorBodyBytes = 200
)

type OutcomeKind int

const (
	// OutcomeSuccess: the recipient acknowledged with a 2xx.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeTerminal: the recipient rejected the message on its merits
	// (4xx); no further retries.
	OutcomeTerminal
	// OutcomeTransient: 5xx or transport failure; retry per the ladder.
	OutcomeTransient
)

// Outcome is the classified result of one dispatch attempt.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

func (o Outcome) Success() bool {
	return o.Kind == OutcomeSuccess
}

type Dispatcher struct {
	client    *http.Client
	userAgent string
}

type Option func(*Dispatcher)

// WithTimeout sets the total per-attempt HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.client.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		d.client = client
	}
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:    &http.Client{Timeout: defaultTimeout},
		userAgent: version.UserAgent(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch performs one signed POST to the recipient's webhook and
// classifies the result. The payload bytes are deterministic per message,
// so every retry carries an identical body and signature.
func (d *Dispatcher) Dispatch(ctx context.Context, msg models.Message, recipient models.Agent) Outcome {
	body, err := NewPayload(msg).Bytes()
	if err != nil {
		// Content was validated at enqueue; treat as transient so the
		// message is not silently dropped.
		return Outcome{Kind: OutcomeTransient, Reason: fmt.Sprintf("marshal payload: %s", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, recipient.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: OutcomeTerminal, Reason: fmt.Sprintf("invalid webhook url: %s", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set(SignatureHeader, SignatureHeaderValue(recipient.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return Outcome{Kind: OutcomeTransient, Reason: classifyNetworkError(err)}
	}
	defer resp.Body.Close()

	return classifyResponse(resp)
}

func classifyResponse(resp *http.Response) Outcome {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Outcome{Kind: OutcomeSuccess}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Outcome{Kind: OutcomeTerminal, Reason: responseReason(resp)}
	default:
		// 5xx, and anything unexpected (1xx/3xx leak through redirects
		// disabled upstream); retry.
		return Outcome{Kind: OutcomeTransient, Reason: responseReason(resp)}
	}
}

func responseReason(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if len(body) == 0 {
		return fmt.Sprintf("webhook returned %d", resp.StatusCode)
	}
	return fmt.Sprintf("webhook returned %d: %s", resp.StatusCode, string(body))
}

// classifyNetworkError returns a descriptive reason for transport failures.
// All of these are transient from the retry scheduler's point of view.
func classifyNetworkError(err error) string {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "no such host"):
		return "dns error: " + errStr
	case strings.Contains(errStr, "connection refused"):
		return "connection refused"
	case strings.Contains(errStr, "connection reset"):
		return "connection reset"
	case strings.Contains(errStr, "network is unreachable"):
		return "network unreachable"
	case strings.Contains(errStr, "i/o timeout"),
		strings.Contains(errStr, "context deadline exceeded"),
		strings.Contains(errStr, "Client.Timeout exceeded"):
		return "request timed out"
	case strings.Contains(errStr, "tls:"), strings.Contains(errStr, "x509:"):
		return "tls error: " + errStr
	default:
		return "network error: " + errStr
	}
}
