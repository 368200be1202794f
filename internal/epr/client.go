// Package epr implements the outbound HTTP client to the EPR service
// adapter (C8's ORU path transport): POST the base64-wrapped HL7 body
// with a bearer token, decode the responding ACK, and classify failures
// per spec.md §4.8's error taxonomy. Transient failures are retried and
// circuit-broken via internal/workerpool's resilience primitives.
package epr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/savegress/dhosconnector/internal/jwtauth"
	"github.com/savegress/dhosconnector/internal/workerpool/enterprise/resilience"
)

// Kind tags the classification of an outbound send failure, per
// spec.md §7.
type Kind int

const (
	KindNone Kind = iota
	KindMalformedAck
	KindRejected       // non-2xx
	KindUnavailable    // network/timeout
)

// SendError wraps a classified outbound failure.
type SendError struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("epr: send failed, status=%d", e.Status)
}

func (e *SendError) Unwrap() error { return e.Err }

// requestBody is the wire shape POSTed to the EPR adapter.
type requestBody struct {
	Type string `json:"type"`
	Body string `json:"body"`
}

type responseBody struct {
	Body string `json:"body"`
}

// Client sends HL7v2 content to the EPR service adapter.
type Client struct {
	BaseURL string
	Issuer  *jwtauth.Issuer
	HTTP    *http.Client

	Breaker *resilience.CircuitBreaker
	Retry   resilience.RetryPolicy
}

// NewClient builds a Client with the spec-mandated 15s outbound timeout
// and a default circuit breaker tuned for a single downstream dependency.
func NewClient(baseURL string, issuer *jwtauth.Issuer) *Client {
	return &Client{
		BaseURL: baseURL,
		Issuer:  issuer,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		Breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "epr-service-adapter",
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			HalfOpenMaxCalls: 1,
		}),
		Retry: resilience.DefaultRetryPolicy(),
	}
}

// Send POSTs content (raw HL7v2 text) and returns the decoded ACK text on
// a 2xx response with a non-empty body. Network/timeout errors return a
// *SendError{Kind: KindUnavailable}; non-2xx returns KindRejected; a 2xx
// with an empty body returns KindMalformedAck. A call refused by the open
// (or saturated half-open) circuit breaker also returns KindUnavailable.
func (c *Client) Send(ctx context.Context, content string) (string, error) {
	var ack string
	err := resilience.RetryWithCondition(ctx, c.Retry, retryableKind, func() error {
		return c.Breaker.Call(func() error {
			a, sendErr := c.doSend(ctx, content)
			if sendErr != nil {
				ack = ""
				return sendErr
			}
			ack = a
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			return "", &SendError{Kind: KindUnavailable, Err: err}
		}
		return "", err
	}
	return ack, nil
}

// retryableKind retries only network/timeout failures and circuit-open
// errors; a rejected or malformed response from the adapter itself is
// not worth repeating unchanged.
func retryableKind(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return true
	}
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind == KindUnavailable
	}
	return false
}

func (c *Client) doSend(ctx context.Context, content string) (string, error) {
	token, err := c.Issuer.Issue(time.Now())
	if err != nil {
		return "", &SendError{Kind: KindUnavailable, Err: err}
	}

	payload, err := json.Marshal(requestBody{Type: "hl7v2", Body: base64.StdEncoding.EncodeToString([]byte(content))})
	if err != nil {
		return "", &SendError{Kind: KindMalformedAck, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/epr/v1/hl7_message", bytes.NewReader(payload))
	if err != nil {
		return "", &SendError{Kind: KindUnavailable, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", &SendError{Kind: KindUnavailable, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &SendError{Kind: KindUnavailable, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &SendError{Kind: KindRejected, Status: resp.StatusCode, Err: fmt.Errorf("epr: non-2xx response %d: %s", resp.StatusCode, body)}
	}

	var decoded responseBody
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Body == "" {
		return "", &SendError{Kind: KindMalformedAck, Err: fmt.Errorf("epr: empty or malformed ack body")}
	}

	ackBytes, err := base64.StdEncoding.DecodeString(decoded.Body)
	if err != nil {
		return "", &SendError{Kind: KindMalformedAck, Err: err}
	}
	return string(ackBytes), nil
}
