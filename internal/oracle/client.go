// Package oracle calls the external fraud-scoring service.
//
// Scoring never fails a transfer: every error path yields a score of 0 and a
// warning log. The call runs on a context detached from the caller's
// cancellation and bounded by its own timeout.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/circuitbreaker"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/fraud"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/logging"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/metrics"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/traces"
)

// maxResponseBytes caps how much of a /predict response is read.
const maxResponseBytes = 64 << 10

var errBadStatus = errors.New("unexpected status")

// Scorer assigns a fraud percentage in [0, 100] to a feature vector.
type Scorer interface {
	Score(ctx context.Context, f *fraud.Features) float64
}

// Disabled scores everything 0. It is used when no oracle is configured.
type Disabled struct{}

func (Disabled) Score(context.Context, *fraud.Features) float64 { return 0 }

// Prediction is the oracle's response body.
type Prediction struct {
	RiskScore       *float64           `json:"risk_score"`
	FraudPercentage *float64           `json:"fraud_percentage"`
	ModelScores     map[string]float64 `json:"model_scores,omitempty"`
}

// Client is an HTTP Scorer for POST {baseURL}/predict.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	breaker  *circuitbreaker.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBreaker overrides the default circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// New creates a client for the oracle at baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		endpoint: baseURL + "/predict",
		timeout:  timeout,
		http:     &http.Client{},
		breaker:  circuitbreaker.New("oracle", 5, 30*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Score returns the fraud percentage for f, or 0 if the oracle is
// unavailable, slow, or answers with something unusable.
func (c *Client) Score(ctx context.Context, f *fraud.Features) float64 {
	log := logging.L(ctx)

	if !c.breaker.Allow() {
		metrics.OracleRequestsTotal.WithLabelValues("skipped").Inc()
		log.Warn("risk oracle circuit open, scoring 0")
		return 0
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	ctx, span := traces.StartSpan(ctx, "oracle.Score")
	defer span.End()

	start := time.Now()
	pred, err := c.predict(ctx, f)
	metrics.OracleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.breaker.RecordFailure()
		result := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			result = "timeout"
		}
		metrics.OracleRequestsTotal.WithLabelValues(result).Inc()
		traces.Fail(span, err)
		log.Warn("risk oracle call failed, scoring 0", "error", err)
		return 0
	}
	c.breaker.RecordSuccess()

	score, ok := Normalize(pred)
	if !ok {
		metrics.OracleRequestsTotal.WithLabelValues("invalid").Inc()
		log.Warn("risk oracle returned unusable score, scoring 0",
			"risk_score", pred.RiskScore, "fraud_percentage", pred.FraudPercentage)
		return 0
	}
	metrics.OracleRequestsTotal.WithLabelValues("ok").Inc()
	span.SetAttributes(traces.FraudPercentage(score))
	return score
}

func (c *Client) predict(ctx context.Context, f *fraud.Features) (*Prediction, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode features: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w %d", errBadStatus, resp.StatusCode)
	}

	var pred Prediction
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&pred); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	return &pred, nil
}

// Normalize maps a prediction onto [0, 100]. An explicit fraud_percentage
// wins when in range; otherwise a risk_score in [0, 1] is scaled by 100 and
// rounded to two decimals. Anything else is unusable.
func Normalize(p *Prediction) (float64, bool) {
	if p == nil {
		return 0, false
	}
	if v := p.FraudPercentage; v != nil && validRange(*v, 100) {
		return *v, true
	}
	if v := p.RiskScore; v != nil && validRange(*v, 1) {
		return math.Round(*v*100*100) / 100, true
	}
	return 0, false
}

func validRange(v, max float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= max
}
