// Package callback implements at-most-once, best-effort callback delivery:
// a timed-out, retried HTTP POST of the final job result, gated by an SSRF
// guard applied at submission time.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/metrics"
)

// Payload is the wire format POSTed to job.callbackUrl.
type Payload struct {
	JobID  string            `json:"jobId"`
	Status envelope.Status   `json:"status"`
	Result *envelope.Result  `json:"result,omitempty"`
}

// Dispatcher sends final-result callbacks with a per-attempt timeout, a
// capped number of attempts, and exponential backoff between attempts.
type Dispatcher struct {
	client          *http.Client
	logger          *zap.Logger
	timeout         time.Duration
	maxRetries      int
	apiRetryDelayMs int
	metrics         *metrics.Collector
}

// New constructs a Dispatcher. timeout bounds each individual attempt;
// maxRetries is the total number of attempts; apiRetryDelayMs is the
// backoff base. mc may be nil.
func New(logger *zap.Logger, timeout time.Duration, maxRetries int, apiRetryDelayMs int, mc *metrics.Collector) *Dispatcher {
	return &Dispatcher{
		client:          &http.Client{},
		logger:          logger,
		timeout:         timeout,
		maxRetries:      maxRetries,
		apiRetryDelayMs: apiRetryDelayMs,
		metrics:         mc,
	}
}

// Deliver POSTs the payload to url, making up to maxRetries attempts in total
// (at least one) while responses are non-2xx or the request fails, with
// apiRetryDelayMs * 2^(attempt-1) backoff between attempts. It never returns an error the caller should act on beyond
// logging: callback failures are non-fatal to the job.
func (d *Dispatcher) Deliver(ctx context.Context, url string, payload Payload) {
	body, err := json.Marshal(payload)
	if err != nil {
		d.logWarn("failed to marshal callback payload", payload.JobID, err)
		return
	}

	maxRetries := d.maxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ok, err := d.attempt(ctx, url, body)
		if ok {
			return
		}
		if err != nil {
			d.logWarn(fmt.Sprintf("callback attempt %d failed", attempt), payload.JobID, err)
		}
		if attempt == maxRetries {
			break
		}
		delay := time.Duration(d.apiRetryDelayMs) * pow2(attempt-1) * time.Millisecond
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// pow2 returns 2^n for n >= 0.
func pow2(n int) time.Duration {
	result := time.Duration(1)
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

func (d *Dispatcher) attempt(parent context.Context, url string, body []byte) (bool, error) {
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.recordAttempt("failure")
		return false, fmt.Errorf("callback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.recordAttempt("success")
		return true, nil
	}
	d.recordAttempt("failure")
	return false, fmt.Errorf("callback returned status %d", resp.StatusCode)
}

func (d *Dispatcher) recordAttempt(outcome string) {
	if d.metrics == nil {
		return
	}
	d.metrics.CallbackAttempts.WithLabelValues(outcome).Inc()
}

func (d *Dispatcher) logWarn(msg, jobID string, err error) {
	if d.logger == nil {
		return
	}
	d.logger.Warn(msg, zap.String("job_id", jobID), zap.Error(err))
}
