package llm

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// failureClass buckets a completion error for retry purposes.
type failureClass int

const (
	failureRetryRateLimit failureClass = iota
	failureRetryTimeout
	failureRetryConnection
	failureRetryOther
	failurePermanent
)

// RetryPolicy controls how the gateway retries failed completion calls.
// Rate limits back off exponentially with jitter, timeouts wait a short
// fixed delay, connection errors wait longer, and auth/bad-request errors
// are never retried.
type RetryPolicy struct {
	MaxAttempts      int
	RateLimitBase    time.Duration
	TimeoutDelay     time.Duration
	ConnectionDelay  time.Duration
	OtherDelay       time.Duration
	JitterMax        time.Duration
	ConnectionJitter time.Duration
}

// DefaultRetryPolicy mirrors production tuning: three attempts with
// 1s/2s/4s rate-limit backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		RateLimitBase:    time.Second,
		TimeoutDelay:     2 * time.Second,
		ConnectionDelay:  5 * time.Second,
		OtherDelay:       3 * time.Second,
		JitterMax:        time.Second,
		ConnectionJitter: 2 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.RateLimitBase <= 0 {
		p.RateLimitBase = time.Second
	}
	return p
}

// delayFor returns the wait before the next attempt, or false when the
// error class is not retryable.
func (p RetryPolicy) delayFor(class failureClass, attempt int) (time.Duration, bool) {
	switch class {
	case failurePermanent:
		return 0, false
	case failureRetryRateLimit:
		backoff := p.RateLimitBase << attempt
		return backoff + jitter(p.JitterMax), true
	case failureRetryTimeout:
		return p.TimeoutDelay + jitter(p.JitterMax), true
	case failureRetryConnection:
		return p.ConnectionDelay + jitter(p.ConnectionJitter), true
	default:
		return p.OtherDelay + jitter(p.JitterMax), true
	}
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// classifyError maps an OpenAI client error onto a retry class.
func classifyError(err error) failureClass {
	if err == nil {
		return failurePermanent
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429:
			return failureRetryRateLimit
		case 400, 401, 403, 404:
			return failurePermanent
		case 408:
			return failureRetryTimeout
		}
		if apiErr.HTTPStatusCode >= 500 {
			return failureRetryOther
		}
		return failureRetryOther
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return failureRetryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return failureRetryTimeout
		}
		return failureRetryConnection
	}

	return failureRetryOther
}
