package middleware

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/arcllm/arcllm"
)

// DefaultRetryableStatusCodes is the default retryable set. 401/403 are
// deliberately never in it — they surface as AuthError, a type separate
// from APIError that classify never treats as retryable, not via a
// status-set subtraction.
var DefaultRetryableStatusCodes = []int{429, 500, 502, 503, 529}

// RetryConfig is validated at construction.
type RetryConfig struct {
	MaxRetries     int // attempt budget; up to MaxRetries+1 total attempts
	BackoffBase    float64
	MaxWait        float64
	RetryableCodes []int
}

func (c RetryConfig) Validate() error {
	if c.MaxRetries < 0 {
		return arcllm.NewConfigError("retry", "max_retries must be >= 0")
	}
	if c.BackoffBase <= 0 {
		return arcllm.NewConfigError("retry", "backoff_base must be > 0")
	}
	if c.MaxWait <= 0 {
		return arcllm.NewConfigError("retry", "max_wait must be > 0")
	}
	return nil
}

func (c RetryConfig) retryable(code int) bool {
	codes := c.RetryableCodes
	if codes == nil {
		codes = DefaultRetryableStatusCodes
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// Retry wraps Inner with exponential backoff and proportional jitter.
// Only APIError-with-retryable-status, ConnectError and TimeoutError
// trigger a retry; anything else (including AuthError and ConfigError)
// propagates on the first attempt.
type Retry struct {
	Base
	cfg RetryConfig
}

func NewRetry(inner arcllm.Provider, cfg RetryConfig) (*Retry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Retry{Base: Base{Inner: inner}, cfg: cfg}, nil
}

func (r *Retry) Invoke(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
	var resp *arcllm.LLMResponse

	parentErr := WithSpan(ctx, "arcllm.retry", func(ctx context.Context, parent arcllm.Span) error {
		for attempt := 0; ; attempt++ {
			var innerErr error
			willRetry := false
			_ = WithSpan(ctx, "arcllm.retry.attempt", func(ctx context.Context, attemptSpan arcllm.Span) error {
				resp, innerErr = r.Inner.Invoke(ctx, req)
				if innerErr == nil {
					return nil
				}
				_, retryable := r.classify(innerErr)
				willRetry = retryable && attempt < r.cfg.MaxRetries
				if willRetry {
					// A handled attempt is not a failure from the operator's
					// perspective: the exception becomes an event, the attempt
					// span's status stays OK.
					attemptSpan.AddEvent("exception", arcllm.F("error", innerErr.Error()))
					return nil
				}
				return innerErr
			})
			if innerErr == nil {
				return nil
			}
			if !willRetry {
				return innerErr
			}

			retryAfter, _ := r.classify(innerErr)
			wait := r.backoff(attempt)
			if retryAfter != nil && *retryAfter > wait {
				wait = *retryAfter
			}
			select {
			case <-time.After(time.Duration(wait * float64(time.Second))):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	if parentErr != nil {
		return nil, parentErr
	}
	return resp, nil
}

// classify reports whether err is retryable and, if it's an APIError,
// any Retry-After hint it carried.
func (r *Retry) classify(err error) (*float64, bool) {
	var apiErr *arcllm.APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter, r.cfg.retryable(apiErr.StatusCode)
	}
	var connErr *arcllm.ConnectError
	if errors.As(err, &connErr) {
		return nil, true
	}
	var timeoutErr *arcllm.TimeoutError
	if errors.As(err, &timeoutErr) {
		return nil, true
	}
	return nil, false
}

// backoff computes wait_n = min(max_wait, base*2^attempt +
// uniform(0, base*2^attempt)) — exponential growth with jitter whose
// upper bound scales with the current backoff rather than a fixed
// constant.
func (r *Retry) backoff(attempt int) float64 {
	grown := r.cfg.BackoffBase * math.Pow(2, float64(attempt))
	jitter := rand.Float64() * grown
	wait := grown + jitter
	if wait > r.cfg.MaxWait {
		wait = r.cfg.MaxWait
	}
	return wait
}
