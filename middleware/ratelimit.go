package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/arcllm/arcllm"
)

// RateLimitConfig is validated at construction.
type RateLimitConfig struct {
	RequestsPerMinute float64
	BurstCapacity     int
}

// Validate enforces the construction-time bounds.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerMinute <= 0 {
		return arcllm.NewConfigError("rate_limit", "requests_per_minute must be > 0")
	}
	if c.BurstCapacity < 1 {
		return arcllm.NewConfigError("rate_limit", "burst_capacity must be >= 1")
	}
	return nil
}

// buckets is the package-scoped map of provider name -> shared token
// bucket. The first constructor for a given name sets its parameters;
// every later constructor for that same name shares the existing bucket
// and its own config is ignored, so one provider gets one bucket no
// matter how many model handles the caller creates.
// golang.org/x/time/rate already implements a continuous-refill token
// bucket, and its Reserve() gives the "compute wait under the lock, sleep
// outside it" shape directly: the limiter's internal mutex is released
// before the caller sleeps out its Delay().
var (
	bucketMu sync.Mutex
	buckets  = map[string]*rate.Limiter{}
)

func sharedBucket(providerName string, cfg RateLimitConfig) *rate.Limiter {
	bucketMu.Lock()
	defer bucketMu.Unlock()
	if b, ok := buckets[providerName]; ok {
		return b
	}
	b := rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), cfg.BurstCapacity)
	buckets[providerName] = b
	return b
}

// ResetRateLimitBuckets drops every shared bucket. Called only by the
// registry's test hook (ClearCache) so test isolation is deterministic.
func ResetRateLimitBuckets() {
	bucketMu.Lock()
	defer bucketMu.Unlock()
	buckets = map[string]*rate.Limiter{}
}

// RateLimit throttles calls to Inner against a bucket shared by every
// RateLimit instance constructed for the same provider name. Invoke
// never holds the bucket's lock while sleeping: Reserve() returns
// immediately with a Delay(), and only the sleep itself — not the
// bucket state mutation — happens outside any lock, so concurrent
// waiters compute and sleep in parallel rather than serializing.
type RateLimit struct {
	Base
	bucket *rate.Limiter
	Logger arcllm.Logger
}

// NewRateLimit constructs a RateLimit middleware. Validation runs even
// though the shared bucket may already exist under different parameters
// (a later constructor's params are simply ignored once a bucket exists)
// — a malformed config is still rejected up front.
func NewRateLimit(inner arcllm.Provider, cfg RateLimitConfig, logger arcllm.Logger) (*RateLimit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = arcllm.NoopLogger{}
	}
	return &RateLimit{
		Base:   Base{Inner: inner},
		bucket: sharedBucket(inner.Name(), cfg),
		Logger: logger,
	}, nil
}

func (r *RateLimit) Invoke(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
	var wait time.Duration
	err := WithSpan(ctx, "arcllm.rate_limit", func(ctx context.Context, span arcllm.Span) error {
		res := r.bucket.Reserve()
		if !res.OK() {
			return arcllm.NewConfigError("rate_limit", "burst_capacity too small to ever admit a request")
		}
		wait = res.Delay()
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				res.Cancel()
				return ctx.Err()
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if wait > 0 {
		r.Logger.Warn(ctx, "rate limit wait", arcllm.F("provider", r.Name()), arcllm.F("wait_seconds", wait.Seconds()))
	}
	return r.Inner.Invoke(ctx, req)
}
