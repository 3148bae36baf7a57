package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/patientsignal/signal-workflows/internal/metrics"
)

// ErrCircuitOpen is returned while a platform's breaker refuses calls
var ErrCircuitOpen = errors.New("platform circuit open")

// Guard wraps every call to one platform with a token bucket, a circuit breaker
// and retry with jittered exponential backoff.
type Guard struct {
	platform string
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	policy   RetryPolicy
	logger   zerolog.Logger
}

type GuardOptions struct {
	RPS    float64
	Burst  int
	Policy RetryPolicy
	// BreakerThreshold is the number of consecutive retryable failures that opens the circuit
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

func NewGuard(platform string, opts GuardOptions, logger zerolog.Logger) *Guard {
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	threshold := opts.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := opts.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	g := &Guard{
		platform: platform,
		limiter:  rate.NewLimiter(limit, burst),
		policy:   opts.Policy,
		logger:   logger.With().Str("platform", platform).Logger(),
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        platform,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Only upstream trouble trips the breaker; a 400 is our fault, not theirs.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return g
}

// Do executes call under the guard. Rate-limit waits count against ctx.
func (g *Guard) Do(ctx context.Context, call func(ctx context.Context) (*QueryResponse, error)) (*QueryResponse, error) {
	start := time.Now()
	defer func() {
		metrics.PlatformQueryDuration.WithLabelValues(g.platform).Observe(time.Since(start).Seconds())
	}()

	var resp *QueryResponse
	err := Retry(ctx, g.policy, func(ctx context.Context) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		out, err := g.breaker.Execute(func() (interface{}, error) {
			return call(ctx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%s: %w", g.platform, ErrCircuitOpen)
		}
		if err != nil {
			return err
		}
		resp = out.(*QueryResponse)
		return nil
	}, func(err error, wait time.Duration) {
		metrics.PlatformRetries.WithLabelValues(g.platform).Inc()
		g.logger.Warn().Err(err).Dur("wait", wait).Msg("⚠️ retrying platform call")
	})

	switch {
	case err == nil:
		metrics.PlatformQueries.WithLabelValues(g.platform, metrics.OutcomeSuccess).Inc()
	case errors.Is(err, ErrCircuitOpen):
		metrics.PlatformQueries.WithLabelValues(g.platform, metrics.OutcomeOpen).Inc()
	default:
		metrics.PlatformQueries.WithLabelValues(g.platform, metrics.OutcomeError).Inc()
	}
	return resp, err
}
