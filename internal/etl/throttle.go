package etl

import (
	"context"
	"iter"

	"github.com/BartekS5/streamkit/internal/stream"
	"golang.org/x/time/rate"
)

// NewThrottle returns a limiter allowing perSecond records per second with a
// burst of one second's worth, or nil when perSecond is not positive.
func NewThrottle(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Throttle delays each record of seq until limiter grants it. A nil limiter
// returns seq unchanged.
func Throttle(ctx context.Context, seq iter.Seq2[stream.Record, error], limiter *rate.Limiter) iter.Seq2[stream.Record, error] {
	if limiter == nil {
		return seq
	}
	return func(yield func(stream.Record, error) bool) {
		for rec, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			if err := limiter.Wait(ctx); err != nil {
				yield(nil, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}
