package middleware

import (
	"context"
	"errors"
	"time"

	"spectro-rpc/message"
	"spectro-rpc/observability"
)

// Metrics records a counter and a duration sample per call.
func Metrics() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) *message.Result {
			start := time.Now()
			result := next(ctx, call)
			observability.RecordCall(call.Name, outcome(result.Err), time.Since(start))
			return result
		}
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, ErrRateLimited):
		return observability.OutcomeRateLimited
	case errors.Is(err, ErrTimeout):
		return observability.OutcomeTimeout
	default:
		return observability.OutcomeError
	}
}
