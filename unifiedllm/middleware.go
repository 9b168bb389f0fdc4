package unifiedllm

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware blocks each request until the limiter admits it.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, &AbortError{SDKError: SDKError{Message: "rate limiter wait cancelled", Cause: err}}
		}
		return next(ctx, req)
	}
}

// PerMinuteLimiter returns a limiter admitting n requests per minute with a
// burst of one. n <= 0 means unlimited.
func PerMinuteLimiter(n int) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
}

// LoggingMiddleware logs each completion at debug level with its latency.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		attrs := []any{
			"provider", req.Provider,
			"model", req.Model,
			"thread_id", req.Metadata[MetadataThreadID],
			"duration", time.Since(start),
		}
		if err != nil {
			logger.Warn("llm request failed", append(attrs, "error", err)...)
			return nil, err
		}
		logger.Debug("llm request completed", append(attrs,
			"finish_reason", resp.FinishReason.Reason,
			"output_tokens", resp.Usage.OutputTokens)...)
		return resp, nil
	}
}

// RetryMiddleware retries retryable provider errors according to policy.
// Sessions call Complete directly, so this is where they get backoff.
func RetryMiddleware(policy RetryPolicy) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		return Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
			return next(ctx, req)
		})
	}
}
