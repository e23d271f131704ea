package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/sharetube/watchsync/pkg/ctxlogger"
	"github.com/sharetube/watchsync/pkg/wsrouter"
)

func (c controller) wsRequestIdWSMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc[any]) wsrouter.HandlerFunc[any] {
		return func(ctx context.Context, payload any) error {
			ctx = ctxlogger.AppendCtx(ctx, slog.String("ws_request_id", c.generateTimeBasedId()))
			return next(ctx, payload)
		}
	}
}

func (c controller) loggerWSMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc[any]) wsrouter.HandlerFunc[any] {
		return func(ctx context.Context, payload any) error {
			messageType := wsrouter.GetMessageTypeFromCtx(ctx)
			ctx = ctxlogger.AppendCtx(ctx, slog.String("message_type", messageType))
			c.logger.DebugContext(ctx, "websocket message received", "payload", payload)

			start := time.Now()

			err := next(ctx, payload)

			elapsed := time.Since(start)
			if c.metrics != nil {
				c.metrics.ObserveHandleDuration(messageType, elapsed.Seconds())
			}
			c.logger.InfoContext(ctx, "websocket message handled",
				"processing_time_us", elapsed.Microseconds(),
			)

			return err
		}
	}
}

// rateLimitWSMw drops messages above the connection's allowance.
func (c controller) rateLimitWSMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc[any]) wsrouter.HandlerFunc[any] {
		return func(ctx context.Context, payload any) error {
			limiter := c.getLimiterFromCtx(ctx)
			if limiter != nil && !limiter.Allow() {
				if c.metrics != nil {
					c.metrics.RecordRateLimited()
				}
				return ErrRateLimited
			}

			return next(ctx, payload)
		}
	}
}
