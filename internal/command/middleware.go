package command

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	logx "stockbot/pkg/logx"
)

type Middleware func(HandlerFunc) HandlerFunc

// Chain applies mws so that the first one is the outermost.
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

// Recover turns a panic in the handler into an error.
func Recover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (res Result, err error) {
			defer func() {
				if rec := recover(); rec != nil {
					req.Log.Error("panic in command",
						logx.String("cmd", strings.Join(req.Path, " ")),
						logx.Any("panic", rec),
						logx.String("stack", string(debug.Stack())),
					)
					res, err = nil, fmt.Errorf("panic: %v", rec)
				}
			}()
			return next(ctx, req)
		}
	}
}

type taskCtxKey struct{}

// asTask marks ctx as belonging to a background task.
func asTask(ctx context.Context) context.Context {
	return context.WithValue(ctx, taskCtxKey{}, true)
}

func inTask(ctx context.Context) bool {
	v, _ := ctx.Value(taskCtxKey{}).(bool)
	return v
}

// Timeout bounds the handler context. d <= 0 disables it. Background tasks
// run to completion and are never bounded.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) (Result, error) {
			if inTask(ctx) {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

// RequestLog logs each bound operation at debug level.
func RequestLog() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (Result, error) {
			start := time.Now()
			res, err := next(ctx, req)
			req.Log.Debug("command handled",
				logx.String("cmd", strings.Join(req.Path, " ")),
				logx.Int("args", len(req.Args)),
				logx.Int("lines", len(res)),
				logx.Duration("took", time.Since(start)),
				logx.Err(err),
			)
			return res, err
		}
	}
}
