package command

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// Body is the executable part of a command. Returning an error is treated
// like returning an error-bearing Response whose text is generic; the error
// itself is only logged.
type Body interface {
	Execute(ctx context.Context, in *Input) (*Response, error)
}

// BodyFunc adapts a function to Body.
type BodyFunc func(ctx context.Context, in *Input) (*Response, error)

func (f BodyFunc) Execute(ctx context.Context, in *Input) (*Response, error) {
	return f(ctx, in)
}

// Middleware wraps a body (recovery, logging, history).
type Middleware func(Body) Body

// Apply applies middlewares in order; the first in the list is the outermost.
func Apply(b Body, mws ...Middleware) Body {
	for i := len(mws) - 1; i >= 0; i-- {
		b = mws[i](b)
	}
	return b
}

// PanicError carries a recovered panic and the stack it happened on.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("command panicked: %v", e.Value)
}

// WithRecover turns a panic in the wrapped body into a *PanicError.
func WithRecover() Middleware {
	return func(next Body) Body {
		return BodyFunc(func(ctx context.Context, in *Input) (resp *Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp, err = nil, &PanicError{Value: r, Stack: debug.Stack()}
				}
			}()
			return next.Execute(ctx, in)
		})
	}
}

// HistoryRecorder persists a record of an executed command.
type HistoryRecorder interface {
	RecordCommand(ctx context.Context, inv *Invoker, name, param string) error
}

// WithCommandLog records every executed command after it runs. Failures to
// record are logged and never affect the command's result.
func WithCommandLog(rec HistoryRecorder, logger *zap.Logger) Middleware {
	return func(next Body) Body {
		return BodyFunc(func(ctx context.Context, in *Input) (*Response, error) {
			resp, err := next.Execute(ctx, in)
			if rec != nil && in.Invoker != nil {
				if e := rec.RecordCommand(ctx, in.Invoker, in.Command.Name, in.Text); e != nil {
					logger.Warn("Failed to record command", zap.String("command", in.Command.Name), zap.Error(e))
				}
			}
			return resp, err
		})
	}
}
