package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"tiendapos/internal/apperr"
)

// Dispatcher executes a command in-process. The command backend implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, command string, payload json.RawMessage) (any, error)
}

// Local routes commands to an in-process Dispatcher. Payloads and results
// still go through JSON so callers see exactly what the HTTP transport returns.
type Local struct {
	dispatcher Dispatcher
	decorate   func(context.Context) context.Context
}

type LocalOption func(*Local)

// WithContext decorates every dispatched context, e.g. to attach an actor.
func WithContext(fn func(context.Context) context.Context) LocalOption {
	return func(l *Local) {
		l.decorate = fn
	}
}

func NewLocal(dispatcher Dispatcher, opts ...LocalOption) *Local {
	l := &Local{dispatcher: dispatcher}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) Invoke(ctx context.Context, command string, payload any, out any) error {
	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.Validationf("encode payload: %v", err)
	}
	if l.decorate != nil {
		ctx = l.decorate(ctx)
	}

	result, err := l.dispatcher.Dispatch(ctx, command, body)
	if err != nil {
		if appErr, ok := apperr.As(err); ok {
			return appErr
		}
		return apperr.Unknown(err.Error())
	}
	if out == nil {
		return nil
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return apperr.Unknown(fmt.Sprintf("encode result: %v", err))
	}
	if err := json.Unmarshal(encoded, out); err != nil {
		return apperr.Unknown(fmt.Sprintf("decode result: %v", err))
	}
	return nil
}
