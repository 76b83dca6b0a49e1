package call

import (
	"context"
	"io"
	"sync"
	"time"
)

// Exchange is one sent message and the reply streaming back for it.
type Exchange struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	body io.Closer

	once sync.Once
	done chan struct{}
	err  error
}

func newExchange(ctx context.Context, id string, timeout time.Duration) *Exchange {
	ctx = context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	return &Exchange{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (e *Exchange) ID() string { return e.id }

// Done is closed once the reply stream is fully consumed or abandoned.
func (e *Exchange) Done() <-chan struct{} { return e.done }

// Err reports why the exchange finished. It is nil when the reply reached its
// end marker or the stream closed without one, context.Canceled when the call
// was ended first, and the failure otherwise. It is only meaningful after
// Done is closed.
func (e *Exchange) Err() error {
	select {
	case <-e.done:
		return e.err
	default:
		return nil
	}
}

func (e *Exchange) setBody(body io.Closer) {
	e.mu.Lock()
	e.body = body
	e.mu.Unlock()

	if e.ctx.Err() != nil {
		_ = body.Close()
	}
}

// abort cancels the exchange and closes its stream so a blocked read returns.
func (e *Exchange) abort() {
	e.cancel()

	e.mu.Lock()
	body := e.body
	e.mu.Unlock()
	if body != nil {
		_ = body.Close()
	}
}

func (e *Exchange) finish(err error) {
	e.once.Do(func() {
		e.err = err
		e.cancel()
		close(e.done)
	})
}
