package fetcher

import (
	"context"
	"fmt"
	"sync"
)

// Session is a fetch client holding stateful resources (connections, a
// browser process) that can be torn down and rebuilt.
type Session interface {
	Get(ctx context.Context, url string) (Response, error)
	DisposeSession(ctx context.Context) error
}

// Bounded caps the number of requests served by one underlying session. Once
// maxRequests requests went through, the session is disposed before the next
// request so it is rebuilt lazily by the wrapped client.
type Bounded struct {
	inner       Session
	maxRequests int

	mu        sync.Mutex
	served    int
	onDispose func()
}

// NewBounded wraps inner. A maxRequests <= 0 disables the cap.
func NewBounded(inner Session, maxRequests int) *Bounded {
	return &Bounded{inner: inner, maxRequests: maxRequests}
}

// OnDispose registers a callback invoked after every disposal.
func (b *Bounded) OnDispose(fn func()) {
	b.mu.Lock()
	b.onDispose = fn
	b.mu.Unlock()
}

// Get forwards to the wrapped session, recycling it first when the cap is hit.
func (b *Bounded) Get(ctx context.Context, url string) (Response, error) {
	b.mu.Lock()
	expired := b.maxRequests > 0 && b.served >= b.maxRequests
	b.mu.Unlock()
	if expired {
		if err := b.DisposeSession(ctx); err != nil {
			return Response{}, err
		}
	}
	b.mu.Lock()
	b.served++
	b.mu.Unlock()
	return b.inner.Get(ctx, url)
}

// DisposeSession tears down the wrapped session and resets the request count.
func (b *Bounded) DisposeSession(ctx context.Context) error {
	if err := b.inner.DisposeSession(ctx); err != nil {
		return fmt.Errorf("dispose session: %w", err)
	}
	b.mu.Lock()
	b.served = 0
	fn := b.onDispose
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

// Served returns the number of requests served by the current session.
func (b *Bounded) Served() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.served
}
