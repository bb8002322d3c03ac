package relay

import (
	"context"
	"sync"
)

// Local fans events out inside a single process. It is used when api and
// workers share a binary and in tests.
type Local struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]func(Event)
}

func NewLocal() *Local {
	return &Local{handlers: make(map[int]func(Event))}
}

func (l *Local) Publish(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, h := range l.handlers {
		h(evt)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, handle func(Event)) error {
	l.mu.Lock()
	id := l.next
	l.next++
	l.handlers[id] = handle
	l.mu.Unlock()

	<-ctx.Done()

	l.mu.Lock()
	delete(l.handlers, id)
	l.mu.Unlock()
	return nil
}

func (l *Local) Close() error { return nil }

// Subscribers reports how many handlers are registered.
func (l *Local) Subscribers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers)
}
