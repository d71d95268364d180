package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type hold struct {
	token   string
	expires time.Time
}

// Local guards keys within one process.
type Local struct {
	mu    sync.Mutex
	holds map[string]hold
	now   func() time.Time
}

// NewLocal returns an in-process Locker.
func NewLocal() *Local {
	return &Local{
		holds: make(map[string]hold),
		now:   time.Now,
	}
}

func (l *Local) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.holds[key]; ok && now.Before(h.expires) {
		return nil, false, nil
	}

	token := uuid.NewString()
	l.holds[key] = hold{token: token, expires: now.Add(ttl)}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// An expired hold may already belong to someone else.
			if h, ok := l.holds[key]; ok && h.token == token {
				delete(l.holds, key)
			}
		})
	}
	return release, true, nil
}

// Held reports whether key is currently held.
func (l *Local) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holds[key]
	return ok && l.now().Before(h.expires)
}

func (l *Local) Close() error { return nil }
