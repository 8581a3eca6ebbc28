package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// LocalBucket keeps one in-process limiter per key. It is used when no
// redis is configured, so limits apply per replica.
type LocalBucket struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

func NewLocalBucket() *LocalBucket {
	return &LocalBucket{limiters: make(map[string]*rate.Limiter)}
}

func (b *LocalBucket) Allow(_ context.Context, key string, r float64, burst int) (*Result, error) {
	if err := validateBucket(key, r, burst); err != nil {
		return &Result{}, err
	}
	limiter := b.limiter(key, r, burst)
	allowed := limiter.Allow()
	return newResult(allowed, limiter.Tokens(), r, burst), nil
}

func (b *LocalBucket) limiter(key string, r float64, burst int) *rate.Limiter {
	b.mu.RLock()
	limiter, ok := b.limiters[key]
	b.mu.RUnlock()
	if ok {
		return limiter
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if limiter, ok := b.limiters[key]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(r), burst)
	b.limiters[key] = limiter
	return limiter
}

// LocalLocker is the in-process counterpart of Locker.
type LocalLocker struct {
	mu    sync.Mutex
	now   func() time.Time
	locks map[string]localLock
}

type localLock struct {
	token   string
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{now: time.Now, locks: make(map[string]localLock)}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := validateLock(key, ttl); err != nil {
		return "", false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.locks[key]; ok && now.Before(held.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.locks[key] = localLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.locks[key]; ok && held.token == token {
		delete(l.locks, key)
	}
	return nil
}
