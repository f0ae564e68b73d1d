package document

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"
)

// Locker serializes signing per document. Concurrent signatures on the same
// document must not interleave the read-stamp-write cycle; the store's version
// check is the backstop, the lock avoids burning the PDF twice to begin with.
type Locker interface {
	Acquire(ctx context.Context, documentID id.DocumentID) (release func(), err error)
}

// ErrLocked is returned when another signer holds the document.
func errLocked() error {
	return dErrors.New(dErrors.CodeConflict, "document is being signed by someone else, retry shortly")
}

// RedisLocker takes a short lease in Redis so signing serializes across
// processes. The token guards release: only the holder's release deletes the
// key, an expired lease held by a new signer is left alone.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

func (l *RedisLocker) Acquire(ctx context.Context, documentID id.DocumentID) (func(), error) {
	key := "vellum:signlock:" + documentID.String()
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "acquire sign lock", err)
	}
	if !ok {
		return nil, errLocked()
	}
	return func() {
		releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token)
	}, nil
}

// MemoryLocker serializes signing within one process. Used in tests and
// single-node development wiring.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[id.DocumentID]bool
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[id.DocumentID]bool)}
}

func (l *MemoryLocker) Acquire(_ context.Context, documentID id.DocumentID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[documentID] {
		return nil, errLocked()
	}
	l.held[documentID] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, documentID)
	}, nil
}
