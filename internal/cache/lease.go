package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lease is a time-bounded exclusive claim on one submission. The token makes
// release and extension safe: a worker that lost its lease (TTL expired,
// another worker re-claimed) cannot release or extend the new holder's claim.
type Lease struct {
	cache Client
	key   string
	token string
	ttl   time.Duration
}

func NewLease(cache Client, submissionID uuid.UUID, ttl time.Duration) *Lease {
	return &Lease{
		cache: cache,
		key:   LeaseKey(submissionID),
		token: uuid.NewString(),
		ttl:   ttl,
	}
}

func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	return l.cache.SetNX(ctx, l.key, l.token, l.ttl)
}

// Extend refreshes the TTL. Returns false when the lease is no longer held by
// this token; the caller must stop working on the submission.
func (l *Lease) Extend(ctx context.Context) (bool, error) {
	return l.cache.CompareAndExpire(ctx, l.key, l.token, l.ttl)
}

func (l *Lease) Release(ctx context.Context) error {
	_, err := l.cache.CompareAndDelete(ctx, l.key, l.token)
	return err
}
