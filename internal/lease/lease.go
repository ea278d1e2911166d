package lease

import (
	"context"
	"time"
)

// Locker hands out exclusive, expiring leases keyed by instance UUID.
type Locker interface {
	// Acquire takes the lease for key, held for at most ttl unless released
	// earlier. It fails immediately with a *api.LockError when another
	// holder has an unexpired lease.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	Key() string
	Holder() string
	ExpiresAt() time.Time
	// Release gives the lease up. Releasing a lease that expired and was
	// taken by someone else is a no-op.
	Release(ctx context.Context) error
}

// Clock returns the current time.
type Clock func() time.Time
