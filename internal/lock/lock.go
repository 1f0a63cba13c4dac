// Package lock provides short leases used to keep background sweeps
// single-flight across replicas.
package lock

import (
	"context"
	"errors"
	"time"
)

var ErrNotHeld = errors.New("lease not held")

// Locker hands out leases on string keys. A lease expires after ttl unless
// refreshed; only the token holder can refresh or release it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)
	Refresh(ctx context.Context, key, token string, ttl time.Duration) error
	Release(ctx context.Context, key, token string) error
}
