package postgres

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sync"
)

// Lock takes a session-level advisory lock derived from key. The lock is held
// on a dedicated connection until the returned function is called, so
// concurrent automation passes in separate processes serialise.
func (s *Store) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := s.DB().Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("advisory lock %q: %w", key, err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
				// the session may still hold the lock; discard it instead of pooling it
				_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			}
			_ = conn.Close()
		})
	}, nil
}
