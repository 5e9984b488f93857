package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WorkerAdvisoryLockKey is the process-wide advisory lock key enforcing a
// single active delivery worker. A second worker process must fail to
// acquire this and exit rather than degrade into a second active sender.
const WorkerAdvisoryLockKey = 84521031

// AdvisoryLock holds a session-level Postgres advisory lock on a dedicated
// pool connection. The lock lives as long as the connection; Release unlocks
// and returns the connection to the pool.
type AdvisoryLock struct {
	conn *pgxpool.Conn
	key  int64
}

// AcquireAdvisoryLock attempts to take the session advisory lock for the
// given key without blocking. It returns (nil, false, nil) when another
// session already holds the lock.
func AcquireAdvisoryLock(ctx context.Context, pool *pgxpool.Pool, key int64) (*AdvisoryLock, bool, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection for advisory lock: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	return &AdvisoryLock{conn: conn, key: key}, true, nil
}

// Release unlocks the advisory lock and returns its connection to the pool.
// Safe to call once during shutdown; the lock is also released implicitly if
// the session dies.
func (l *AdvisoryLock) Release(ctx context.Context) {
	if l == nil || l.conn == nil {
		return
	}
	_, _ = l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	l.conn.Release()
	l.conn = nil
}
