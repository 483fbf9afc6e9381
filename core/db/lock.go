package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const discardTimeout = 5 * time.Second

// lockConn is the dedicated connection the lock lives on.
type lockConn interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// Release returns the connection to the pool. Only safe once the session
	// is known not to hold the lock.
	Release()
	// Discard closes the connection outside the pool, which drops any session
	// lock it may still hold.
	Discard(ctx context.Context) error
}

type poolConn struct {
	*pgxpool.Conn
}

func (c poolConn) Discard(ctx context.Context) error {
	return c.Hijack().Close(ctx)
}

// AdvisoryLock is a Postgres session-level advisory lock held on a dedicated
// pool connection. The lock lives as long as that connection, so a crashed
// holder releases it automatically.
type AdvisoryLock struct {
	acquire func(ctx context.Context) (lockConn, error)
	key     int64

	mu   sync.Mutex
	conn lockConn
}

func NewAdvisoryLock(db *DB, key int64) *AdvisoryLock {
	return &AdvisoryLock{
		acquire: func(ctx context.Context) (lockConn, error) {
			conn, err := db.pool.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return poolConn{conn}, nil
		},
		key: key,
	}
}

// TryAcquire returns true when this process holds the lock after the call.
// Calling it again while holding the lock re-validates the connection.
func (l *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		if err := l.conn.Ping(ctx); err == nil {
			return true, nil
		}
		// The session may still be alive server side with the lock held.
		discard(l.conn)
		l.conn = nil
	}

	conn, err := l.acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquiring lock connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&acquired); err != nil {
		discard(conn)
		return false, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}

	if !acquired {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

func (l *AdvisoryLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}

	conn := l.conn
	l.conn = nil
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.key); err != nil {
		discard(conn)
		return fmt.Errorf("pg_advisory_unlock: %w", err)
	}
	conn.Release()
	return nil
}

func discard(conn lockConn) {
	ctx, cancel := context.WithTimeout(context.Background(), discardTimeout)
	defer cancel()
	_ = conn.Discard(ctx)
}
