package leaselock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	key string
	err error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.key
	return nil
}

// fakeConn keeps lock owners in a map and ignores expiry.
type fakeConn struct {
	mu     sync.Mutex
	owners map[string]string
	failQ  error
}

func newFakeConn() *fakeConn {
	return &fakeConn{owners: map[string]string{}}
}

func (f *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failQ != nil {
		return row{err: f.failQ}
	}
	key, token := args[0].(string), args[1].(string)
	owner, held := f.owners[key]
	switch {
	case strings.Contains(sql, "INSERT"):
		if held && owner != token {
			return row{err: pgx.ErrNoRows}
		}
		f.owners[key] = token
		return row{key: key}
	default:
		if !held || owner != token {
			return row{err: pgx.ErrNoRows}
		}
		return row{key: key}
	}
}

func (f *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	if f.owners[key] == token {
		delete(f.owners, key)
	}
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func (f *fakeConn) steal(key string) {
	f.mu.Lock()
	f.owners[key] = "someone-else"
	f.mu.Unlock()
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, defaultTTL, o.TTL)
	assert.Equal(t, defaultTTL/2, o.RenewEvery)
	assert.Equal(t, defaultWaitInterval, o.WaitInterval)

	o = Options{TTL: time.Second, RenewEvery: 2 * time.Second, WaitJitter: -1}.withDefaults()
	assert.Equal(t, time.Second, o.RenewEvery)
	assert.Zero(t, o.WaitJitter)
}

func TestAcquireAndRelease(t *testing.T) {
	conn := newFakeConn()
	c := New(conn)
	ctx := context.Background()

	lease, err := c.Acquire(ctx, DocumentKey("ws:col:a.txt"), Options{Owner: "worker-1:"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(lease.Token, "worker-1:"))
	assert.Equal(t, "ingest:ws:col:a.txt", lease.Key)

	_, err = c.Acquire(ctx, lease.Key, Options{})
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, lease.Release(ctx))
	assert.Error(t, lease.Context.Err())

	again, err := c.Acquire(ctx, lease.Key, Options{})
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestAcquireWaitsUntilContextDone(t *testing.T) {
	conn := newFakeConn()
	conn.steal("k")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(conn).Acquire(ctx, "k", Options{Wait: true, WaitInterval: 5 * time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireErrors(t *testing.T) {
	_, err := New(newFakeConn()).Acquire(context.Background(), "", Options{})
	assert.Error(t, err)

	conn := newFakeConn()
	conn.failQ = errors.New("connection refused")
	_, err = New(conn).Acquire(context.Background(), "k", Options{})
	assert.ErrorContains(t, err, "connection refused")
}

func TestLostLeaseCancelsContext(t *testing.T) {
	conn := newFakeConn()
	c := New(conn)

	err := c.WithLease(context.Background(), "k", Options{TTL: 2 * time.Second, RenewEvery: 10 * time.Millisecond},
		func(ctx context.Context) error {
			conn.steal("k")
			<-ctx.Done()
			return ctx.Err()
		})
	assert.ErrorIs(t, err, ErrLost)
}

func TestWithLeaseReleases(t *testing.T) {
	conn := newFakeConn()
	c := New(conn)

	called := false
	err := c.WithLease(context.Background(), "k", Options{}, func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Empty(t, conn.owners)
}

func TestSleepWithJitter(t *testing.T) {
	assert.NoError(t, sleepWithJitter(context.Background(), 0, 0))
	assert.NoError(t, sleepWithJitter(context.Background(), time.Millisecond, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepWithJitter(ctx, time.Hour, 0), context.Canceled)
}
