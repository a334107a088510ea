package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestTickLockAcquireAndRelease(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	lock, err := NewTickLock(rdb, "webhook:dispatch:lock", 10*time.Second)
	if err != nil {
		t.Fatalf("NewTickLock() error = %v", err)
	}

	release, acquired, err := lock.TryAcquire(context.Background())
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	if !acquired {
		t.Fatal("first acquire should succeed")
	}

	_, acquiredAgain, err := lock.TryAcquire(context.Background())
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	if acquiredAgain {
		t.Fatal("second acquire should fail while lock is held")
	}

	if err := release(context.Background()); err != nil {
		t.Fatalf("release error = %v", err)
	}

	_, acquiredAfterRelease, err := lock.TryAcquire(context.Background())
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	if !acquiredAfterRelease {
		t.Fatal("acquire after release should succeed")
	}
}

func TestTickLockReleaseOnlyOwnToken(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	first, err := newTickLock(rdb, "webhook:dispatch:lock", 10*time.Second, func() string { return "token-a" })
	if err != nil {
		t.Fatalf("newTickLock() error = %v", err)
	}
	second, err := newTickLock(rdb, "webhook:dispatch:lock", 10*time.Second, func() string { return "token-b" })
	if err != nil {
		t.Fatalf("newTickLock() error = %v", err)
	}

	releaseA, acquired, err := first.TryAcquire(context.Background())
	if err != nil || !acquired {
		t.Fatalf("first acquire = (%v, %v), want acquired", acquired, err)
	}

	// A stale release from a previous holder must not free another
	// holder's lock.
	if err := releaseA(context.Background()); err != nil {
		t.Fatalf("release error = %v", err)
	}

	releaseB, acquired, err := second.TryAcquire(context.Background())
	if err != nil || !acquired {
		t.Fatalf("second acquire = (%v, %v), want acquired", acquired, err)
	}

	if err := releaseA(context.Background()); err != nil {
		t.Fatalf("stale release error = %v", err)
	}

	_, acquired, err = first.TryAcquire(context.Background())
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	if acquired {
		t.Fatal("stale release must not free the current holder's lock")
	}

	if err := releaseB(context.Background()); err != nil {
		t.Fatalf("release error = %v", err)
	}
}
