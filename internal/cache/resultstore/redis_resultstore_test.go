package resultstore

import (
	"context"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/nearby-business-search/internal/cache/redisstore"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
)

func newMini(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	cli, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	return cli, mr
}

func TestRedisResultStore_PutGetDelete(t *testing.T) {
	cli, mr := newMini(t)
	rs := NewRedisStore(cli, 5*time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	recs := []model.BusinessRecord{
		{Name: "Joe", Lat: 40.713, Lng: -74.006, Address: "Main St", Type: "cafe"},
		{Name: "Ann", Lat: 40.72, Lng: -74.01, Address: "No address available", Type: "cafe", Phone: "1"},
	}
	ttl := 2 * time.Minute
	if err := rs.Put(ctx, "search:k", recs, ttl); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := rs.Get(ctx, "search:k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, recs) {
		t.Fatalf("got %+v want %+v", got, recs)
	}
	if tt := mr.TTL("search:k"); tt <= 0 || tt > ttl {
		t.Fatalf("unexpected TTL: %v", tt)
	}

	if err := rs.Delete(ctx, "search:k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := rs.Get(ctx, "search:k"); ok || err != nil {
		t.Fatalf("expected miss after delete, ok=%v err=%v", ok, err)
	}
}

func TestRedisResultStore_EmptyResultIsAHit(t *testing.T) {
	cli, _ := newMini(t)
	rs := NewRedisStore(cli, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	if err := rs.Put(ctx, "search:empty", nil, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := rs.Get(ctx, "search:empty")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected non-nil empty slice, got %#v", got)
	}
}

func TestRedisResultStore_DefaultTTLUsedWhenZeroTTL(t *testing.T) {
	cli, mr := newMini(t)
	defaultTTL := 3 * time.Minute
	rs := NewRedisStore(cli, defaultTTL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	if err := rs.Put(ctx, "search:d", []model.BusinessRecord{{Name: "x"}}, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if tt := mr.TTL("search:d"); tt <= 0 || tt > defaultTTL {
		t.Fatalf("unexpected TTL: %v", tt)
	}
}

func TestRedisResultStore_CorruptValueIsError(t *testing.T) {
	cli, mr := newMini(t)
	rs := NewRedisStore(cli, time.Minute)

	if err := mr.Set("search:bad", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := rs.Get(context.Background(), "search:bad"); err == nil {
		t.Fatal("expected decode error")
	}
}
