package localstore

import (
	"context"
	"testing"
	"time"

	"skylark/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisStoreNamespacesClients(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	factory := RedisFactory(client)

	a, b := factory("a"), factory("b")
	if err := a.Set(ctx, KeyToken, "tok-a"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := b.Get(ctx, KeyToken); err != ErrMissing {
		t.Fatalf("client b sees client a's key: %v", err)
	}
	if got := mr.Exists("client:a:" + KeyToken); !got {
		t.Fatalf("expected prefixed key in redis, keys=%v", mr.Keys())
	}
	if err := a.Delete(ctx, KeyToken); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := a.Get(ctx, KeyToken); err != ErrMissing {
		t.Fatalf("expected ErrMissing after delete, got %v", err)
	}
}

func TestSessionStorageSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	s := NewSessionStorage(NewRedisStore(client, "c1"))

	snap, err := s.LoadSnapshot(ctx)
	if err != nil || snap != nil {
		t.Fatalf("empty store: snap=%v err=%v", snap, err)
	}

	acc := models.Account{ID: "u1", Username: "alice", ActiveToken: "t1", PasswordHash: "secret"}
	if err := s.SaveSnapshot(ctx, models.SessionSnapshot{Account: acc, Token: "t1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, err = s.LoadSnapshot(ctx)
	if err != nil || snap == nil {
		t.Fatalf("load: snap=%v err=%v", snap, err)
	}
	if snap.Token != "t1" || snap.Account.Username != "alice" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Account.PasswordHash != "" {
		t.Fatalf("password hash must not be persisted locally")
	}

	if err := s.ClearSnapshot(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if snap, _ := s.LoadSnapshot(ctx); snap != nil {
		t.Fatalf("snapshot survived clear: %+v", snap)
	}
}

func TestSessionStorageMissingTokenMeansNoSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStorage(NewMemoryStore())
	if err := s.SaveAccount(ctx, models.Account{ID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if snap, _ := s.LoadSnapshot(ctx); snap != nil {
		t.Fatalf("expected nil snapshot without token, got %+v", snap)
	}
}

func TestSessionStorageCorruptBlobReadsAsAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Set(ctx, KeyUser, "{not json")
	_ = store.Set(ctx, KeyToken, "t1")
	s := NewSessionStorage(store)
	snap, err := s.LoadSnapshot(ctx)
	if err != nil || snap != nil {
		t.Fatalf("snap=%v err=%v", snap, err)
	}
}

func TestSessionStorageBackupAndWatermarks(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	s := NewSessionStorage(NewRedisStore(client, "c2"))

	backup := models.ImpersonationBackup{User: models.Account{ID: "admin", IsAdmin: true}, Token: "ta"}
	if err := s.SaveBackup(ctx, backup); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadBackup(ctx)
	if err != nil || got == nil || got.Token != "ta" || !got.User.IsAdmin {
		t.Fatalf("backup = %+v, err=%v", got, err)
	}
	if err := s.ClearBackup(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.LoadBackup(ctx); got != nil {
		t.Fatalf("backup survived clear")
	}

	seen, err := s.LastSeen(ctx)
	if err != nil || len(seen) != 0 {
		t.Fatalf("seen=%v err=%v", seen, err)
	}
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := s.SaveLastSeen(ctx, map[string]time.Time{"g1": ts}); err != nil {
		t.Fatal(err)
	}
	seen, _ = s.LastSeen(ctx)
	if !seen["g1"].Equal(ts) {
		t.Fatalf("watermark = %v", seen["g1"])
	}

	off := ts.Add(123 * time.Millisecond)
	if err := s.SaveLastOffline(ctx, off); err != nil {
		t.Fatal(err)
	}
	gotOff, _ := s.LastOffline(ctx)
	if !gotOff.Equal(off) {
		t.Fatalf("lastOffline = %v, want %v", gotOff, off)
	}
	if err := s.ClearLastOffline(ctx); err != nil {
		t.Fatal(err)
	}
	if gotOff, _ := s.LastOffline(ctx); !gotOff.IsZero() {
		t.Fatalf("lastOffline survived clear")
	}
}

func TestMemoryFactoryReusesStore(t *testing.T) {
	ctx := context.Background()
	f := MemoryFactory()
	_ = f("x").Set(ctx, "k", "v")
	if v, err := f("x").Get(ctx, "k"); err != nil || v != "v" {
		t.Fatalf("v=%q err=%v", v, err)
	}
	if _, err := f("y").Get(ctx, "k"); err != ErrMissing {
		t.Fatalf("stores leaked across clients")
	}
}
