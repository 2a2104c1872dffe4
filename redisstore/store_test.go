package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kmerrin/stowage"
	"github.com/kmerrin/stowage/password"
)

func newStoreTest(t *testing.T) (*Store, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := New(Config{
		Client: rdb,
		Prefix: "st",
		// Low iteration count keeps the suite fast.
		Password:    password.Config{Iterations: 1000, KeyLength: 16, SaltLength: 16},
		LockLease:   time.Second,
		LockBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestCreateUserAuthenticateErrors(t *testing.T) {
	s, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	params := stowage.Params{Username: "boris", Password: "zipwire", Email: "boris@example.com"}
	if err := s.CreateUser(ctx, params); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.Authenticate(ctx, params); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	err := s.Authenticate(ctx, stowage.Params{Username: "boris", Password: "wrong"})
	if !errors.Is(err, stowage.ErrIncorrectPassword) {
		t.Fatalf("wrong password: got %v, want ErrIncorrectPassword", err)
	}
	err = s.Authenticate(ctx, stowage.Params{Username: "zebby", Password: "zipwire"})
	if !errors.Is(err, stowage.ErrUserNotFound) {
		t.Fatalf("unknown user: got %v, want ErrUserNotFound", err)
	}

	err = s.CreateUser(ctx, stowage.Params{Username: "boris", Password: "other"})
	if !errors.Is(err, stowage.ErrUsernameTaken) {
		t.Fatalf("duplicate signup: got %v, want ErrUsernameTaken", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	token, err := s.Authorize(ctx, "app.example.com", "boris", map[string][]string{
		"photos":          {stowage.AccessRead, stowage.AccessWrite},
		"/public/photos/": {stowage.AccessRead},
		"contacts/":       {stowage.AccessWrite, stowage.AccessWrite},
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}

	perms, err := s.Permissions(ctx, "boris", token)
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	if got := perms["/photos/"]; len(got) != 2 || got[0] != stowage.AccessRead {
		t.Fatalf("photos grant = %v, want sorted [r w]", got)
	}
	if got := perms["/contacts/"]; len(got) != 1 || got[0] != stowage.AccessWrite {
		t.Fatalf("contacts grant = %v, want deduplicated [w]", got)
	}
	if got := perms["/public/photos/"]; len(got) != 1 {
		t.Fatalf("public photos grant = %v, want [r]", got)
	}

	if err := s.RevokeAccess(ctx, "boris", token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := s.RevokeAccess(ctx, "boris", token); err != nil {
		t.Fatalf("second revoke must be idempotent: %v", err)
	}
	perms, err = s.Permissions(ctx, "boris", token)
	if err != nil || len(perms) != 0 {
		t.Fatalf("after revoke perms=%v err=%v, want empty map", perms, err)
	}
}

func TestItemAccessors(t *testing.T) {
	s, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := s.PutItem(ctx, "boris", "sync/cursor", []byte("42")); err != nil {
		t.Fatalf("put item: %v", err)
	}
	got, err := s.GetItem(ctx, "boris", "sync/cursor")
	if err != nil || string(got) != "42" {
		t.Fatalf("get item = %q err=%v, want 42", got, err)
	}
	if err := s.DeleteItem(ctx, "boris", "sync/cursor"); err != nil {
		t.Fatalf("delete item: %v", err)
	}
	got, err = s.GetItem(ctx, "boris", "sync/cursor")
	if err != nil || got != nil {
		t.Fatalf("absent item = %q err=%v, want nil", got, err)
	}
}

func TestLazyClientDialsOnFirstUse(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()

	s, err := New(Config{Addr: mr.Addr(), Prefix: "st",
		Password: password.Config{Iterations: 1000, KeyLength: 16, SaltLength: 16}})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	// Construction must not have touched the network; first use does.
	if err := s.PutItem(context.Background(), "boris", "k", []byte("v")); err != nil {
		t.Fatalf("first use: %v", err)
	}

	first, err := s.client()
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	second, err := s.client()
	if err != nil || first != second {
		t.Fatalf("client not shared across calls: %v", err)
	}
}
