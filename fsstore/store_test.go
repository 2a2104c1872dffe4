package fsstore

import (
	"context"
	"errors"
	"testing"

	"github.com/kmerrin/stowage"
	"github.com/kmerrin/stowage/password"
)

func newStoreTest(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{
		Root: t.TempDir(),
		// Low iteration count keeps the suite fast.
		Password: password.Config{Iterations: 1000, KeyLength: 16, SaltLength: 16},
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestCreateUserAndAuthenticate(t *testing.T) {
	s := newStoreTest(t)
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
}

func TestCreateUserDuplicate(t *testing.T) {
	s := newStoreTest(t)
	ctx := context.Background()

	params := stowage.Params{Username: "boris", Password: "zipwire"}
	if err := s.CreateUser(ctx, params); err != nil {
		t.Fatalf("create user: %v", err)
	}
	err := s.CreateUser(ctx, stowage.Params{Username: "boris", Password: "other"})
	if !errors.Is(err, stowage.ErrUsernameTaken) {
		t.Fatalf("duplicate signup: got %v, want ErrUsernameTaken", err)
	}

	// The original credential still authenticates.
	if err := s.Authenticate(ctx, params); err != nil {
		t.Fatalf("authenticate after duplicate attempt: %v", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	s := newStoreTest(t)
	ctx := context.Background()

	err := s.CreateUser(ctx, stowage.Params{Username: "b", Password: ""})
	var verr *stowage.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("invalid signup: got %v, want ValidationError", err)
	}
	if len(verr.Failures) != 2 {
		t.Fatalf("failures = %v, want 2 entries", verr.Failures)
	}
}

func TestAuthorizePermissionsRevoke(t *testing.T) {
	s := newStoreTest(t)
	ctx := context.Background()

	token, err := s.Authorize(ctx, "app.example.com", "boris", map[string][]string{
		"documents": {stowage.AccessWrite, stowage.AccessRead},
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if token == "" {
		t.Fatal("authorize returned an empty token")
	}

	perms, err := s.Permissions(ctx, "boris", token)
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	granted := perms["/documents/"]
	if len(granted) != 2 || granted[0] != stowage.AccessRead || granted[1] != stowage.AccessWrite {
		t.Fatalf("permissions = %v, want category normalized and accesses sorted", perms)
	}

	if err := s.RevokeAccess(ctx, "boris", token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := s.RevokeAccess(ctx, "boris", token); err != nil {
		t.Fatalf("second revoke must be idempotent: %v", err)
	}

	perms, err = s.Permissions(ctx, "boris", token)
	if err != nil {
		t.Fatalf("permissions after revoke: %v", err)
	}
	if len(perms) != 0 {
		t.Fatalf("permissions after revoke = %v, want empty map", perms)
	}
}

func TestPermissionsUnknownOrMalformedToken(t *testing.T) {
	s := newStoreTest(t)
	ctx := context.Background()

	for _, token := range []string{"", "../../../etc/passwd", "short"} {
		perms, err := s.Permissions(ctx, "boris", token)
		if err != nil {
			t.Fatalf("permissions(%q): %v", token, err)
		}
		if len(perms) != 0 {
			t.Fatalf("permissions(%q) = %v, want empty map", token, perms)
		}
	}
}

func TestItemRoundTrip(t *testing.T) {
	s := newStoreTest(t)
	ctx := context.Background()

	if err := s.PutItem(ctx, "boris", "meta/cursor", []byte("42")); err != nil {
		t.Fatalf("put item: %v", err)
	}
	got, err := s.GetItem(ctx, "boris", "meta/cursor")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if string(got) != "42" {
		t.Fatalf("item = %q, want %q", got, "42")
	}

	if err := s.DeleteItem(ctx, "boris", "meta/cursor"); err != nil {
		t.Fatalf("delete item: %v", err)
	}
	if err := s.DeleteItem(ctx, "boris", "meta/cursor"); err != nil {
		t.Fatalf("second item delete must be idempotent: %v", err)
	}
	got, err = s.GetItem(ctx, "boris", "meta/cursor")
	if err != nil {
		t.Fatalf("get absent item: %v", err)
	}
	if got != nil {
		t.Fatalf("absent item = %q, want nil", got)
	}
}
