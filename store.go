package stowage

import "context"

// Access values as stored in permission maps. Lists are sorted ascending,
// so read always precedes write.
const (
	AccessRead  = "r"
	AccessWrite = "w"
)

// Params carries signup and login credentials.
type Params struct {
	Username string
	Password string
	Email    string
}

// Child is one entry of a directory listing. Directory children carry a
// trailing separator in Name.
type Child struct {
	Name     string
	Modified int64
}

// Item is the result of a Get: either a document (ContentType, Value) or a
// directory listing (IsDir, Children sorted by name). Modified is the node's
// modified instant in Unix milliseconds.
type Item struct {
	IsDir       bool
	ContentType string
	Value       []byte
	Children    []Child
	Modified    int64
}

// PutResult reports the outcome of a conditional write. On conflict,
// Created is false and Modified is zero.
type PutResult struct {
	Created  bool
	Modified int64
	Conflict bool
}

// DeleteResult reports the outcome of a conditional delete. Existed is
// false when the path named nothing; that is not a conflict.
type DeleteResult struct {
	Existed  bool
	Modified int64
	Conflict bool
}

// Store is the full per-user document store: credentials, sessions, and the
// versioned document tree. Implementations serialize all mutations for one
// username; unrelated usernames proceed in parallel.
//
// Optional versions are passed as *int64; nil means unconditional. A
// non-nil version is accepted only when it equals the resource's current
// modified instant — a version supplied for a resource that does not exist
// is itself a conflict.
type Store interface {
	// CreateUser validates params and creates the credential record. It
	// fails with ErrUsernameTaken when the record already exists, detected
	// atomically rather than read-then-write.
	CreateUser(ctx context.Context, p Params) error

	// Authenticate verifies the password against the stored derived key.
	// Unknown users and wrong passwords fail with distinct errors.
	Authenticate(ctx context.Context, p Params) error

	// Authorize issues a fresh token for username scoped to the given
	// permissions (category → accesses). Categories are normalized to the
	// canonical "/name/" form before persisting.
	Authorize(ctx context.Context, clientID, username string, permissions map[string][]string) (string, error)

	// RevokeAccess removes the session. Revoking an absent session is not
	// an error.
	RevokeAccess(ctx context.Context, username, token string) error

	// Permissions returns the session's permission map with each access
	// list sorted ascending, or an empty map for an unknown token.
	Permissions(ctx context.Context, username, token string) (map[string][]string, error)

	// Get resolves path. A trailing separator requests a directory listing:
	// an absent root yields an empty listing, an absent subdirectory yields
	// a nil Item. A document path yields the document or nil. The boolean
	// reports whether version matched the node's modified instant; it is
	// informational only and never rejects a read.
	Get(ctx context.Context, username, path string, version *int64) (*Item, bool, error)

	// Put conditionally replaces the document at path, stamps a new
	// modified instant, and propagates it to every ancestor directory,
	// creating missing intermediates. A directory path fails fast with
	// ErrIsDirectory and no side effects.
	Put(ctx context.Context, username, path, contentType string, value []byte, version *int64) (PutResult, error)

	// Delete conditionally removes the document at path, prunes ancestor
	// directories left empty (deepest-first, cascading), and recomputes the
	// modified instant of the first ancestor that still has children.
	Delete(ctx context.Context, username, path string, version *int64) (DeleteResult, error)

	// GetItem, PutItem, and DeleteItem are plain blob accessors for
	// internal metadata outside the document namespace. No locking or
	// versioning applies. GetItem returns a nil slice for an absent key.
	GetItem(ctx context.Context, username, key string) ([]byte, error)
	PutItem(ctx context.Context, username, key string, value []byte) error
	DeleteItem(ctx context.Context, username, key string) error
}
