// Package fsstore implements the stowage.Store contract on a local
// filesystem.
//
// Layout under the configured root:
//
//	auth/<sh>/<user>/user.json            credential record
//	auth/<sh>/<user>/sessions/<token>.json
//	auth/<sh>/<user>/items/<escaped-key>  opaque blobs
//	data/<sh>/<user>/...                  mirrored document tree
//
// where <sh> is a two-character shard of the username. In the document tree
// a directory segment "s" becomes the filesystem directory "s.d" holding a
// ".dirmeta" record, and a document "n" becomes "n.f" (content) plus "n.m"
// (content type, length, modified instant). The suffixes keep a document
// and a directory of the same name disjoint.
//
// All mutations for one username are serialized through an in-process FIFO
// lock; this backend is safe for one process only.
package fsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/kmerrin/stowage"
	"github.com/kmerrin/stowage/internal"
	"github.com/kmerrin/stowage/lock"
	"github.com/kmerrin/stowage/logging"
	"github.com/kmerrin/stowage/password"
)

// Config configures a filesystem Store. Root is required.
type Config struct {
	Root     string
	Password password.Config
	Logger   logging.Logger
}

// Store is the filesystem backend. It implements stowage.Store.
type Store struct {
	root   string
	hasher *password.Hasher
	locks  *lock.Manager
	clock  internal.Clock
	log    logging.Logger
}

var _ stowage.Store = (*Store)(nil)

// New creates the root directory if needed and returns a Store.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, errors.New("fsstore: root directory is required")
	}
	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Root, dirPerm); err != nil {
		return nil, fmt.Errorf("fsstore: create root: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop{}
	}
	return &Store{
		root:   cfg.Root,
		hasher: hasher,
		locks:  lock.NewManager(),
		log:    log,
	}, nil
}

type userRecord struct {
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

type sessionRecord struct {
	ClientID    string              `json:"clientId"`
	Permissions map[string][]string `json:"permissions"`
}

// CreateUser validates params and commits the credential record with an
// atomic existence check, so two racing signups cannot both half-succeed.
func (s *Store) CreateUser(ctx context.Context, p stowage.Params) error {
	if err := stowage.ValidateUser(p); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return err
	}
	data, err := json.Marshal(userRecord{Password: hash, Email: p.Email})
	if err != nil {
		return err
	}

	dir := s.authDir(p.Username)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return err
	}
	err = createFileExclusive(filepath.Join(dir, "user.json"), data)
	if errors.Is(err, fs.ErrExist) {
		return stowage.ErrUsernameTaken
	}
	return err
}

// Authenticate verifies the password against the stored derived key.
func (s *Store) Authenticate(ctx context.Context, p stowage.Params) error {
	rec, err := s.readUser(p.Username)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(p.Password, rec.Password)
	if err != nil {
		return err
	}
	if !ok {
		return stowage.ErrIncorrectPassword
	}
	return nil
}

// Authorize issues a fresh token and persists the session record.
func (s *Store) Authorize(ctx context.Context, clientID, username string, permissions map[string][]string) (string, error) {
	token, err := internal.NewToken()
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(sessionRecord{
		ClientID:    clientID,
		Permissions: stowage.NormalizePermissions(permissions),
	})
	if err != nil {
		return "", err
	}

	dir := filepath.Join(s.authDir(username), "sessions")
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", err
	}
	if err := writeFileAtomic(filepath.Join(dir, token+".json"), data); err != nil {
		return "", err
	}
	return token, nil
}

// RevokeAccess removes the session file. Absent sessions are not an error.
func (s *Store) RevokeAccess(ctx context.Context, username, token string) error {
	if err := internal.ValidToken(token); err != nil {
		return nil
	}
	err := os.Remove(s.sessionFile(username, token))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err == nil {
		s.log.Debug(ctx, "session revoked", "user", username)
	}
	return err
}

// Permissions returns the session's permission map, or an empty map for a
// malformed or unknown token.
func (s *Store) Permissions(ctx context.Context, username, token string) (map[string][]string, error) {
	empty := map[string][]string{}
	if err := internal.ValidToken(token); err != nil {
		return empty, nil
	}

	data, err := os.ReadFile(s.sessionFile(username, token))
	if errors.Is(err, fs.ErrNotExist) {
		return empty, nil
	}
	if err != nil {
		return nil, err
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec.Permissions == nil {
		return empty, nil
	}
	return rec.Permissions, nil
}

// GetItem reads an opaque blob; absent keys yield a nil slice.
func (s *Store) GetItem(ctx context.Context, username, key string) ([]byte, error) {
	data, err := os.ReadFile(s.itemFile(username, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// PutItem replaces an opaque blob.
func (s *Store) PutItem(ctx context.Context, username, key string, value []byte) error {
	path := s.itemFile(username, key)
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	return writeFileAtomic(path, value)
}

// DeleteItem removes an opaque blob. Absent keys are not an error.
func (s *Store) DeleteItem(ctx context.Context, username, key string) error {
	err := os.Remove(s.itemFile(username, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) readUser(username string) (*userRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.authDir(username), "user.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, stowage.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) authDir(username string) string {
	return filepath.Join(s.root, "auth", shard(username), username)
}

func (s *Store) dataDir(username string) string {
	return filepath.Join(s.root, "data", shard(username), username)
}

func (s *Store) sessionFile(username, token string) string {
	return filepath.Join(s.authDir(username), "sessions", token+".json")
}

func (s *Store) itemFile(username, key string) string {
	return filepath.Join(s.authDir(username), "items", url.PathEscape(key))
}

// shard spreads credential records across subdirectories by the first two
// username characters, keeping auth/ listable even with many users.
func shard(username string) string {
	if len(username) < 2 {
		return username + "_"
	}
	return username[:2]
}
