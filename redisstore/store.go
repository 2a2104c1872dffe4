// Package redisstore implements the stowage.Store contract on Redis, shared
// safely by independent processes.
//
// Key layout under the configured prefix p:
//
//	p:auth:<user>             JSON credential record (created with SETNX)
//	p:session:<user>:<token>  JSON session record
//	p:doc:<user>:<path>       document hash {type, value, modified}
//	p:dir:<user>:<dirpath>    hash of child name → modified instant
//	p:dirm:<user>:<dirpath>   directory modified instant
//	p:item:<user>:<key>       opaque blobs
//	p:lock:<user>             lease expiry, Unix milliseconds
//
// The doc/dir/dirm namespaces are disjoint, so a document and a directory
// path can never collide on one key. Mutations for one username serialize
// through the lease lock in lock.go; the leaf write plus every ancestor
// touch is submitted as one MULTI/EXEC transaction, so a crash between
// steps never leaves the tree half-updated.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kmerrin/stowage"
	"github.com/kmerrin/stowage/internal"
	"github.com/kmerrin/stowage/logging"
	"github.com/kmerrin/stowage/password"
)

const defaultPrefix = "stowage"

// Config configures a Redis Store. Either Client or Addr must be set;
// Client wins when both are. Zero durations take the defaults: a 10s lock
// lease, 10ms retry backoff, and an acquire timeout of twice the lease.
type Config struct {
	Addr     string
	Client   redis.UniversalClient
	Prefix   string
	Password password.Config

	// LockLease must exceed the slowest realistic critical section; an
	// expired lease is the sole recovery path from a crashed holder.
	LockLease          time.Duration
	LockBackoff        time.Duration
	LockAcquireTimeout time.Duration

	Logger logging.Logger
}

// Store is the Redis backend. It implements stowage.Store.
type Store struct {
	// client is the shared lazily-dialed connection: the first caller
	// performs the setup and everyone else reuses the cached result.
	client func() (redis.UniversalClient, error)

	prefix  string
	hasher  *password.Hasher
	clock   internal.Clock
	lease   time.Duration
	backoff time.Duration
	timeout time.Duration
	log     logging.Logger
}

var _ stowage.Store = (*Store)(nil)

// New returns a Store. No connection is made until first use.
func New(cfg Config) (*Store, error) {
	if cfg.Client == nil && cfg.Addr == "" {
		return nil, errors.New("redisstore: client or addr is required")
	}
	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	lease := cfg.LockLease
	if lease <= 0 {
		lease = 10 * time.Second
	}
	backoff := cfg.LockBackoff
	if backoff <= 0 {
		backoff = 10 * time.Millisecond
	}
	timeout := cfg.LockAcquireTimeout
	if timeout <= 0 {
		timeout = 2 * lease
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop{}
	}

	return &Store{
		client: sync.OnceValues(func() (redis.UniversalClient, error) {
			if cfg.Client != nil {
				return cfg.Client, nil
			}
			return redis.NewClient(&redis.Options{Addr: cfg.Addr}), nil
		}),
		prefix:  prefix,
		hasher:  hasher,
		lease:   lease,
		backoff: backoff,
		timeout: timeout,
		log:     log,
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

// CreateUser validates params and commits the credential record with SETNX,
// so the existence check and the write are one atomic step.
func (s *Store) CreateUser(ctx context.Context, p stowage.Params) error {
	if err := stowage.ValidateUser(p); err != nil {
		return err
	}
	rdb, err := s.client()
	if err != nil {
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

	ok, err := rdb.SetNX(ctx, s.userKey(p.Username), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return stowage.ErrUsernameTaken
	}
	return nil
}

// Authenticate verifies the password against the stored derived key.
func (s *Store) Authenticate(ctx context.Context, p stowage.Params) error {
	rdb, err := s.client()
	if err != nil {
		return err
	}

	data, err := rdb.Get(ctx, s.userKey(p.Username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return stowage.ErrUserNotFound
	}
	if err != nil {
		return err
	}

	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
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
	rdb, err := s.client()
	if err != nil {
		return "", err
	}

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

	if err := rdb.Set(ctx, s.sessionKey(username, token), data, 0).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// RevokeAccess removes the session. Absent sessions are not an error.
func (s *Store) RevokeAccess(ctx context.Context, username, token string) error {
	if err := internal.ValidToken(token); err != nil {
		return nil
	}
	rdb, err := s.client()
	if err != nil {
		return err
	}
	deleted, err := rdb.Del(ctx, s.sessionKey(username, token)).Result()
	if err == nil && deleted > 0 {
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
	rdb, err := s.client()
	if err != nil {
		return nil, err
	}

	data, err := rdb.Get(ctx, s.sessionKey(username, token)).Bytes()
	if errors.Is(err, redis.Nil) {
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
	rdb, err := s.client()
	if err != nil {
		return nil, err
	}
	data, err := rdb.Get(ctx, s.itemKey(username, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

// PutItem replaces an opaque blob.
func (s *Store) PutItem(ctx context.Context, username, key string, value []byte) error {
	rdb, err := s.client()
	if err != nil {
		return err
	}
	return rdb.Set(ctx, s.itemKey(username, key), value, 0).Err()
}

// DeleteItem removes an opaque blob. Absent keys are not an error.
func (s *Store) DeleteItem(ctx context.Context, username, key string) error {
	rdb, err := s.client()
	if err != nil {
		return err
	}
	return rdb.Del(ctx, s.itemKey(username, key)).Err()
}

func (s *Store) userKey(username string) string {
	return fmt.Sprintf("%s:auth:%s", s.prefix, username)
}

func (s *Store) sessionKey(username, token string) string {
	return fmt.Sprintf("%s:session:%s:%s", s.prefix, username, token)
}

func (s *Store) itemKey(username, key string) string {
	return fmt.Sprintf("%s:item:%s:%s", s.prefix, username, key)
}

func (s *Store) docKey(username, path string) string {
	return fmt.Sprintf("%s:doc:%s:%s", s.prefix, username, path)
}

func (s *Store) dirKey(username, dirPath string) string {
	return fmt.Sprintf("%s:dir:%s:%s", s.prefix, username, dirPath)
}

func (s *Store) dirModKey(username, dirPath string) string {
	return fmt.Sprintf("%s:dirm:%s:%s", s.prefix, username, dirPath)
}

func (s *Store) lockKey(username string) string {
	return fmt.Sprintf("%s:lock:%s", s.prefix, username)
}
