package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kmerrin/stowage"
)

// acquireLock takes the per-user lease lock shared by every process on this
// backend. The lock key holds its own expiry instant in Unix milliseconds:
//
//   - SETNX of now+lease wins an absent lock outright;
//   - an unexpired holder means backoff and retry, bounded by the acquire
//     timeout;
//   - an expired holder is taken over with GETSET — the swap counts only if
//     the previous value read back is the same expired instant we just
//     observed, which defeats two observers both seeing it expired and both
//     claiming the takeover.
//
// The returned release deletes the key only while our own lease is still
// unexpired, so a long pause can never delete a newer owner's lock.
func (s *Store) acquireLock(ctx context.Context, username string) (release func(), err error) {
	rdb, err := s.client()
	if err != nil {
		return nil, err
	}

	key := s.lockKey(username)
	deadline := time.Now().Add(s.timeout)

	for attempt := 0; ; attempt++ {
		now := time.Now().UnixMilli()
		expiry := now + s.lease.Milliseconds()

		ok, err := rdb.SetNX(ctx, key, expiry, 0).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return s.releaseFunc(rdb, key, expiry), nil
		}

		current, err := rdb.Get(ctx, key).Int64()
		if errors.Is(err, redis.Nil) {
			// Released between our SETNX and GET; try again at once.
			continue
		}
		if err != nil {
			return nil, err
		}

		if current > now {
			if time.Now().After(deadline) {
				return nil, stowage.ErrLockTimeout
			}
			if attempt > 0 && attempt%100 == 0 {
				s.log.Warn(ctx, "lock still contended", "user", username, "attempt", attempt)
			}
			select {
			case <-time.After(s.backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		expiry = time.Now().UnixMilli() + s.lease.Milliseconds()
		previous, err := rdb.GetSet(ctx, key, expiry).Int64()
		if errors.Is(err, redis.Nil) {
			// Key vanished mid-takeover; our GETSET installed the lease.
			return s.releaseFunc(rdb, key, expiry), nil
		}
		if err != nil {
			return nil, err
		}
		if previous == current {
			s.log.Debug(ctx, "took over expired lock", "user", username)
			return s.releaseFunc(rdb, key, expiry), nil
		}
		// Another observer won the takeover race; go around.
	}
}

func (s *Store) releaseFunc(rdb redis.UniversalClient, key string, expiry int64) func() {
	return func() {
		if time.Now().UnixMilli() >= expiry {
			// Lease already expired: the key may belong to a new owner.
			return
		}
		// Release must proceed even when the guarded operation's context
		// was canceled.
		ctx := context.Background()
		if err := rdb.Del(ctx, key).Err(); err != nil {
			s.log.Error(ctx, "lock release failed", "key", key, "error", err)
		}
	}
}
