package redisstore

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/kmerrin/stowage"
	"github.com/kmerrin/stowage/pathname"
)

// Get resolves a document or, for paths with a trailing separator, a
// directory listing. Reads are lock-free: a document lives in a single hash
// replaced atomically, and a listing reads its two keys inside MULTI/EXEC.
func (s *Store) Get(ctx context.Context, username, path string, version *int64) (*stowage.Item, bool, error) {
	if pathname.IsDir(path) {
		return s.getDir(ctx, username, path, version)
	}
	return s.getDoc(ctx, username, path, version)
}

func (s *Store) getDoc(ctx context.Context, username, path string, version *int64) (*stowage.Item, bool, error) {
	rdb, err := s.client()
	if err != nil {
		return nil, false, err
	}

	fields, err := rdb.HGetAll(ctx, s.docKey(username, pathname.Clean(path))).Result()
	if err != nil {
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	modified, err := strconv.ParseInt(fields["modified"], 10, 64)
	if err != nil {
		return nil, false, err
	}
	item := &stowage.Item{
		ContentType: fields["type"],
		Value:       []byte(fields["value"]),
		Modified:    modified,
	}
	return item, version != nil && *version == modified, nil
}

func (s *Store) getDir(ctx context.Context, username, path string, version *int64) (*stowage.Item, bool, error) {
	rdb, err := s.client()
	if err != nil {
		return nil, false, err
	}
	dirPath := pathname.Clean(path)

	var childrenCmd *redis.MapStringStringCmd
	var modCmd *redis.StringCmd
	_, err = rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		childrenCmd = pipe.HGetAll(ctx, s.dirKey(username, dirPath))
		modCmd = pipe.Get(ctx, s.dirModKey(username, dirPath))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, err
	}

	entries := childrenCmd.Val()
	if len(entries) == 0 {
		if dirPath == "/" {
			// Root absence is an empty listing, not a missing node.
			return &stowage.Item{IsDir: true, Children: []stowage.Child{}}, false, nil
		}
		return nil, false, nil
	}

	children := make([]stowage.Child, 0, len(entries))
	for name, raw := range entries {
		modified, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, false, err
		}
		children = append(children, stowage.Child{Name: name, Modified: modified})
	}
	sortChildren(children)

	var modified int64
	if raw, err := modCmd.Result(); err == nil {
		if modified, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, false, err
		}
	}

	item := &stowage.Item{IsDir: true, Children: children, Modified: modified}
	return item, version != nil && *version == modified, nil
}

// Put conditionally replaces the document at path. The leaf hash and every
// ancestor touch are submitted as one MULTI/EXEC transaction under the
// per-user lease lock.
func (s *Store) Put(ctx context.Context, username, path, contentType string, value []byte, version *int64) (stowage.PutResult, error) {
	segs := pathname.Split(path)
	if pathname.IsDir(path) || len(segs) == 0 {
		return stowage.PutResult{}, stowage.ErrIsDirectory
	}
	rdb, err := s.client()
	if err != nil {
		return stowage.PutResult{}, err
	}
	docPath := pathname.Clean(path)

	release, err := s.acquireLock(ctx, username)
	if err != nil {
		return stowage.PutResult{}, err
	}
	defer release()

	if err := s.checkNodeClash(ctx, rdb, username, docPath, segs); err != nil {
		return stowage.PutResult{}, err
	}

	current, exists, err := s.docModified(ctx, rdb, username, docPath)
	if err != nil {
		return stowage.PutResult{}, err
	}
	if version != nil && (!exists || current != *version) {
		return stowage.PutResult{Conflict: true}, nil
	}

	ts := s.clock.NowMillis()
	_, err = rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.docKey(username, docPath),
			"type", contentType,
			"value", value,
			"modified", ts,
		)
		for i := len(segs) - 1; i >= 0; i-- {
			dirPath := dirPathOf(segs[:i])
			pipe.HSet(ctx, s.dirKey(username, dirPath), childName(segs, i), ts)
			pipe.Set(ctx, s.dirModKey(username, dirPath), ts, 0)
		}
		return nil
	})
	if err != nil {
		return stowage.PutResult{}, err
	}

	return stowage.PutResult{Created: !exists, Modified: ts}, nil
}

// Delete conditionally removes the document at path. The ancestor plan —
// which directories prune away, which one gets a recomputed instant — is
// derived from reads made under the lease lock, then applied together with
// the leaf removal as one MULTI/EXEC transaction.
func (s *Store) Delete(ctx context.Context, username, path string, version *int64) (stowage.DeleteResult, error) {
	segs := pathname.Split(path)
	if pathname.IsDir(path) || len(segs) == 0 {
		return stowage.DeleteResult{}, stowage.ErrIsDirectory
	}
	rdb, err := s.client()
	if err != nil {
		return stowage.DeleteResult{}, err
	}
	docPath := pathname.Clean(path)

	release, err := s.acquireLock(ctx, username)
	if err != nil {
		return stowage.DeleteResult{}, err
	}
	defer release()

	current, exists, err := s.docModified(ctx, rdb, username, docPath)
	if err != nil {
		return stowage.DeleteResult{}, err
	}
	if !exists {
		if version != nil {
			return stowage.DeleteResult{Conflict: true}, nil
		}
		return stowage.DeleteResult{}, nil
	}
	if version != nil && current != *version {
		return stowage.DeleteResult{Conflict: true}, nil
	}

	type pruneStep struct {
		dirPath string
		child   string
		prune   bool
		newMax  int64
	}
	var steps []pruneStep
	for i := len(segs) - 1; i >= 0; i-- {
		dirPath := dirPathOf(segs[:i])
		entries, err := rdb.HGetAll(ctx, s.dirKey(username, dirPath)).Result()
		if err != nil {
			return stowage.DeleteResult{}, err
		}

		child := childName(segs, i)
		delete(entries, child)
		if len(entries) == 0 {
			steps = append(steps, pruneStep{dirPath: dirPath, child: child, prune: true})
			continue
		}

		var newMax int64
		for _, raw := range entries {
			modified, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return stowage.DeleteResult{}, err
			}
			newMax = max(newMax, modified)
		}
		steps = append(steps, pruneStep{dirPath: dirPath, child: child, newMax: newMax})
		// Shallower ancestors keep their instants: their max-of-children
		// is unchanged by this delete.
		break
	}

	_, err = rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(username, docPath))
		for _, step := range steps {
			if step.prune {
				pipe.Del(ctx,
					s.dirKey(username, step.dirPath),
					s.dirModKey(username, step.dirPath),
				)
				continue
			}
			pipe.HDel(ctx, s.dirKey(username, step.dirPath), step.child)
			pipe.Set(ctx, s.dirModKey(username, step.dirPath), step.newMax, 0)
		}
		return nil
	})
	if err != nil {
		return stowage.DeleteResult{}, err
	}

	return stowage.DeleteResult{Existed: true, Modified: current}, nil
}

func (s *Store) docModified(ctx context.Context, rdb redis.UniversalClient, username, docPath string) (int64, bool, error) {
	raw, err := rdb.HGet(ctx, s.docKey(username, docPath), "modified").Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	modified, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return modified, true, nil
}

// checkNodeClash enforces that no prefix of the target path is an existing
// document and that the target itself is not an existing directory.
func (s *Store) checkNodeClash(ctx context.Context, rdb redis.UniversalClient, username, docPath string, segs []string) error {
	for i := 1; i < len(segs); i++ {
		prefixDoc := "/" + strings.Join(segs[:i], "/")
		n, err := rdb.Exists(ctx, s.docKey(username, prefixDoc)).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return stowage.ErrNotDirectory
		}
	}
	n, err := rdb.Exists(ctx, s.dirKey(username, docPath+"/")).Result()
	if err != nil {
		return err
	}
	if n > 0 {
		return stowage.ErrIsDirectory
	}
	return nil
}

// childName is the entry name of segs[i] inside its parent directory:
// directory children carry a trailing separator.
func childName(segs []string, i int) string {
	if i < len(segs)-1 {
		return segs[i] + "/"
	}
	return segs[i]
}

func dirPathOf(segs []string) string {
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/") + "/"
}

func sortChildren(children []stowage.Child) {
	slices.SortFunc(children, func(a, b stowage.Child) int {
		return strings.Compare(a.Name, b.Name)
	})
}
