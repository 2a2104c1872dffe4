package fsstore

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kmerrin/stowage"
	"github.com/kmerrin/stowage/pathname"
)

const (
	dirSuffix   = ".d"
	blobSuffix  = ".f"
	metaSuffix  = ".m"
	dirMetaName = ".dirmeta"
)

type docMeta struct {
	ContentType string `json:"contentType"`
	Length      int    `json:"length"`
	Modified    int64  `json:"modified"`
}

type dirMeta struct {
	Modified int64 `json:"modified"`
}

// Get resolves a document or, for paths with a trailing separator, a
// directory listing. Document reads are lock-free: the rename-based write
// primitive guarantees each file is observed whole. Listings take the
// per-user lock so they see a consistent snapshot while a sibling write is
// touching metadata.
func (s *Store) Get(ctx context.Context, username, path string, version *int64) (*stowage.Item, bool, error) {
	if pathname.IsDir(path) {
		return s.getDir(ctx, username, path, version)
	}
	return s.getDoc(username, path, version)
}

func (s *Store) getDoc(username, path string, version *int64) (*stowage.Item, bool, error) {
	segs := pathname.Split(path)
	parent := s.treeDir(username, segs[:len(segs)-1])
	name := segs[len(segs)-1]

	meta, err := readDocMeta(filepath.Join(parent, name+metaSuffix))
	if err != nil || meta == nil {
		return nil, false, err
	}
	value, err := os.ReadFile(filepath.Join(parent, name+blobSuffix))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	item := &stowage.Item{
		ContentType: meta.ContentType,
		Value:       value,
		Modified:    meta.Modified,
	}
	return item, version != nil && *version == meta.Modified, nil
}

func (s *Store) getDir(ctx context.Context, username, path string, version *int64) (*stowage.Item, bool, error) {
	segs := pathname.Split(path)

	release := s.locks.Acquire(username)
	defer release()

	dir := s.treeDir(username, segs)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		if len(segs) == 0 {
			// Root absence is an empty listing, not a missing node.
			return &stowage.Item{IsDir: true, Children: []stowage.Child{}}, false, nil
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	children := make([]stowage.Child, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case name == dirMetaName:
		case entry.IsDir() && strings.HasSuffix(name, dirSuffix):
			children = append(children, stowage.Child{
				Name:     strings.TrimSuffix(name, dirSuffix) + "/",
				Modified: readDirMeta(filepath.Join(dir, name)),
			})
		case strings.HasSuffix(name, metaSuffix):
			meta, err := readDocMeta(filepath.Join(dir, name))
			if err != nil || meta == nil {
				continue
			}
			children = append(children, stowage.Child{
				Name:     strings.TrimSuffix(name, metaSuffix),
				Modified: meta.Modified,
			})
		case isOrphanTemp(name):
			// Crash debris from the write primitive. The suffix checks
			// above run first, so a document whose own name contains
			// ".tmp." is never mistaken for debris.
			os.Remove(filepath.Join(dir, name))
			s.log.Debug(ctx, "swept orphan temp file", "user", username, "name", name)
		}
	}
	slices.SortFunc(children, func(a, b stowage.Child) int {
		return strings.Compare(a.Name, b.Name)
	})

	modified := readDirMeta(dir)
	item := &stowage.Item{IsDir: true, Children: children, Modified: modified}
	return item, version != nil && *version == modified, nil
}

// Put conditionally replaces the document at path and stamps the new
// modified instant on it and on every ancestor directory, creating missing
// intermediates. Each file lands via the atomic write primitive; the
// per-user lock keeps the multi-file sequence from interleaving with other
// mutations.
func (s *Store) Put(ctx context.Context, username, path, contentType string, value []byte, version *int64) (stowage.PutResult, error) {
	segs := pathname.Split(path)
	if pathname.IsDir(path) || len(segs) == 0 {
		return stowage.PutResult{}, stowage.ErrIsDirectory
	}

	release := s.locks.Acquire(username)
	defer release()

	if err := s.checkNodeClash(username, segs); err != nil {
		return stowage.PutResult{}, err
	}

	parent := s.treeDir(username, segs[:len(segs)-1])
	name := segs[len(segs)-1]
	metaPath := filepath.Join(parent, name+metaSuffix)

	existing, err := readDocMeta(metaPath)
	if err != nil {
		return stowage.PutResult{}, err
	}
	if version != nil && (existing == nil || existing.Modified != *version) {
		return stowage.PutResult{Conflict: true}, nil
	}

	ts := s.clock.NowMillis()
	if err := os.MkdirAll(parent, dirPerm); err != nil {
		return stowage.PutResult{}, err
	}
	if err := writeFileAtomic(filepath.Join(parent, name+blobSuffix), value); err != nil {
		return stowage.PutResult{}, err
	}
	meta, err := json.Marshal(docMeta{ContentType: contentType, Length: len(value), Modified: ts})
	if err != nil {
		return stowage.PutResult{}, err
	}
	if err := writeFileAtomic(metaPath, meta); err != nil {
		return stowage.PutResult{}, err
	}
	if err := s.touchAncestors(username, segs, ts); err != nil {
		return stowage.PutResult{}, err
	}

	return stowage.PutResult{Created: existing == nil, Modified: ts}, nil
}

// Delete conditionally removes the document at path, then walks ancestors
// deepest-first: now-empty directories are pruned (the cascade can climb
// several levels), and the first ancestor that still has children gets its
// modified instant recomputed as the max over what remains. Shallower
// ancestors keep their instants, since their max-of-children is unchanged.
func (s *Store) Delete(ctx context.Context, username, path string, version *int64) (stowage.DeleteResult, error) {
	segs := pathname.Split(path)
	if pathname.IsDir(path) || len(segs) == 0 {
		return stowage.DeleteResult{}, stowage.ErrIsDirectory
	}

	release := s.locks.Acquire(username)
	defer release()

	parent := s.treeDir(username, segs[:len(segs)-1])
	name := segs[len(segs)-1]
	metaPath := filepath.Join(parent, name+metaSuffix)

	existing, err := readDocMeta(metaPath)
	if err != nil {
		return stowage.DeleteResult{}, err
	}
	if existing == nil {
		if version != nil {
			return stowage.DeleteResult{Conflict: true}, nil
		}
		return stowage.DeleteResult{}, nil
	}
	if version != nil && existing.Modified != *version {
		return stowage.DeleteResult{Conflict: true}, nil
	}

	if err := os.Remove(filepath.Join(parent, name+blobSuffix)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return stowage.DeleteResult{}, err
	}
	if err := os.Remove(metaPath); err != nil {
		return stowage.DeleteResult{}, err
	}

	for i := len(segs) - 1; i >= 0; i-- {
		dir := s.treeDir(username, segs[:i])
		maxModified, count, err := scanChildren(dir)
		if err != nil {
			return stowage.DeleteResult{}, err
		}
		if count == 0 {
			if err := os.RemoveAll(dir); err != nil {
				return stowage.DeleteResult{}, err
			}
			continue
		}
		meta, err := json.Marshal(dirMeta{Modified: maxModified})
		if err != nil {
			return stowage.DeleteResult{}, err
		}
		if err := writeFileAtomic(filepath.Join(dir, dirMetaName), meta); err != nil {
			return stowage.DeleteResult{}, err
		}
		break
	}

	return stowage.DeleteResult{Existed: true, Modified: existing.Modified}, nil
}

func (s *Store) treeDir(username string, segs []string) string {
	dir := s.dataDir(username)
	for _, seg := range segs {
		dir = filepath.Join(dir, seg+dirSuffix)
	}
	return dir
}

// checkNodeClash enforces that no prefix of the target path is an existing
// document and that the target itself is not an existing directory.
func (s *Store) checkNodeClash(username string, segs []string) error {
	for i := 1; i < len(segs); i++ {
		docPath := filepath.Join(s.treeDir(username, segs[:i-1]), segs[i-1]+metaSuffix)
		if _, err := os.Stat(docPath); err == nil {
			return stowage.ErrNotDirectory
		}
	}
	leafDir := s.treeDir(username, segs)
	if _, err := os.Stat(leafDir); err == nil {
		return stowage.ErrIsDirectory
	}
	return nil
}

func (s *Store) touchAncestors(username string, segs []string, ts int64) error {
	meta, err := json.Marshal(dirMeta{Modified: ts})
	if err != nil {
		return err
	}
	for i := len(segs) - 1; i >= 0; i-- {
		dir := s.treeDir(username, segs[:i])
		if err := writeFileAtomic(filepath.Join(dir, dirMetaName), meta); err != nil {
			return err
		}
	}
	return nil
}

// scanChildren reports the number of child nodes in dir and the max of
// their modified instants.
func scanChildren(dir string) (maxModified int64, count int, err error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}

	for _, entry := range entries {
		name := entry.Name()
		var modified int64
		switch {
		case name == dirMetaName:
			continue
		case entry.IsDir() && strings.HasSuffix(name, dirSuffix):
			modified = readDirMeta(filepath.Join(dir, name))
		case strings.HasSuffix(name, metaSuffix):
			meta, merr := readDocMeta(filepath.Join(dir, name))
			if merr != nil || meta == nil {
				continue
			}
			modified = meta.Modified
		default:
			// Content blobs are counted via their sidecar; orphan temp
			// files are not nodes at all.
			continue
		}
		count++
		maxModified = max(maxModified, modified)
	}
	return maxModified, count, nil
}

// isOrphanTemp recognizes leftovers of the atomic write primitive: names
// carrying a ".tmp.<uuid>" tail, which therefore end in neither a node
// suffix nor the dirmeta name.
func isOrphanTemp(name string) bool {
	return strings.Contains(name, ".tmp.") &&
		!strings.HasSuffix(name, blobSuffix) &&
		!strings.HasSuffix(name, metaSuffix) &&
		!strings.HasSuffix(name, dirSuffix)
}

func readDocMeta(path string) (*docMeta, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta docMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func readDirMeta(dir string) int64 {
	data, err := os.ReadFile(filepath.Join(dir, dirMetaName))
	if err != nil {
		return 0
	}
	var meta dirMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return 0
	}
	return meta.Modified
}
