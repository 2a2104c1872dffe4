package fsstore

import (
	"errors"
	"io/fs"
	"os"

	"github.com/google/uuid"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// writeFileAtomic replaces path's content by writing a sibling temporary
// file and renaming it over the target. A reader never observes a partial
// file; a crash mid-write leaves only an orphaned temp file, swept later by
// directory listings.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + tmpSuffix()
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// createFileExclusive commits full content at path only if nothing exists
// there yet, as one atomic step: the content goes to a temporary file which
// is then hard-linked to the target. Link fails with fs.ErrExist when the
// target is already present, so an existence check and the content commit
// cannot race apart.
func createFileExclusive(path string, data []byte) error {
	tmp := path + tmpSuffix()
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return err
	}
	err := os.Link(tmp, path)
	os.Remove(tmp)
	if err != nil && errors.Is(err, fs.ErrExist) {
		return fs.ErrExist
	}
	return err
}

func tmpSuffix() string {
	return ".tmp." + uuid.NewString()
}
