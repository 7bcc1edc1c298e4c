// Package ingest feeds the store: a billy-backed file reader, a data-dir
// loader that stages full builds, and a filesystem watcher that applies
// incremental updates to the live tree.
package ingest

import (
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Reader pulls file bodies from a billy filesystem. It implements the
// store's FileReader contract.
type Reader struct {
	fs billy.Filesystem
}

func NewReader(fs billy.Filesystem) *Reader {
	return &Reader{fs: fs}
}

func (r *Reader) ReadFile(baseDir, relPath string) ([]byte, error) {
	return util.ReadFile(r.fs, path.Join(baseDir, relPath))
}
