package ingest

import (
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/iofs"
	"go.uber.org/zap"

	"github.com/biko2/static-suite-data-server/internal/resolver"
	"github.com/biko2/static-suite-data-server/internal/store"
)

// Loader builds the whole store from a data directory. Files are staged so
// live readers keep a consistent tree until promotion.
type Loader struct {
	fs  billy.Filesystem
	st  *store.Store
	res *resolver.Resolver
	log *zap.Logger
}

func NewLoader(fs billy.Filesystem, st *store.Store, res *resolver.Resolver, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{fs: fs, st: st, res: res, log: log}
}

// LoadAll stages every file under baseDir matching glob, promotes the
// staging tree, then runs the static include pass over the new live tree.
func (l *Loader) LoadAll(baseDir, glob string) error {
	sub, err := l.fs.Chroot(baseDir)
	if err != nil {
		return fmt.Errorf("data dir %s: %w", baseDir, err)
	}
	matches, err := doublestar.Glob(iofs.New(sub), glob, doublestar.WithFilesOnly())
	if err != nil {
		return fmt.Errorf("glob %s under %s: %w", glob, baseDir, err)
	}
	sort.Strings(matches)

	for _, m := range matches {
		if err := l.st.Add(baseDir, m, store.AddOptions{UseStage: true, UseCache: true}); err != nil {
			return err
		}
	}
	l.st.PromoteStage()
	l.log.Info("data dir loaded",
		zap.String("dir", baseDir),
		zap.Int("files", len(matches)))

	if l.res != nil {
		return l.res.ResolveAll()
	}
	return nil
}
