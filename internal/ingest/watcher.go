package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/biko2/static-suite-data-server/internal/resolver"
	"github.com/biko2/static-suite-data-server/internal/store"
)

const defaultDebounce = 500 * time.Millisecond

// WatchConfig configures incremental data-dir watching.
type WatchConfig struct {
	// Glob selects which changed files are applied to the store.
	Glob string
	// Debounce is how long to wait for more changes before applying a
	// batch. Content exports tend to write many files at once.
	Debounce time.Duration
}

// Watcher translates filesystem events under the data dir into store
// mutations against the live tree: create/write become update, remove and
// rename become remove. Changed documents get their static includes
// re-resolved.
type Watcher struct {
	baseDir  string
	glob     string
	debounce time.Duration
	st       *store.Store
	res      *resolver.Resolver
	log      *zap.Logger

	fsw *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op
}

func NewWatcher(baseDir string, cfg WatchConfig, st *store.Store, res *resolver.Resolver, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	glob := cfg.Glob
	if glob == "" {
		glob = "**/*.json"
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		baseDir:  baseDir,
		glob:     glob,
		debounce: debounce,
		st:       st,
		res:      res,
		log:      log,
		pending:  map[string]fsnotify.Op{},
	}
}

// Start begins watching the data dir tree and applies batched changes until
// ctx is cancelled. fsnotify has no recursive mode, so every directory is
// registered individually and new directories are added as they appear.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	if err := w.addRecursive(w.baseDir); err != nil {
		_ = fsw.Close()
		return err
	}
	go w.loop(ctx)
	w.log.Info("watching data dir", zap.String("dir", w.baseDir))
	return nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(p)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			_ = w.fsw.Close()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.observe(ev)
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error", zap.Error(err))
		case <-timer.C:
			w.flush()
		}
	}
}

func (w *Watcher) observe(ev fsnotify.Event) {
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.log.Error("watch new dir", zap.String("dir", ev.Name), zap.Error(err))
			}
			return
		}
	}
	rel, err := filepath.Rel(w.baseDir, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if ok, _ := doublestar.Match(w.glob, rel); !ok {
		return
	}
	w.pendingMu.Lock()
	w.pending[rel] |= ev.Op
	w.pendingMu.Unlock()
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	pending := w.pending
	w.pending = map[string]fsnotify.Op{}
	w.pendingMu.Unlock()

	for rel, op := range pending {
		if err := w.Apply(rel, op); err != nil {
			w.log.Error("apply change", zap.String("file", rel), zap.Error(err))
		}
	}
}

// Apply maps one batched event to a store mutation. A file that was both
// removed and recreated within the window nets out to an update.
func (w *Watcher) Apply(rel string, op fsnotify.Op) error {
	switch {
	case op.Has(fsnotify.Create) || op.Has(fsnotify.Write):
		if err := w.st.Update(w.baseDir, rel); err != nil {
			return err
		}
		w.log.Debug("document updated from watch", zap.String("file", rel))
		if w.res != nil {
			if v, ok := w.st.Get(rel); ok {
				if doc, ok := v.(*store.Document); ok {
					return w.res.Static(doc)
				}
			}
		}
		return nil
	case op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename):
		w.log.Debug("document removed from watch", zap.String("file", rel))
		return w.st.Remove(rel)
	}
	return nil
}
