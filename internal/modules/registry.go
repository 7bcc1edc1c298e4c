package modules

import (
	"fmt"
	"path"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/iofs"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"

	"github.com/biko2/static-suite-data-server/internal/cache"
)

// moduleNamespace is the cache namespace holding loaded module handles.
const moduleNamespace = "module"

// Config wires a Registry.
type Config struct {
	// FS is the filesystem module paths resolve against.
	FS billy.Filesystem
	// QueryDir is the directory holding query modules.
	QueryDir string
	// QueryGlob selects query modules under QueryDir for eager loading.
	QueryGlob string
	// PostProcessor is the path of the post-processor module, empty for none.
	PostProcessor string

	Cache  *cache.Cache
	Logger *zap.Logger
}

// Registry caches module handles by path. Loading is always fail-loud:
// a failed reload leaves the registry with a removed entry, never a stale
// handle.
type Registry struct {
	fs        billy.Filesystem
	queryDir  string
	queryGlob string
	postPath  string
	cache     *cache.Cache
	log       *zap.Logger
}

func NewRegistry(cfg Config) *Registry {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	c := cfg.Cache
	if c == nil {
		c = cache.New()
	}
	glob := cfg.QueryGlob
	if glob == "" {
		glob = "**/*.js"
	}
	return &Registry{
		fs:        cfg.FS,
		queryDir:  cfg.QueryDir,
		queryGlob: glob,
		postPath:  cfg.PostProcessor,
		cache:     c,
		log:       log,
	}
}

// Load unconditionally (re)loads the module at modPath, discarding any prior
// cached handle first so long-lived processes pick up rebuilt module files.
func (r *Registry) Load(modPath string) (*Module, error) {
	r.cache.Remove(moduleNamespace, modPath)
	src, err := util.ReadFile(r.fs, modPath)
	if err != nil {
		return nil, &LoadError{Path: modPath, Err: err}
	}
	mod, err := compileModule(modPath, src)
	if err != nil {
		return nil, err
	}
	r.cache.Set(moduleNamespace, modPath, mod)
	r.log.Debug("module loaded", zap.String("module", modPath))
	return mod, nil
}

// Get returns the cached handle for modPath, loading it on first use.
func (r *Registry) Get(modPath string) (*Module, error) {
	if v, ok := r.cache.Get(moduleNamespace, modPath); ok {
		return v.(*Module), nil
	}
	return r.Load(modPath)
}

// Cached returns the handle for modPath only if it is already loaded,
// without triggering a load.
func (r *Registry) Cached(modPath string) (*Module, bool) {
	v, ok := r.cache.Get(moduleNamespace, modPath)
	if !ok {
		return nil, false
	}
	return v.(*Module), true
}

// Remove evicts the cached handle without loading.
func (r *Registry) Remove(modPath string) {
	r.cache.Remove(moduleNamespace, modPath)
	r.log.Debug("module removed", zap.String("module", modPath))
}

// Init eagerly loads every query module matching the configured glob plus
// the configured post-processor module, so dynamic failures surface at
// startup rather than at first use.
func (r *Registry) Init() error {
	if r.queryDir != "" {
		sub, err := r.fs.Chroot(r.queryDir)
		if err != nil {
			return fmt.Errorf("query module dir %s: %w", r.queryDir, err)
		}
		matches, err := doublestar.Glob(iofs.New(sub), r.queryGlob)
		if err != nil {
			return fmt.Errorf("glob %s under %s: %w", r.queryGlob, r.queryDir, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if _, err := r.Load(path.Join(r.queryDir, m)); err != nil {
				return err
			}
		}
		r.log.Info("query modules loaded", zap.Int("count", len(matches)))
	}
	if r.postPath != "" {
		if _, err := r.Load(r.postPath); err != nil {
			return err
		}
	}
	return nil
}
