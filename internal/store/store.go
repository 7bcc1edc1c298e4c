// Package store maintains the in-memory, path-indexed document tree built
// from a directory of exported JSON/text files. Every tree level carries an
// aggregation Index of the documents beneath it, and a parallel staging tree
// supports full rebuilds that are promoted with a single atomic swap.
package store

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/ohler55/ojg/oj"
	"go.uber.org/zap"

	"github.com/biko2/static-suite-data-server/internal/cache"
)

// fileNamespace is the cache namespace holding FileContent entries keyed by
// the joined base dir + relative path.
const fileNamespace = "file"

// Post-processor hook names. A module only receives a hook it exposes.
const (
	HookProcessFile = "processFile"
	HookStoreAdd    = "storeAdd"
	HookStoreRemove = "storeRemove"
)

// FileContent is the cached read result for one file: the raw bytes plus the
// parsed JSON value, or the raw text again when the body is not valid JSON.
type FileContent struct {
	Raw    []byte
	Parsed any
}

// FileReader is the pull contract to the external file ingestion source.
// The store does not care how files are discovered.
type FileReader interface {
	ReadFile(baseDir, relPath string) ([]byte, error)
}

// HookPayload is handed to post-processor hooks.
type HookPayload struct {
	BaseDir string
	File    string
	Raw     []byte
	Parsed  any
	Store   *Store
}

// PostProcessor is the optional per-file extension hook contract. Has
// reports whether the loaded module exposes a given hook; the store never
// invokes a hook the module does not expose. Hook failures are not caught
// here and propagate to the caller.
type PostProcessor interface {
	Has(hook string) bool
	ProcessFile(p HookPayload) (raw []byte, parsed any, err error)
	StoreAdd(p HookPayload) error
	StoreRemove(p HookPayload) error
}

// AddOptions selects the target tree and the read path for Add.
type AddOptions struct {
	// UseStage writes into the staging tree instead of the live tree.
	UseStage bool
	// UseCache serves the file body from the cache when an entry exists.
	UseCache bool
}

// Config wires a Store's collaborators.
type Config struct {
	Reader        FileReader
	Cache         *cache.Cache
	PostProcessor PostProcessor
	Logger        *zap.Logger
}

// Store owns the live tree and the staging tree. Readers share the live tree
// without locking; callers serialize Add/Remove/Update against it. The only
// lock guards the root pointers so PromoteStage is an atomic swap for
// concurrent readers.
type Store struct {
	mu    sync.RWMutex
	live  map[string]any
	stage map[string]any

	cache  *cache.Cache
	reader FileReader
	post   PostProcessor
	log    *zap.Logger
}

func New(cfg Config) *Store {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	c := cfg.Cache
	if c == nil {
		c = cache.New()
	}
	return &Store{
		live:   newTree(),
		stage:  newTree(),
		cache:  c,
		reader: cfg.Reader,
		post:   cfg.PostProcessor,
		log:    log,
	}
}

func newTree() map[string]any {
	return map[string]any{IndexKey: newIndex()}
}

// Add ingests one file into the tree, creating intermediate levels as needed
// and appending the document to every visited level's index. An empty path
// or a path containing the reserved index segment is refused silently (the
// latter with a warning).
func (s *Store) Add(baseDir, relPath string, opts AddOptions) error {
	segments := splitPath(relPath)
	if len(segments) == 0 {
		return nil
	}
	for _, seg := range segments {
		if seg == IndexKey {
			s.log.Warn("skipping file with reserved path segment",
				zap.String("file", relPath),
				zap.String("segment", IndexKey))
			return nil
		}
	}
	relPath = strings.Join(segments, "/")

	content, err := s.fileContent(baseDir, relPath, opts.UseCache)
	if err != nil {
		return err
	}
	raw, parsed := content.Raw, content.Parsed
	if s.post != nil && s.post.Has(HookProcessFile) {
		raw, parsed, err = s.post.ProcessFile(HookPayload{
			BaseDir: baseDir, File: relPath, Raw: raw, Parsed: parsed, Store: s,
		})
		if err != nil {
			return fmt.Errorf("%s hook for %s: %w", HookProcessFile, relPath, err)
		}
	}

	doc := &Document{FilePath: relPath, Raw: raw, Data: parsed}
	var root map[string]any
	if opts.UseStage {
		root = s.stage
	} else {
		root = s.liveTree()
	}
	insert(root, segments, doc)

	if s.post != nil && s.post.Has(HookStoreAdd) {
		if err := s.post.StoreAdd(HookPayload{
			BaseDir: baseDir, File: relPath, Raw: raw, Parsed: doc.Data, Store: s,
		}); err != nil {
			return fmt.Errorf("%s hook for %s: %w", HookStoreAdd, relPath, err)
		}
	}
	s.log.Debug("document added", zap.String("file", relPath), zap.Bool("stage", opts.UseStage))
	return nil
}

// Remove deletes the document at relPath from the live tree and from every
// ancestor index it was inserted into. Absent paths are a graceful no-op.
func (s *Store) Remove(relPath string) error {
	segments := splitPath(relPath)
	if len(segments) == 0 {
		return nil
	}
	node := s.liveTree()
	visited := make([]*Index, 0, len(segments))
	visited = append(visited, indexOf(node))

	// Descend through directory segments only; the filename segment is
	// handled below against its parent.
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			return nil
		}
		node = child
		visited = append(visited, indexOf(node))
	}

	leaf := segments[len(segments)-1]
	doc, ok := node[leaf].(*Document)
	if !ok {
		return nil
	}
	delete(node, leaf)

	variant := doc.Variant()
	for _, ix := range visited {
		if ix != nil {
			ix.remove(doc, variant)
		}
	}

	if s.post != nil && s.post.Has(HookStoreRemove) {
		if err := s.post.StoreRemove(HookPayload{
			File: relPath, Raw: doc.Raw, Parsed: doc.Data, Store: s,
		}); err != nil {
			return fmt.Errorf("%s hook for %s: %w", HookStoreRemove, relPath, err)
		}
	}
	s.log.Debug("document removed", zap.String("file", relPath))
	return nil
}

// Update re-ingests a file into the live tree: remove then add, always
// re-reading from disk. Not atomic; a concurrent reader may observe the
// document absent between the two steps.
func (s *Store) Update(baseDir, relPath string) error {
	if err := s.Remove(relPath); err != nil {
		return err
	}
	return s.Add(baseDir, relPath, AddOptions{})
}

// Get walks the live tree. It returns the document, subtree map, or index
// found at relPath, and false when any segment is missing.
func (s *Store) Get(relPath string) (any, bool) {
	segments := splitPath(relPath)
	if len(segments) == 0 {
		return nil, false
	}
	var node any = s.liveTree()
	for _, seg := range segments {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// PromoteStage atomically replaces the live tree with the staging tree and
// resets staging to an empty skeleton.
func (s *Store) PromoteStage() {
	s.mu.Lock()
	s.live = s.stage
	s.stage = newTree()
	s.mu.Unlock()
	s.log.Info("staging tree promoted")
}

// Tree returns the live tree root. Shared with all readers.
func (s *Store) Tree() map[string]any {
	return s.liveTree()
}

// RootIndex returns the live tree's root-level index, which aggregates every
// document in the store.
func (s *Store) RootIndex() *Index {
	return indexOf(s.liveTree())
}

func (s *Store) liveTree() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

func (s *Store) fileContent(baseDir, relPath string, useCache bool) (FileContent, error) {
	key := path.Join(baseDir, relPath)
	if useCache {
		if v, ok := s.cache.Get(fileNamespace, key); ok {
			return v.(FileContent), nil
		}
	}
	raw, err := s.reader.ReadFile(baseDir, relPath)
	if err != nil {
		return FileContent{}, fmt.Errorf("read %s: %w", key, err)
	}
	content := FileContent{Raw: raw, Parsed: parseBody(raw)}
	s.cache.Set(fileNamespace, key, content)
	return content, nil
}

// parseBody returns the parsed JSON value, or the raw text when the body is
// not valid JSON. Malformed content is not an error.
func parseBody(raw []byte) any {
	if v, err := oj.Parse(raw); err == nil {
		return v
	}
	return string(raw)
}

func insert(root map[string]any, segments []string, doc *Document) {
	variant := doc.Variant()
	node := root
	indexOf(node).add(doc, variant)
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = newTree()
			node[seg] = child
		}
		node = child
		indexOf(node).add(doc, variant)
	}
	node[segments[len(segments)-1]] = doc
}

func indexOf(node map[string]any) *Index {
	ix, _ := node[IndexKey].(*Index)
	return ix
}

// splitPath normalizes slashes and drops empty and "." segments, so a path
// like "en//node/./1.json" cannot introduce phantom tree levels.
func splitPath(p string) []string {
	var segs []string
	for _, seg := range strings.Split(strings.ReplaceAll(p, "\\", "/"), "/") {
		if seg == "" || seg == "." {
			continue
		}
		segs = append(segs, seg)
	}
	return segs
}
