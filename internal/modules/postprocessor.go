package modules

import (
	"github.com/biko2/static-suite-data-server/internal/store"
)

// PostProcessor adapts the configured post-processor module to the store's
// hook contract. Hooks resolve the module through the registry on every
// invocation, so a hot reload takes effect immediately.
type PostProcessor struct {
	reg  *Registry
	path string
}

func NewPostProcessor(reg *Registry, modPath string) *PostProcessor {
	return &PostProcessor{reg: reg, path: modPath}
}

// Has consults only the cached handle. With no handle cached it reports
// every hook as present, so the hook call itself performs the load and a
// broken module fails the calling operation instead of being skipped.
func (p *PostProcessor) Has(hook string) bool {
	mod, ok := p.reg.Cached(p.path)
	if !ok {
		return true
	}
	return mod.Has(hook)
}

// ProcessFile hands raw and parsed content to the module, which may rewrite
// both before insertion. A module returning nothing leaves the content
// untouched.
func (p *PostProcessor) ProcessFile(pl store.HookPayload) ([]byte, any, error) {
	mod, err := p.reg.Get(p.path)
	if err != nil {
		return nil, nil, err
	}
	if !mod.Has(store.HookProcessFile) {
		return pl.Raw, pl.Parsed, nil
	}
	res, err := mod.Call(store.HookProcessFile, hookArg(pl))
	if err != nil {
		return nil, nil, err
	}
	m, ok := res.(map[string]any)
	if !ok {
		return pl.Raw, pl.Parsed, nil
	}
	raw := pl.Raw
	if s, ok := m["raw"].(string); ok {
		raw = []byte(s)
	}
	parsed := pl.Parsed
	if v, ok := m["parsed"]; ok {
		parsed = v
	}
	return raw, parsed, nil
}

func (p *PostProcessor) StoreAdd(pl store.HookPayload) error {
	mod, err := p.reg.Get(p.path)
	if err != nil {
		return err
	}
	if !mod.Has(store.HookStoreAdd) {
		return nil
	}
	_, err = mod.Call(store.HookStoreAdd, hookArg(pl))
	return err
}

func (p *PostProcessor) StoreRemove(pl store.HookPayload) error {
	mod, err := p.reg.Get(p.path)
	if err != nil {
		return err
	}
	if !mod.Has(store.HookStoreRemove) {
		return nil
	}
	_, err = mod.Call(store.HookStoreRemove, hookArg(pl))
	return err
}

func hookArg(pl store.HookPayload) map[string]any {
	return map[string]any{
		"baseDir": pl.BaseDir,
		"file":    pl.File,
		"raw":     string(pl.Raw),
		"parsed":  pl.Parsed,
		"store":   storeFacade(pl.Store),
	}
}

// storeFacade exposes the store's lookup primitive to module code. Document
// hits yield the document body; subtree hits yield the tree level itself.
func storeFacade(s *store.Store) map[string]any {
	if s == nil {
		return nil
	}
	return map[string]any{
		"get": func(p string) any {
			v, ok := s.Get(p)
			if !ok {
				return nil
			}
			if doc, ok := v.(*store.Document); ok {
				return doc.Data
			}
			return v
		},
	}
}
