package resolver

import (
	"github.com/biko2/static-suite-data-server/internal/store"
)

// defaultStrategies is the suffix-keyed dispatch table for static includes.
// The four suffixes are disjoint, so table order does not matter here;
// Register prepends, so callers can still override any of them.
func defaultStrategies() []MountStrategy {
	return []MountStrategy{
		{Suffix: "entity" + includeSuffix, Mount: mountEntity},
		{Suffix: "config" + includeSuffix, Mount: mountBody},
		{Suffix: "custom" + includeSuffix, Mount: mountBody},
		{Suffix: "locale" + includeSuffix, Mount: mountBody},
	}
}

// mountEntity replaces the mount point with the resolved document's inner
// content (data.content). The include key is removed either way; a store
// miss or a shape mismatch mounts nothing, leaving the alias undefined.
func mountEntity(m MountPoint) error {
	if err := m.clear(); err != nil {
		return err
	}
	inner := innerContent(m.Resolved)
	if inner == nil {
		return nil
	}
	return m.mountAt(aliasWithType(m.Key), inner)
}

// mountBody attaches the resolved document body unchanged. Config, custom
// and locale includes share this policy; a miss just removes the key.
func mountBody(m MountPoint) error {
	if err := m.clear(); err != nil {
		return err
	}
	doc, ok := m.Resolved.(*store.Document)
	if !ok {
		return nil
	}
	return m.mountAt(aliasWithType(m.Key), doc.Data)
}

func innerContent(resolved any) any {
	doc, ok := resolved.(*store.Document)
	if !ok {
		return nil
	}
	body := doc.Map()
	if body == nil {
		return nil
	}
	data, _ := body["data"].(map[string]any)
	return data["content"]
}
