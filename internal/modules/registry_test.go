package modules

import (
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModule(t *testing.T, fs billy.Filesystem, path, src string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fs, path, []byte(src), 0o644))
}

func TestLoadAndCall(t *testing.T) {
	fs := memfs.New()
	writeModule(t, fs, "mods/echo.js", `
		module.exports = {
			queryHandler: function(ctx) { return ctx.params; }
		};
	`)
	reg := NewRegistry(Config{FS: fs})

	mod, err := reg.Load("mods/echo.js")
	require.NoError(t, err)
	assert.True(t, mod.Has("queryHandler"))
	assert.False(t, mod.Has("processFile"))

	res, err := mod.Call("queryHandler", map[string]any{
		"params": map[string]any{"tag": "foo"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tag": "foo"}, res)
}

func TestGetReturnsCachedHandle(t *testing.T) {
	fs := memfs.New()
	writeModule(t, fs, "m.js", `module.exports = { f: function() { return 1; } };`)
	reg := NewRegistry(Config{FS: fs})

	first, err := reg.Get("m.js")
	require.NoError(t, err)
	second, err := reg.Get("m.js")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestLoadHotReloadsChangedModule(t *testing.T) {
	fs := memfs.New()
	writeModule(t, fs, "m.js", `module.exports = { f: function() { return 1; } };`)
	reg := NewRegistry(Config{FS: fs})

	mod, err := reg.Get("m.js")
	require.NoError(t, err)
	res, err := mod.Call("f")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res)

	writeModule(t, fs, "m.js", `module.exports = { f: function() { return 2; } };`)

	// Get keeps serving the cached build
	mod, err = reg.Get("m.js")
	require.NoError(t, err)
	res, _ = mod.Call("f")
	assert.Equal(t, int64(1), res)

	// Load picks up the rebuilt module
	mod, err = reg.Load("m.js")
	require.NoError(t, err)
	res, _ = mod.Call("f")
	assert.Equal(t, int64(2), res)
}

func TestLoadFailureLeavesEntryRemoved(t *testing.T) {
	fs := memfs.New()
	writeModule(t, fs, "m.js", `module.exports = { f: function() { return 1; } };`)
	reg := NewRegistry(Config{FS: fs})

	_, err := reg.Get("m.js")
	require.NoError(t, err)

	writeModule(t, fs, "m.js", `this is not javascript {{{`)
	_, err = reg.Load("m.js")
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "m.js", loadErr.Path)

	// the stale handle is gone: Get must attempt a fresh load and fail too
	_, err = reg.Get("m.js")
	assert.ErrorAs(t, err, &loadErr)
}

func TestLoadMissingModule(t *testing.T) {
	reg := NewRegistry(Config{FS: memfs.New()})
	_, err := reg.Load("nope.js")
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestLoadModuleWithoutExports(t *testing.T) {
	fs := memfs.New()
	writeModule(t, fs, "empty.js", `var x = 1;`)
	reg := NewRegistry(Config{FS: fs})
	_, err := reg.Load("empty.js")
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestRemoveEvictsHandle(t *testing.T) {
	fs := memfs.New()
	writeModule(t, fs, "m.js", `module.exports = { f: function() { return 1; } };`)
	reg := NewRegistry(Config{FS: fs})

	_, err := reg.Get("m.js")
	require.NoError(t, err)
	reg.Remove("m.js")

	writeModule(t, fs, "m.js", `module.exports = { f: function() { return 2; } };`)
	mod, err := reg.Get("m.js")
	require.NoError(t, err)
	res, _ := mod.Call("f")
	assert.Equal(t, int64(2), res, "Get after Remove must load fresh")
}

func TestInitEagerlyLoadsConfiguredModules(t *testing.T) {
	fs := memfs.New()
	writeModule(t, fs, "queries/related.js", `module.exports = { queryHandler: function() { return []; } };`)
	writeModule(t, fs, "queries/nested/latest.js", `module.exports = { queryHandler: function() { return []; } };`)
	writeModule(t, fs, "post.js", `module.exports = { processFile: function(ctx) { return null; } };`)

	reg := NewRegistry(Config{
		FS:            fs,
		QueryDir:      "queries",
		QueryGlob:     "**/*.js",
		PostProcessor: "post.js",
	})
	require.NoError(t, reg.Init())

	// files can disappear afterwards: the handles are already cached
	require.NoError(t, fs.Remove("queries/related.js"))
	require.NoError(t, fs.Remove("queries/nested/latest.js"))
	require.NoError(t, fs.Remove("post.js"))

	for _, p := range []string{"queries/related.js", "queries/nested/latest.js", "post.js"} {
		_, err := reg.Get(p)
		assert.NoError(t, err, p)
	}
}

func TestInitAbortsOnBrokenModule(t *testing.T) {
	fs := memfs.New()
	writeModule(t, fs, "queries/broken.js", `syntax error {{{`)
	reg := NewRegistry(Config{FS: fs, QueryDir: "queries"})

	err := reg.Init()
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
}
