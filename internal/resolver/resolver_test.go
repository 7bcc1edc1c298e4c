package resolver

import (
	"errors"
	"io/fs"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biko2/static-suite-data-server/internal/store"
)

type mapReader map[string][]byte

func (r mapReader) ReadFile(baseDir, relPath string) ([]byte, error) {
	b, ok := r[path.Join(baseDir, relPath)]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return b, nil
}

type stubRunner struct {
	id     string
	params map[string]any
	result any
	err    error
}

func (s *stubRunner) Run(id string, params map[string]any) (any, error) {
	s.id = id
	s.params = params
	return s.result, s.err
}

func loadedStore(t *testing.T, files map[string]string) *store.Store {
	t.Helper()
	r := mapReader{}
	for p, body := range files {
		r["/data/"+p] = []byte(body)
	}
	st := store.New(store.Config{Reader: r})
	for p := range files {
		require.NoError(t, st.Add("/data", p, store.AddOptions{}))
	}
	return st
}

func docAt(t *testing.T, st *store.Store, p string) *store.Document {
	t.Helper()
	v, ok := st.Get(p)
	require.True(t, ok, p)
	doc, ok := v.(*store.Document)
	require.True(t, ok, p)
	return doc
}

func TestStaticEntityInclude(t *testing.T) {
	st := loadedStore(t, map[string]string{
		"en/node/article/1.json": `{"data":{"content":{"title":"Article one"}}}`,
		"en/node/page/7.json": `{
			"data":{"content":{"entityInclude":"en/node/article/1.json"}},
			"metadata":{"includes":["data.content.entityInclude"]}
		}`,
	})
	r := New(st, nil, nil)

	page := docAt(t, st, "en/node/page/7.json")
	require.NoError(t, r.Static(page))

	content := page.Map()["data"].(map[string]any)["content"].(map[string]any)
	_, hasKey := content["entityInclude"]
	assert.False(t, hasKey, "include key must be removed")
	assert.Equal(t, map[string]any{"title": "Article one"}, content["entity"])
}

func TestStaticEntityIncludeMissingTarget(t *testing.T) {
	st := loadedStore(t, map[string]string{
		"en/node/page/7.json": `{
			"data":{"content":{"entityInclude":"en/node/article/404.json"}},
			"metadata":{"includes":["data.content.entityInclude"]}
		}`,
	})
	r := New(st, nil, nil)

	page := docAt(t, st, "en/node/page/7.json")
	require.NoError(t, r.Static(page))

	content := page.Map()["data"].(map[string]any)["content"].(map[string]any)
	_, hasKey := content["entityInclude"]
	assert.False(t, hasKey)
	_, hasAlias := content["entity"]
	assert.False(t, hasAlias, "a miss mounts nothing for entity includes")
}

func TestStaticEntityIncludeShapeMismatch(t *testing.T) {
	st := loadedStore(t, map[string]string{
		"en/config/site.json": `{"name":"site"}`,
		"en/node/page/7.json": `{
			"data":{"content":{"entityInclude":"en/config/site.json"}},
			"metadata":{"includes":["data.content.entityInclude"]}
		}`,
	})
	r := New(st, nil, nil)

	page := docAt(t, st, "en/node/page/7.json")
	require.NoError(t, r.Static(page))

	content := page.Map()["data"].(map[string]any)["content"].(map[string]any)
	_, hasAlias := content["entity"]
	assert.False(t, hasAlias, "target without data.content mounts nothing")
}

func TestStaticConfigIncludeMountsBody(t *testing.T) {
	st := loadedStore(t, map[string]string{
		"en/config/site.json": `{"name":"site","theme":"dark"}`,
		"en/node/page/7.json": `{
			"data":{"configInclude":"en/config/site.json"},
			"metadata":{"includes":["data.configInclude"]}
		}`,
	})
	r := New(st, nil, nil)

	page := docAt(t, st, "en/node/page/7.json")
	require.NoError(t, r.Static(page))

	data := page.Map()["data"].(map[string]any)
	assert.Equal(t, map[string]any{"name": "site", "theme": "dark"}, data["config"])
	_, hasKey := data["configInclude"]
	assert.False(t, hasKey)
}

func TestStaticSuffixMatchIsCaseInsensitiveAndPrefixed(t *testing.T) {
	st := loadedStore(t, map[string]string{
		"en/node/article/1.json": `{"data":{"content":{"title":"A"}}}`,
		"en/node/page/7.json": `{
			"data":{"content":{"promoENTITYinclude":"en/node/article/1.json"}},
			"metadata":{"includes":["data.content.promoENTITYinclude"]}
		}`,
	})
	r := New(st, nil, nil)

	page := docAt(t, st, "en/node/page/7.json")
	require.NoError(t, r.Static(page))

	content := page.Map()["data"].(map[string]any)["content"].(map[string]any)
	assert.Equal(t, map[string]any{"title": "A"}, content["promoENTITY"])
}

func TestStaticIgnoresUnknownSuffixes(t *testing.T) {
	st := loadedStore(t, map[string]string{
		"en/node/page/7.json": `{
			"data":{"somethingElse":"en/node/article/1.json"},
			"metadata":{"includes":["data.somethingElse"]}
		}`,
	})
	r := New(st, nil, nil)

	page := docAt(t, st, "en/node/page/7.json")
	require.NoError(t, r.Static(page))

	data := page.Map()["data"].(map[string]any)
	assert.Equal(t, "en/node/article/1.json", data["somethingElse"])
}

func TestStaticSkipsQueryIncludes(t *testing.T) {
	st := loadedStore(t, map[string]string{
		"en/node/page/7.json": `{
			"data":{"relatedQueryInclude":"related?tag=x"},
			"metadata":{"includes":["data.relatedQueryInclude"]}
		}`,
	})
	r := New(st, nil, nil)

	page := docAt(t, st, "en/node/page/7.json")
	require.NoError(t, r.Static(page))

	data := page.Map()["data"].(map[string]any)
	assert.Equal(t, "related?tag=x", data["relatedQueryInclude"], "static pass leaves query includes alone")
}

func TestDynamicQueryInclude(t *testing.T) {
	st := loadedStore(t, map[string]string{
		"en/node/page/7.json": `{
			"data":{"queryInclude":"relatedArticles?tag=foo&tag=bar"},
			"metadata":{"includes":["data.queryInclude"]}
		}`,
	})
	runner := &stubRunner{result: []any{"a", "b"}}
	r := New(st, runner, nil)

	page := docAt(t, st, "en/node/page/7.json")
	require.NoError(t, r.Dynamic(page))

	assert.Equal(t, "relatedArticles", runner.id)
	assert.Equal(t, map[string]any{"tag": []any{"foo", "bar"}}, runner.params)

	data := page.Map()["data"].(map[string]any)
	_, hasKey := data["queryInclude"]
	assert.False(t, hasKey)
	assert.Equal(t, []any{"a", "b"}, data["query"])
}

func TestDynamicAliasStripsQueryType(t *testing.T) {
	st := loadedStore(t, map[string]string{
		"en/node/page/7.json": `{
			"data":{"relatedQueryInclude":"related?limit=5"},
			"metadata":{"includes":["data.relatedQueryInclude"]}
		}`,
	})
	runner := &stubRunner{result: []any{"x"}}
	r := New(st, runner, nil)

	page := docAt(t, st, "en/node/page/7.json")
	require.NoError(t, r.Dynamic(page))

	assert.Equal(t, "related", runner.id)
	assert.Equal(t, map[string]any{"limit": "5"}, runner.params, "single-valued params collapse to scalars")

	data := page.Map()["data"].(map[string]any)
	assert.Equal(t, []any{"x"}, data["related"])
	_, hasKey := data["relatedQueryInclude"]
	assert.False(t, hasKey)
}

func TestDynamicRunnerErrorPropagates(t *testing.T) {
	st := loadedStore(t, map[string]string{
		"en/node/page/7.json": `{
			"data":{"queryInclude":"broken"},
			"metadata":{"includes":["data.queryInclude"]}
		}`,
	})
	boom := errors.New("query backend down")
	r := New(st, &stubRunner{err: boom}, nil)

	page := docAt(t, st, "en/node/page/7.json")
	assert.ErrorIs(t, r.Dynamic(page), boom)
}

func TestDynamicNonStringReferenceClearsKey(t *testing.T) {
	st := loadedStore(t, map[string]string{
		"en/node/page/7.json": `{
			"data":{"queryInclude":42},
			"metadata":{"includes":["data.queryInclude"]}
		}`,
	})
	r := New(st, &stubRunner{}, nil)

	page := docAt(t, st, "en/node/page/7.json")
	require.NoError(t, r.Dynamic(page))

	data := page.Map()["data"].(map[string]any)
	_, hasKey := data["queryInclude"]
	assert.False(t, hasKey)
}

func TestMultipleIncludesProcessedInOrder(t *testing.T) {
	st := loadedStore(t, map[string]string{
		"en/config/a.json": `{"v":"a"}`,
		"en/config/b.json": `{"v":"b"}`,
		"en/node/page/7.json": `{
			"data":{"configInclude":"en/config/a.json","CONFIGinclude":"en/config/b.json"},
			"metadata":{"includes":["data.configInclude","data.CONFIGinclude"]}
		}`,
	})
	r := New(st, nil, nil)

	page := docAt(t, st, "en/node/page/7.json")
	require.NoError(t, r.Static(page))

	data := page.Map()["data"].(map[string]any)
	assert.Equal(t, map[string]any{"v": "b"}, data["CONFIG"])
	assert.Equal(t, map[string]any{"v": "a"}, data["config"])
}

func TestStaticNoopForNonObjectDocuments(t *testing.T) {
	st := loadedStore(t, map[string]string{
		"en/notes/readme.txt": "just text",
	})
	r := New(st, nil, nil)
	require.NoError(t, r.Static(docAt(t, st, "en/notes/readme.txt")))
}

func TestRegisterOverridesDefaultStrategy(t *testing.T) {
	st := loadedStore(t, map[string]string{
		"en/node/page/7.json": `{
			"data":{"configInclude":"en/config/a.json"},
			"metadata":{"includes":["data.configInclude"]}
		}`,
	})
	r := New(st, nil, nil)
	r.Register(MountStrategy{
		Suffix: "configinclude",
		Mount: func(m MountPoint) error {
			if err := m.clear(); err != nil {
				return err
			}
			return m.mountAt("placeholder", "missing")
		},
	})

	page := docAt(t, st, "en/node/page/7.json")
	require.NoError(t, r.Static(page))

	data := page.Map()["data"].(map[string]any)
	assert.Equal(t, "missing", data["placeholder"])
}

func TestResolveAllSweepsMainAndVariants(t *testing.T) {
	st := loadedStore(t, map[string]string{
		"en/node/article/1.json": `{"data":{"content":{"title":"A"}}}`,
		"en/node/page/7.json": `{
			"data":{"content":{"entityInclude":"en/node/article/1.json"}},
			"metadata":{"includes":["data.content.entityInclude"]}
		}`,
		"en/node/page/7--card.json": `{
			"data":{"content":{"entityInclude":"en/node/article/1.json"}},
			"metadata":{"includes":["data.content.entityInclude"]}
		}`,
	})
	r := New(st, nil, nil)
	require.NoError(t, r.ResolveAll())

	for _, p := range []string{"en/node/page/7.json", "en/node/page/7--card.json"} {
		doc := docAt(t, st, p)
		content := doc.Map()["data"].(map[string]any)["content"].(map[string]any)
		assert.Equal(t, map[string]any{"title": "A"}, content["entity"], p)
	}
}
