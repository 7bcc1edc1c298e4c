// Package resolver walks a document's declared reference paths and embeds
// the resolved content back into the document graph. Statically-addressed
// includes resolve through the store; query-driven includes resolve through
// a pluggable query runner. Both passes mutate the document in place.
package resolver

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ohler55/ojg/jp"
	"go.uber.org/zap"

	"github.com/biko2/static-suite-data-server/internal/store"
)

const (
	metadataKey = "metadata"
	includesKey = "includes"

	includeSuffix = "include"
	queryType     = "query"
	querySuffix   = queryType + includeSuffix
)

// QueryRunner is the contract for dynamic include resolution. The concrete
// runner is supplied by configuration and loaded through the module
// registry.
type QueryRunner interface {
	Run(queryID string, params map[string]any) (any, error)
}

// MountPoint describes where resolved include data attaches inside a
// document: the document body, the dot-path segments of the include key, the
// key itself, and the store lookup result (nil when absent).
type MountPoint struct {
	Data     map[string]any
	Segments []string
	Key      string
	Resolved any
}

// clear removes the include key from the document.
func (m MountPoint) clear() error {
	return exprFor(m.Segments).Del(m.Data)
}

// mountAt attaches value under alias next to where the include key was,
// creating intermediate structures as needed.
func (m MountPoint) mountAt(alias string, value any) error {
	segs := append(append([]string{}, m.Segments[:len(m.Segments)-1]...), alias)
	return exprFor(segs).Set(m.Data, value)
}

// MountStrategy is one include-mounting policy, selected by the normalized
// suffix of the include key. Each strategy defines its own absent-data
// behavior.
type MountStrategy struct {
	Suffix string
	Mount  func(m MountPoint) error
}

// Resolver routes declared references to mounting strategies. It does not
// implement per-strategy merge policy itself.
type Resolver struct {
	store      *store.Store
	runner     QueryRunner
	log        *zap.Logger
	strategies []MountStrategy
}

func New(st *store.Store, runner QueryRunner, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		store:      st,
		runner:     runner,
		log:        log,
		strategies: defaultStrategies(),
	}
}

// Register adds a mounting strategy. A strategy registered for an already
// handled suffix takes precedence over the default table.
func (r *Resolver) Register(s MountStrategy) {
	r.strategies = append([]MountStrategy{s}, r.strategies...)
}

// Static resolves every statically-addressed include declared by doc, in
// declaration order. Query-driven references are left for Dynamic. A store
// miss is not an error; the selected strategy decides what an absent target
// mounts.
func (r *Resolver) Static(doc *store.Document) error {
	data := doc.Map()
	if data == nil {
		return nil
	}
	for _, ref := range includePaths(data) {
		segs := strings.Split(ref, ".")
		key := segs[len(segs)-1]
		lower := strings.ToLower(key)
		if strings.HasSuffix(lower, querySuffix) {
			continue
		}
		strat := r.strategyFor(lower)
		if strat == nil {
			continue
		}
		var resolved any
		if target, ok := exprFor(segs).First(data).(string); ok {
			if v, found := r.store.Get(target); found {
				resolved = v
			} else {
				r.log.Debug("include target not in store",
					zap.String("file", doc.FilePath), zap.String("target", target))
			}
		}
		err := strat.Mount(MountPoint{Data: data, Segments: segs, Key: key, Resolved: resolved})
		if err != nil {
			return fmt.Errorf("mount %s in %s: %w", ref, doc.FilePath, err)
		}
	}
	return nil
}

// Dynamic resolves query-driven includes: the referenced string is parsed as
// queryId?query-string-params, the params are decoded into a mapping, and
// the runner's result is mounted with the generic alias-without-type policy.
// Runner failures propagate to the caller.
func (r *Resolver) Dynamic(doc *store.Document) error {
	data := doc.Map()
	if data == nil {
		return nil
	}
	for _, ref := range includePaths(data) {
		segs := strings.Split(ref, ".")
		key := segs[len(segs)-1]
		if !strings.HasSuffix(strings.ToLower(key), querySuffix) {
			continue
		}
		m := MountPoint{Data: data, Segments: segs, Key: key}
		raw, ok := exprFor(segs).First(data).(string)
		if !ok {
			if err := m.clear(); err != nil {
				return fmt.Errorf("clear %s in %s: %w", ref, doc.FilePath, err)
			}
			continue
		}
		if r.runner == nil {
			return fmt.Errorf("query include %s in %s: no query runner configured", ref, doc.FilePath)
		}
		queryID, qs, _ := strings.Cut(raw, "?")
		params, err := decodeParams(qs)
		if err != nil {
			return fmt.Errorf("decode params for %s in %s: %w", ref, doc.FilePath, err)
		}
		result, err := r.runner.Run(queryID, params)
		if err != nil {
			return err
		}
		if err := m.clear(); err != nil {
			return fmt.Errorf("clear %s in %s: %w", ref, doc.FilePath, err)
		}
		if err := m.mountAt(aliasWithoutType(key, queryType), result); err != nil {
			return fmt.Errorf("mount %s in %s: %w", ref, doc.FilePath, err)
		}
	}
	return nil
}

// ResolveAll runs the static pass over every document in the live store,
// main documents first, then all variants.
func (r *Resolver) ResolveAll() error {
	ix := r.store.RootIndex()
	if ix == nil {
		return nil
	}
	for _, doc := range ix.Main {
		if err := r.Static(doc); err != nil {
			return err
		}
	}
	for _, docs := range ix.Variants {
		for _, doc := range docs {
			if err := r.Static(doc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Resolver) strategyFor(lowerKey string) *MountStrategy {
	for i := range r.strategies {
		if strings.HasSuffix(lowerKey, r.strategies[i].Suffix) {
			return &r.strategies[i]
		}
	}
	return nil
}

// includePaths returns the ordered reference list declared under
// metadata.includes, skipping non-string entries.
func includePaths(data map[string]any) []string {
	meta, _ := data[metadataKey].(map[string]any)
	list, _ := meta[includesKey].([]any)
	refs := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			refs = append(refs, s)
		}
	}
	return refs
}

// decodeParams turns a query string into a parameter mapping. A parameter
// repeated more than once yields a sequence value, otherwise a scalar.
func decodeParams(qs string) (map[string]any, error) {
	values, err := url.ParseQuery(qs)
	if err != nil {
		return nil, err
	}
	params := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			params[k] = vs[0]
			continue
		}
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		params[k] = list
	}
	return params, nil
}

func exprFor(segs []string) jp.Expr {
	x := make(jp.Expr, 0, len(segs))
	for _, s := range segs {
		x = append(x, jp.Child(s))
	}
	return x
}

// aliasWithType trims the trailing "Include" from an include key:
// entityInclude -> entity.
func aliasWithType(key string) string {
	if a := trimSuffixFold(key, includeSuffix); a != "" {
		return a
	}
	return key
}

// aliasWithoutType additionally trims the type name:
// relatedArticlesQueryInclude -> relatedArticles. A bare type key falls back
// to the type itself.
func aliasWithoutType(key, typ string) string {
	if a := trimSuffixFold(key, typ+includeSuffix); a != "" && len(a) < len(key) {
		return a
	}
	return typ
}

func trimSuffixFold(s, suffix string) string {
	if len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix) {
		return s[:len(s)-len(suffix)]
	}
	return s
}
