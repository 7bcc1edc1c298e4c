package modules

import (
	"path"

	"go.uber.org/zap"

	"github.com/biko2/static-suite-data-server/internal/store"
)

// queryHandlerExport is the function a query module must export.
const queryHandlerExport = "queryHandler"

// Runner executes query modules by id. It satisfies the resolver's query
// runner contract: Run(queryID, params) -> result.
type Runner struct {
	reg   *Registry
	store *store.Store
	dir   string
	log   *zap.Logger
}

func NewRunner(reg *Registry, st *store.Store, queryDir string, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{reg: reg, store: st, dir: queryDir, log: log}
}

// Run resolves queryID to a module under the query dir and invokes its
// handler with the store facade and the decoded parameters. Module load or
// handler failures propagate to the caller.
func (r *Runner) Run(queryID string, params map[string]any) (any, error) {
	modPath := path.Join(r.dir, queryID)
	if path.Ext(modPath) == "" {
		modPath += ".js"
	}
	mod, err := r.reg.Get(modPath)
	if err != nil {
		return nil, err
	}
	res, err := mod.Call(queryHandlerExport, map[string]any{
		"store":  storeFacade(r.store),
		"params": params,
	})
	if err != nil {
		return nil, err
	}
	r.log.Debug("query executed", zap.String("query", queryID))
	return res, nil
}
