// Package modules loads, caches, hot-reloads, and evicts the JavaScript
// extension modules the data server executes: query handlers and the
// optional store post-processor. A module is a script evaluated with a
// CommonJS-style module object in scope; its module.exports object of
// functions is the handle.
package modules

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// LoadError reports a module that could not be read, compiled, or that
// yielded no usable handle. It is fatal to the initiating call.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load module %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Module is a loaded extension module handle. The source is compiled once
// per load; every Call evaluates the program in a fresh runtime, so module
// code keeps no state between invocations and reloads take effect
// process-wide.
type Module struct {
	path    string
	prog    *goja.Program
	exports map[string]bool
}

func compileModule(path string, src []byte) (*Module, error) {
	prog, err := goja.Compile(path, string(src), true)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	m := &Module{path: path, prog: prog}
	_, exp, err := m.instantiate()
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	m.exports = make(map[string]bool)
	for _, k := range exp.Keys() {
		m.exports[k] = true
	}
	if len(m.exports) == 0 {
		return nil, &LoadError{Path: path, Err: errors.New("module exports nothing")}
	}
	return m, nil
}

func (m *Module) instantiate() (*goja.Runtime, *goja.Object, error) {
	vm := goja.New()
	exports := vm.NewObject()
	module := vm.NewObject()
	_ = module.Set("exports", exports)
	_ = vm.Set("module", module)
	_ = vm.Set("exports", exports)
	if _, err := vm.RunProgram(m.prog); err != nil {
		return nil, nil, err
	}
	exp := module.Get("exports")
	if exp == nil || goja.IsUndefined(exp) || goja.IsNull(exp) {
		return nil, nil, errors.New("module.exports is not an object")
	}
	return vm, exp.ToObject(vm), nil
}

// Path returns the path the handle was loaded from.
func (m *Module) Path() string { return m.path }

// Has reports whether the module exports name.
func (m *Module) Has(name string) bool { return m.exports[name] }

// Call invokes an exported function, converting args into the runtime and
// exporting the result back to plain Go values.
func (m *Module) Call(name string, args ...any) (any, error) {
	vm, exp, err := m.instantiate()
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", m.path, err)
	}
	fn, ok := goja.AssertFunction(exp.Get(name))
	if !ok {
		return nil, fmt.Errorf("module %s: %q is not an exported function", m.path, name)
	}
	values := make([]goja.Value, len(args))
	for i, a := range args {
		values[i] = vm.ToValue(a)
	}
	res, err := fn(goja.Undefined(), values...)
	if err != nil {
		return nil, fmt.Errorf("module %s: %s: %w", m.path, name, err)
	}
	return res.Export(), nil
}
