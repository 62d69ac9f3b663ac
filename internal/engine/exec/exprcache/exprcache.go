// Package exprcache wraps expr-lang/expr with a compiled-program cache, used
// by the loop and variable node executors for the free-form boolean/value
// expressions those two kinds accept (SPEC_FULL.md §4.6) — unlike the
// conditional node's restricted grammar (internal/engine/exec/condition),
// these two kinds are explicitly allowed to use a general expression engine.
//
// Grounded on the teacher's
// internal/application/executor/conditions.go ConditionEvaluator, which
// keeps a mutex-guarded map[string]*vm.Program keyed by expression source so
// repeated evaluations of the same loop condition across iterations don't
// re-parse it every time.
package exprcache

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Cache compiles and caches expr-lang/expr programs by source text.
type Cache struct {
	mu      sync.RWMutex
	program map[string]*vm.Program
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{program: make(map[string]*vm.Program)}
}

func (c *Cache) get(src string) (*vm.Program, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.program[src]
	return p, ok
}

func (c *Cache) put(src string, p *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.program[src] = p
}

// compile returns the cached program for src, compiling (and caching) it on
// first use. env is only used to type-check the compile, not retained.
func (c *Cache) compile(src string, env map[string]any) (*vm.Program, error) {
	if p, ok := c.get(src); ok {
		return p, nil
	}
	p, err := expr.Compile(src, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("exprcache: compile %q: %w", src, err)
	}
	c.put(src, p)
	return p, nil
}

// Eval compiles (or reuses) src against env and runs it, returning the raw
// result value.
func (c *Cache) Eval(src string, env map[string]any) (any, error) {
	program, err := c.compile(src, env)
	if err != nil {
		return nil, err
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("exprcache: run %q: %w", src, err)
	}
	return result, nil
}

// EvalBool compiles, runs, and coerces src's result to bool. A non-bool
// result (e.g. a stray nil from a failed field lookup) is an error, not a
// silent false, so a broken loop condition surfaces at run time instead of
// looping forever.
func (c *Cache) EvalBool(src string, env map[string]any) (bool, error) {
	result, err := c.Eval(src, env)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("exprcache: expression %q did not evaluate to a bool (got %T)", src, result)
	}
	return b, nil
}
