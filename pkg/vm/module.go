package vm

import (
	"github.com/pkg/errors"

	"github.com/kristofer/voxl/pkg/compiler"
	"github.com/kristofer/voxl/pkg/lexer"
	"github.com/kristofer/voxl/pkg/parser"
	"github.com/kristofer/voxl/pkg/srcmap"
	"github.com/kristofer/voxl/pkg/value"
)

// stampModuleOwnership sets Module on fn and every nested Function
// constant reachable through its Chunk.Constants, recursively. The
// compiler has no runtime Module to stamp at compile time (C7), so the
// VM does it once, immediately after compiling a module and before
// running any of its bytecode — GetGlobal/SetGlobal/CreateGlobal and
// ModuleSetLoaded all dereference closure.Function.Module.
func stampModuleOwnership(fn *value.Obj, mod *value.Obj) {
	if fn == nil || fn.Module == mod {
		return
	}
	fn.Module = mod
	for _, c := range fn.Chunk.Constants {
		if v, ok := c.(value.Value); ok && v.IsObj(value.FunctionObj) {
			stampModuleOwnership(v.AsObj(), mod)
		}
	}
}

// loadModule compiles src (already resolved to filename) into a fresh
// Module object, stamping ownership through its whole function tree,
// but does not run its top-level code.
func (vm *VM) loadModule(modName, src, filename string) (*value.Obj, *value.Obj, error) {
	sm := srcmap.New(filename, vm.workDir, src)
	l := lexer.New(sm, vm.rep)
	p := parser.New(sm, l, vm.rep)
	prog := p.ParseProgram()
	if p.HadError() {
		return nil, nil, errors.Errorf("module %q: parse error", modName)
	}
	c := compiler.New(vm.a, sm, vm.rep)
	fn, err := c.CompileModule(prog, modName)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "module %q: compile error", modName)
	}
	mod := vm.a.NewModule(modName)
	stampModuleOwnership(fn, mod)
	return mod, fn, nil
}

// importModule implements `Import` (§4.8): resolve path via the
// configured ModuleResolver, compile-and-cache the Module BEFORE
// running its top-level code (breaking import cycles — a module
// importing itself, directly or transitively, observes itself as
// already-registered but not yet Loaded), then run it to completion.
func (vm *VM) importModule(path string) (*value.Obj, error) {
	if m, ok := vm.modules.Get(path); ok {
		return m, nil
	}
	if vm.resolver == nil {
		return nil, vm.raiseNameError2(path)
	}
	if vm.modules.Count() >= maxModulePathDepth {
		return nil, vm.fatalf("module import depth exceeded resolving %q", path)
	}
	src, filename, ok := vm.resolver.Resolve(path, vm.workDir)
	if !ok {
		return nil, vm.raiseNameError2(path)
	}
	mod, fn, err := vm.loadModule(path, src, filename)
	if err != nil {
		return nil, vm.fatalf("%v", err)
	}
	vm.modules.Put(path, mod)
	if _, err := vm.execModule(mod, fn); err != nil {
		return nil, err
	}
	mod.Loaded = true
	return mod, nil
}

func (vm *VM) raiseNameError2(path string) error {
	return vm.raiseNameError("cannot resolve module " + path)
}
