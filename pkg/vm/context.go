package vm

import (
	"github.com/kristofer/voxl/pkg/alloc"
	"github.com/kristofer/voxl/pkg/value"
)

// nativeContext is the value.NativeContext the VM hands to every
// NativeFn call (§4.8, §4.9): a thin window onto the call's argument
// slice plus a way back into the VM for heap access, host calls into
// script code, and raising voxl-level exceptions.
type nativeContext struct {
	vm   *VM
	args []value.Value
	self value.Value
}

func (c *nativeContext) Arg(i int) value.Value {
	if i < 0 || i >= len(c.args) {
		return value.NullVal()
	}
	return c.args[i]
}

func (c *nativeContext) NumArgs() int      { return len(c.args) }
func (c *nativeContext) Self() value.Value { return c.self }
func (c *nativeContext) Heap() value.Heap  { return c.vm }
func (c *nativeContext) Host() value.VMHost { return c.vm }

func (c *nativeContext) Throw(className, message string) error {
	return c.vm.raiseByName(className, message)
}

// Alloc exposes the VM's Allocator so pkg/builtins can construct
// native classes/functions (NewClass, NewNativeFunction, ...) during
// setup, before any script runs.
func (vm *VM) Alloc() *alloc.Allocator { return vm.a }

// InternString, NewInstance, NewNativeInstance, PinLocal, UnpinLocal
// satisfy value.Heap directly off the allocator.

func (vm *VM) InternString(s string) *value.Obj { return vm.a.InternString(s) }
func (vm *VM) NewInstance(class *value.Obj) *value.Obj { return vm.a.NewInstance(class) }
func (vm *VM) NewNativeInstance(class *value.Obj, payload []byte) *value.Obj {
	return vm.a.NewNativeInstance(class, payload)
}
func (vm *VM) PinLocal(v value.Value)   { vm.a.PinLocal(v) }
func (vm *VM) UnpinLocal(v value.Value) { vm.a.UnpinLocal(v) }

// Call implements value.VMHost: invoke an arbitrary callable value
// (Closure/NativeFunction/BoundFunction/Class) from native code with a
// fresh argument list, running it to completion before returning. This
// is the one place the VM legitimately waits synchronously for a
// nested call — it is only reachable from native code (e.g. Dict's key
// hashing through VM.Hash) which has no bytecode handler stack of its own to
// preserve, so there is no outer-handler-unwind hazard to avoid.
func (vm *VM) Call(callee value.Value, args []value.Value) (value.Value, error) {
	calleeSlot := vm.sp
	vm.push(callee)
	for _, a := range args {
		vm.push(a)
	}
	stopDepth := len(vm.frames)
	if err := vm.callValue(calleeSlot, len(args)); err != nil {
		if err == errControlTransfer {
			// Handler already unwound past our call window; nothing
			// further to run here; propagate to let the caller's own
			// handler search (if any) continue.
			return value.NullVal(), err
		}
		return value.NullVal(), err
	}
	if len(vm.frames) == stopDepth {
		// Native callee already ran to completion synchronously.
		return vm.pop(), nil
	}
	result, err := vm.run(stopDepth)
	return result, err
}

// Hash implements value.VMHost: Int/Float/Bool/Null/String hash
// structurally (via value.ValueKey, the same path Dict's own internal
// bookkeeping would use for a Go map); any other Obj requires a
// `$hash` method, called with no arguments and expected to return an
// Int.
func (vm *VM) Hash(v value.Value) (uint64, bool, error) {
	switch v.Kind {
	case value.Int, value.Float, value.Bool, value.Null:
		return value.ValueKey{V: v}.Hash(), true, nil
	case value.ObjRef:
		if v.IsObj(value.StringObj) {
			return value.ValueKey{V: v}.Hash(), true, nil
		}
		if !isCallableReceiver(v) {
			return 0, false, nil
		}
		method, ok := vm.lookupMethod(v.AsObj().Class, vm.sHash)
		if !ok {
			return 0, false, nil
		}
		result, err := vm.Call(value.ObjVal(vm.a.NewBoundFunction(v, method.AsObj())), nil)
		if err != nil {
			return 0, false, err
		}
		if result.Kind != value.Int {
			return 0, false, vm.raiseTypeError("$hash must return an Int")
		}
		return uint64(result.AsInt()), true, nil
	}
	return 0, false, nil
}

// RaiseClass implements value.VMHost: look up a class by name among
// the VM's core error classes or the builtin namespace, for native
// code that wants to construct (rather than immediately throw) an
// exception instance.
func (vm *VM) RaiseClass(name string) (*value.Obj, bool) {
	if c := vm.coreClassByName(name); c != nil {
		return c, true
	}
	if v, ok := vm.builtin.Globals.Get(value.StringKey{Obj: vm.a.InternString(name)}); ok && v.IsObj(value.ClassObj) {
		return v.AsObj(), true
	}
	return nil, false
}

// nativeThrow normalizes an error returned from a NativeFn: errors
// already produced by the VM's own throw/fatal machinery pass through
// unchanged (ctx.Throw funnels through raiseByName, which returns
// either errControlTransfer or *UncaughtError); anything else is a Go
// bug in native code, reported as a fatal VM error rather than
// silently dropped.
func (vm *VM) nativeThrow(err error) error {
	switch err {
	case errControlTransfer:
		return err
	}
	switch err.(type) {
	case *UncaughtError, *FatalError:
		return err
	default:
		return vm.fatalf("native function error: %v", err)
	}
}
