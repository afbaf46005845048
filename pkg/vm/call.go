package vm

import (
	"fmt"

	"github.com/kristofer/voxl/pkg/bytecode"
	"github.com/kristofer/voxl/pkg/value"
)

// callValue implements the `Call n` opcode's dispatch (§4.8): stack
// before is [..., callee, arg1..argn]; calleeSlot is callee's slot,
// which becomes the pushed frame's base for a Closure callee.
func (vm *VM) callValue(calleeSlot, argCount int) error {
	calleeVal := vm.stack[calleeSlot]
	if calleeVal.Kind != value.ObjRef || calleeVal.AsObj() == nil {
		return vm.raiseTypeError(fmt.Sprintf("%s is not callable", calleeVal.String()))
	}
	obj := calleeVal.AsObj()
	switch obj.Kind {
	case value.ClosureObj:
		fn := obj.Function
		return vm.pushClosureFrame(calleeSlot, obj, fn.Arity, -1, argCount)
	case value.NativeFunctionObj:
		return vm.invokeNative(calleeSlot, obj, argCount, value.NullVal(), -1)
	case value.BoundFunctionObj:
		vm.stack[calleeSlot] = obj.Receiver
		return vm.invokeMethod(calleeSlot, obj.Method, argCount, -1)
	case value.ClassObj:
		return vm.invokeConstructor(calleeSlot, obj, argCount)
	default:
		return vm.raiseTypeError(fmt.Sprintf("%s is not callable", calleeVal.String()))
	}
}

// invokeMethod dispatches a method Obj already resolved (from a
// BoundFunction, a class's $init, or an operator/$get_index/$set_index
// fallback) against the receiver already written into
// vm.stack[calleeSlot]. argCount excludes the receiver, matching the
// compiler's isMethod arity convention (arity counts the receiver,
// argCount does not), so the expected count is method.Function.Arity-1
// for a Closure.
func (vm *VM) invokeMethod(calleeSlot int, method *value.Obj, argCount int, returnOverrideSlot int) error {
	switch method.Kind {
	case value.ClosureObj:
		return vm.pushClosureFrame(calleeSlot, method, method.Function.Arity-1, returnOverrideSlot, argCount)
	case value.NativeFunctionObj:
		return vm.invokeNative(calleeSlot, method, argCount, vm.stack[calleeSlot], returnOverrideSlot)
	default:
		return vm.fatalf("corrupted method table: %s is not callable", method.String())
	}
}

const maxCallDepthFatal = "call stack exhausted"

// pushClosureFrame checks arity and pushes a new CallFrame whose
// window begins at calleeSlot, continuing execution there on the
// interpreter's next loop iteration — no synchronous wait.
func (vm *VM) pushClosureFrame(calleeSlot int, closure *value.Obj, expectedArgs, returnOverrideSlot, argCount int) error {
	if argCount != expectedArgs {
		return vm.raiseTypeError(fmt.Sprintf("expected %d argument(s), got %d", expectedArgs, argCount))
	}
	if cap(vm.frames) > 0 && len(vm.frames) >= cap(vm.frames) {
		return vm.fatalf(maxCallDepthFatal)
	}
	vm.frames = append(vm.frames, CallFrame{closure: closure, base: calleeSlot, returnOverrideSlot: returnOverrideSlot})
	return nil
}

// invokeNative runs a NativeFunction synchronously — native functions
// never push a CallFrame, so their result (or override) is available
// immediately.
func (vm *VM) invokeNative(calleeSlot int, fn *value.Obj, argCount int, self value.Value, returnOverrideSlot int) error {
	if fn.Arity >= 0 && argCount != fn.Arity {
		return vm.raiseTypeError(fmt.Sprintf("expected %d argument(s), got %d", fn.Arity, argCount))
	}
	ctx := &nativeContext{vm: vm, args: vm.stack[calleeSlot+1 : calleeSlot+1+argCount], self: self}
	result, err := fn.Native(ctx)
	if err != nil {
		return vm.nativeThrow(err)
	}
	final := result
	if returnOverrideSlot >= 0 {
		final = vm.stack[returnOverrideSlot]
	}
	vm.sp = calleeSlot
	vm.push(final)
	return nil
}

// invokeConstructor implements Call on a Class value (§4.8): allocate
// the (native or script) instance, then — if the class defines $init
// — invoke it bound to the new instance, with the instance itself
// substituted for $init's own return value so `Foo()` always yields
// the constructed object regardless of what $init returns.
func (vm *VM) invokeConstructor(calleeSlot int, class *value.Obj, argCount int) error {
	var instance *value.Obj
	if class.InstanceSize > 0 {
		instance = vm.a.NewNativeInstance(class, make([]byte, class.InstanceSize))
	} else {
		instance = vm.a.NewInstance(class)
	}
	instVal := value.ObjVal(instance)

	method, ok := vm.lookupMethod(class, vm.sInit)
	if !ok {
		vm.sp = calleeSlot
		vm.push(instVal)
		return nil
	}
	vm.stack[calleeSlot] = instVal
	return vm.invokeMethod(calleeSlot, method.AsObj(), argCount, calleeSlot)
}

// lookupMethod walks the Super chain, matching §4.6's single-inheritance
// method resolution.
func (vm *VM) lookupMethod(class *value.Obj, name *value.Obj) (value.Value, bool) {
	for c := class; c != nil; c = c.Super {
		if v, ok := c.Methods.Get(value.StringKey{Obj: name}); ok {
			return v, true
		}
	}
	return value.Value{}, false
}

func (vm *VM) lookupMethodByName(class *value.Obj, name string) (value.Value, bool) {
	return vm.lookupMethod(class, vm.a.InternString(name))
}

// execClosure handles the `Closure` opcode: pops the Function Obj
// pushed by the preceding GetConstant, reads (idx, isLocal) pairs
// directly out of the instruction stream (not the stack, since the
// pair count is only known once decoded), and builds the Closure Obj.
func (vm *VM) execClosure(frame *CallFrame, chunk *bytecode.Chunk) error {
	fnVal := vm.pop()
	fnObj := fnVal.AsObj()
	count := int(chunk.Code[frame.ip])
	frame.ip++
	closure := vm.a.NewClosure(fnObj, count)
	for i := 0; i < count; i++ {
		idx := int(chunk.Code[frame.ip])
		isLocal := chunk.Code[frame.ip+1] != 0
		frame.ip += 2
		if isLocal {
			slot := frame.base + idx
			closure.Upvalues[i] = vm.a.NewOpenUpvalue(slot, &vm.stack[slot])
		} else {
			closure.Upvalues[i] = frame.closure.Upvalues[idx]
		}
	}
	vm.push(value.ObjVal(closure))
	return nil
}

// execReturn pops the current frame, closing any upvalues captured
// from its window, and leaves the frame's result (or its
// returnOverrideSlot override) on the caller's stack.
func (vm *VM) execReturn(frame *CallFrame) error {
	result := vm.pop()
	if frame.returnOverrideSlot >= 0 {
		result = vm.stack[frame.returnOverrideSlot]
	}
	vm.a.CloseUpvaluesFrom(frame.base)
	vm.sp = frame.base
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.push(result)
	return nil
}

func (vm *VM) fatalf(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	vm.rep.VMError(msg)
	return &FatalError{Message: msg}
}
