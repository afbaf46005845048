package vm

import "github.com/kristofer/voxl/pkg/value"

// throwValue implements Throw/Rethrow (§4.8): search the handler stack
// for the nearest entry, unwind frames/stack/upvalues to it and jump,
// or report an uncaught exception if none remain.
func (vm *VM) throwValue(exc value.Value) error {
	if len(vm.handlers) == 0 {
		return vm.uncaught(exc)
	}
	h := vm.handlers[len(vm.handlers)-1]
	vm.handlers = vm.handlers[:len(vm.handlers)-1]

	vm.a.CloseUpvaluesFrom(h.stackTop)
	vm.frames = vm.frames[:h.frameIndex+1]
	vm.sp = h.stackTop
	vm.frames[h.frameIndex].ip = h.pc
	vm.push(exc)
	return errControlTransfer
}

func (vm *VM) uncaught(exc value.Value) error {
	trace := vm.buildTrace()
	vm.rep.Uncaught(exc, trace)
	return &UncaughtError{Value: exc, Trace: trace}
}

func (vm *VM) buildTrace() *Trace {
	t := &Trace{}
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := vm.frames[i]
		name := "<module>"
		if f.closure.Function.Name != nil && f.closure.Function.Name.Chars != "" {
			name = f.closure.Function.Name.Chars
		}
		line := 0
		if f.ip-1 >= 0 && f.ip-1 < len(f.closure.Function.Chunk.Lines) {
			line = int(f.closure.Function.Chunk.Lines[f.ip-1])
		}
		t.Frames = append(t.Frames, StackFrame{Name: name, SourceLine: line})
	}
	return t
}

// raiseByName constructs an instance of the named class (searched
// among the VM's core error classes, then the builtin namespace) with
// a single string message argument and throws it — the bridge
// native->voxl exceptions (ctx.Throw) and the VM's own runtime checks
// (undefined name, bad operand types) both go through this.
func (vm *VM) raiseByName(className, message string) error {
	class := vm.coreClassByName(className)
	if class == nil {
		if v, ok := vm.builtin.Globals.Get(value.StringKey{Obj: vm.a.InternString(className)}); ok && v.IsObj(value.ClassObj) {
			class = v.AsObj()
		}
	}
	if class == nil {
		return vm.fatalf("unknown error class %q", className)
	}
	msgObj := vm.a.InternString(message)
	instance := vm.a.NewInstance(class)
	instance.Fields.Set(value.StringKey{Obj: vm.a.InternString("message")}, value.ObjVal(msgObj))
	return vm.throwValue(value.ObjVal(instance))
}

func (vm *VM) raiseTypeError(message string) error { return vm.raiseByName("TypeError", message) }
func (vm *VM) raiseNameError(message string) error { return vm.raiseByName("NameError", message) }
func (vm *VM) raiseStopIteration() error            { return vm.raiseByName("StopIteration", "") }

func (vm *VM) coreClassByName(name string) *value.Obj {
	switch name {
	case "TypeError":
		return vm.typeErrorClass
	case "NameError":
		return vm.nameErrorClass
	case "StopIteration":
		return vm.stopIterationClass
	}
	return nil
}

// matchesClass implements `MatchClass`: v matches className if v is
// an Instance/NativeInstance whose class is, or inherits from, the
// named class.
func (vm *VM) matchesClass(v value.Value, className string) bool {
	if v.Kind != value.ObjRef || v.AsObj() == nil {
		return false
	}
	obj := v.AsObj()
	if obj.Kind != value.InstanceObj && obj.Kind != value.NativeInstanceObj {
		return false
	}
	for c := obj.Class; c != nil; c = c.Super {
		if c.Name != nil && c.Name.Chars == className {
			return true
		}
	}
	return false
}

// installCoreErrorClasses builds the three error classes the VM
// itself raises (§4.9): each is `$init(msg)` storing `message`, plus
// `$str()` returning it.
func (vm *VM) installCoreErrorClasses() {
	vm.typeErrorClass = vm.newErrorClass("TypeError")
	vm.nameErrorClass = vm.newErrorClass("NameError")
	vm.stopIterationClass = vm.newErrorClass("StopIteration")

	g := vm.builtin.Globals
	g.Set(value.StringKey{Obj: vm.a.InternString("TypeError")}, value.ObjVal(vm.typeErrorClass))
	g.Set(value.StringKey{Obj: vm.a.InternString("NameError")}, value.ObjVal(vm.nameErrorClass))
	g.Set(value.StringKey{Obj: vm.a.InternString("StopIteration")}, value.ObjVal(vm.stopIterationClass))
}

func (vm *VM) newErrorClass(name string) *value.Obj {
	class := vm.a.NewClass(vm.a.InternString(name), 0)
	messageKey := vm.a.InternString("message")

	initFn := vm.a.NewNativeFunction(vm.a.InternString("$init"), 1, func(ctx value.NativeContext) (value.Value, error) {
		self := ctx.Self().AsObj()
		msg := ctx.Arg(0)
		self.Fields.Set(value.StringKey{Obj: messageKey}, msg)
		return value.NullVal(), nil
	}, nil)
	class.Methods.Set(value.StringKey{Obj: vm.sInit}, value.ObjVal(initFn))

	strFn := vm.a.NewNativeFunction(vm.a.InternString("$str"), 0, func(ctx value.NativeContext) (value.Value, error) {
		self := ctx.Self().AsObj()
		if v, ok := self.Fields.Get(value.StringKey{Obj: messageKey}); ok {
			return v, nil
		}
		return value.ObjVal(ctx.Heap().InternString("")), nil
	}, nil)
	class.Methods.Set(value.StringKey{Obj: vm.sStr}, value.ObjVal(strFn))

	return class
}
