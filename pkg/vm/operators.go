package vm

import (
	"fmt"

	"github.com/kristofer/voxl/pkg/bytecode"
	"github.com/kristofer/voxl/pkg/value"
)

// binaryOrUnary handles every arithmetic/comparison/unary opcode not
// already special-cased in step: numeric operands take a direct Go
// fast path; anything else falls through to the left operand's
// `$add`/`$sub`/... method, per §4.8.
func (vm *VM) binaryOrUnary(op bytecode.Op, line uint32) error {
	switch op {
	case bytecode.Negate:
		v := vm.pop()
		switch v.Kind {
		case value.Int:
			vm.push(value.IntVal(-v.AsInt()))
		case value.Float:
			vm.push(value.FloatVal(-v.AsFloat()))
		default:
			return vm.raiseTypeError(fmt.Sprintf("cannot negate %s", v.String()))
		}
		return nil
	case bytecode.Not:
		v := vm.pop()
		vm.push(value.BoolVal(!v.Truthy()))
		return nil
	case bytecode.Equals:
		b := vm.pop()
		a := vm.pop()
		vm.push(value.BoolVal(a.Equals(b)))
		return nil
	case bytecode.NotEq:
		b := vm.pop()
		a := vm.pop()
		vm.push(value.BoolVal(!a.Equals(b)))
		return nil
	case bytecode.Concat:
		b := vm.pop()
		a := vm.pop()
		if !a.IsObj(value.StringObj) || !b.IsObj(value.StringObj) {
			return vm.raiseTypeError("'++' requires two strings")
		}
		vm.push(value.ObjVal(vm.a.InternString(a.AsObj().Chars + b.AsObj().Chars)))
		return nil
	}

	// Arithmetic/ordering: numeric fast path, else operator-method
	// dispatch on the left operand.
	b := vm.peek(0)
	a := vm.peek(1)
	if isNumeric(a) && isNumeric(b) {
		vm.sp -= 2
		return vm.numericOp(op, a, b)
	}
	methodName, ok := operatorMethodName(op)
	if !ok {
		return vm.raiseTypeError(fmt.Sprintf("unsupported operator on %s", a.String()))
	}
	if !isCallableReceiver(a) {
		return vm.raiseTypeError(fmt.Sprintf("unsupported operand type for %s: %s", methodName, a.String()))
	}
	method, ok := vm.lookupMethodByName(a.AsObj().Class, methodName)
	if !ok {
		return vm.raiseTypeError(fmt.Sprintf("%s has no %s method", a.AsObj().Class.Name.Chars, methodName))
	}
	// a, b already sit at [aSlot, bSlot] == [self, arg1]; reuse them as
	// the call window directly, no extra push needed.
	calleeSlot := vm.sp - 2
	return vm.invokeMethod(calleeSlot, method.AsObj(), 1, -1)
}

func isNumeric(v value.Value) bool { return v.Kind == value.Int || v.Kind == value.Float }

func isCallableReceiver(v value.Value) bool {
	return v.Kind == value.ObjRef && v.AsObj() != nil &&
		(v.AsObj().Kind == value.InstanceObj || v.AsObj().Kind == value.NativeInstanceObj)
}

func (vm *VM) numericOp(op bytecode.Op, a, b value.Value) error {
	if a.Kind == value.Int && b.Kind == value.Int {
		x, y := a.AsInt(), b.AsInt()
		switch op {
		case bytecode.Add:
			vm.push(value.IntVal(x + y))
		case bytecode.Sub:
			vm.push(value.IntVal(x - y))
		case bytecode.Mul:
			vm.push(value.IntVal(x * y))
		case bytecode.Div:
			if y == 0 {
				return vm.raiseTypeError("division by zero")
			}
			vm.push(value.IntVal(x / y))
		case bytecode.Mod:
			if y == 0 {
				return vm.raiseTypeError("division by zero")
			}
			vm.push(value.IntVal(x % y))
		case bytecode.Less:
			vm.push(value.BoolVal(x < y))
		case bytecode.LessEq:
			vm.push(value.BoolVal(x <= y))
		case bytecode.More:
			vm.push(value.BoolVal(x > y))
		case bytecode.MoreEq:
			vm.push(value.BoolVal(x >= y))
		}
		return nil
	}
	x, y := asFloat(a), asFloat(b)
	switch op {
	case bytecode.Add:
		vm.push(value.FloatVal(x + y))
	case bytecode.Sub:
		vm.push(value.FloatVal(x - y))
	case bytecode.Mul:
		vm.push(value.FloatVal(x * y))
	case bytecode.Div:
		vm.push(value.FloatVal(x / y))
	case bytecode.Mod:
		vm.push(value.FloatVal(mathMod(x, y)))
	case bytecode.Less:
		vm.push(value.BoolVal(x < y))
	case bytecode.LessEq:
		vm.push(value.BoolVal(x <= y))
	case bytecode.More:
		vm.push(value.BoolVal(x > y))
	case bytecode.MoreEq:
		vm.push(value.BoolVal(x >= y))
	}
	return nil
}

func asFloat(v value.Value) float64 {
	if v.Kind == value.Int {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

func mathMod(x, y float64) float64 {
	r := x - y*float64(int64(x/y))
	return r
}

func operatorMethodName(op bytecode.Op) (string, bool) {
	switch op {
	case bytecode.Add:
		return "$add", true
	case bytecode.Sub:
		return "$sub", true
	case bytecode.Mul:
		return "$mul", true
	case bytecode.Div:
		return "$div", true
	case bytecode.Mod:
		return "$mod", true
	case bytecode.Less:
		return "$lt", true
	case bytecode.LessEq:
		return "$le", true
	case bytecode.More:
		return "$gt", true
	case bytecode.MoreEq:
		return "$ge", true
	}
	return "", false
}

// getField implements `GetField` (§4.8): a Module receiver reads its
// Globals directly; an Instance/NativeInstance tries its class's
// method table first (wrapping a hit as a BoundFunction), then its
// field table.
func (vm *VM) getField(receiver value.Value, name *value.Obj) (value.Value, error) {
	if receiver.Kind != value.ObjRef || receiver.AsObj() == nil {
		return value.Value{}, vm.raiseTypeError(fmt.Sprintf("cannot access .%s on %s", name.Chars, receiver.String()))
	}
	obj := receiver.AsObj()
	switch obj.Kind {
	case value.ModuleObj:
		if v, ok := obj.Globals.Get(value.StringKey{Obj: name}); ok {
			return v, nil
		}
		return value.Value{}, vm.raiseNameError(fmt.Sprintf("module %q has no member %q", obj.ModName, name.Chars))
	case value.InstanceObj, value.NativeInstanceObj:
		if m, ok := vm.lookupMethod(obj.Class, name); ok {
			return value.ObjVal(vm.a.NewBoundFunction(receiver, m.AsObj())), nil
		}
		if v, ok := obj.Fields.Get(value.StringKey{Obj: name}); ok {
			return v, nil
		}
		return value.Value{}, vm.raiseNameError(fmt.Sprintf("%q has no field or method %q", obj.Class.Name.Chars, name.Chars))
	case value.ClassObj:
		if m, ok := vm.lookupMethod(obj, name); ok {
			return m, nil
		}
		return value.Value{}, vm.raiseNameError(fmt.Sprintf("class %q has no method %q", obj.Name.Chars, name.Chars))
	default:
		return value.Value{}, vm.raiseTypeError(fmt.Sprintf("%s has no fields", receiver.String()))
	}
}

// setField implements `SetField`: only a script Instance's field
// table is directly mutable this way.
func (vm *VM) setField(receiver value.Value, name *value.Obj, v value.Value) error {
	if !receiver.IsObj(value.InstanceObj) {
		return vm.raiseTypeError(fmt.Sprintf("cannot set field %q on %s", name.Chars, receiver.String()))
	}
	receiver.AsObj().Fields.Set(value.StringKey{Obj: name}, v)
	return nil
}

// execGetIndex implements `GetIndex`: dispatches to the receiver's
// `$get_index` method only — no field-table fallback (§4.8).
func (vm *VM) execGetIndex() error {
	// stack: [..., receiver, index] -> dispatch $get_index(index)
	if !isCallableReceiver(vm.peek(1)) {
		return vm.raiseTypeError(fmt.Sprintf("%s does not support indexing", vm.peek(1).String()))
	}
	receiver := vm.peek(1)
	method, ok := vm.lookupMethod(receiver.AsObj().Class, vm.sGetIndex)
	if !ok {
		return vm.raiseTypeError(fmt.Sprintf("%q has no $get_index method", receiver.AsObj().Class.Name.Chars))
	}
	calleeSlot := vm.sp - 2
	return vm.invokeMethod(calleeSlot, method.AsObj(), 1, -1)
}

// execSetIndex implements `SetIndex`: stack is [..., receiver, index,
// value]; dispatches `$set_index(index, value)` bound to receiver,
// then pushes the original value back regardless of what
// `$set_index` itself returns (assignment-as-expression semantics).
func (vm *VM) execSetIndex() error {
	receiver := vm.peek(2)
	if !isCallableReceiver(receiver) {
		return vm.raiseTypeError(fmt.Sprintf("%s does not support index assignment", receiver.String()))
	}
	method, ok := vm.lookupMethod(receiver.AsObj().Class, vm.sSetIndex)
	if !ok {
		return vm.raiseTypeError(fmt.Sprintf("%q has no $set_index method", receiver.AsObj().Class.Name.Chars))
	}
	calleeSlot := vm.sp - 3
	valueSlot := vm.sp - 1
	return vm.invokeMethod(calleeSlot, method.AsObj(), 2, valueSlot)
}
