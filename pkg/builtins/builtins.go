// Package builtins installs voxl's native classes and free functions
// (§4.9) into a VM's builtin namespace: List, ListIterator, Dict,
// Range, the numeric helpers, and put/putln. None of this is part of
// the core interpreter (pkg/vm) itself — a driver calls Install once,
// after constructing the VM and before running any script, exactly
// the way pkg/vm.Builtins exists for.
package builtins

import (
	"fmt"
	"io"
	"math"

	"github.com/kristofer/voxl/pkg/alloc"
	"github.com/kristofer/voxl/pkg/hashtable"
	"github.com/kristofer/voxl/pkg/value"
	"github.com/kristofer/voxl/pkg/vm"
)

type globalsTable = hashtable.Table[value.Value]

// Install populates v's builtin namespace. w receives put/putln output
// (normally os.Stdout; tests pass a bytes.Buffer).
func Install(v *vm.VM, w io.Writer) {
	a := v.Alloc()
	g := v.Builtins().Globals

	installList(a, g)
	installDict(a, g)
	installRange(a, g)
	installNumeric(a, g)

	g.Set(value.StringKey{Obj: a.InternString("put")}, value.ObjVal(nativeFn(a, "put", -1, func(ctx value.NativeContext) (value.Value, error) {
		for i := 0; i < ctx.NumArgs(); i++ {
			fmt.Fprint(w, ctx.Arg(i).String())
		}
		return value.NullVal(), nil
	})))
	g.Set(value.StringKey{Obj: a.InternString("putln")}, value.ObjVal(nativeFn(a, "putln", -1, func(ctx value.NativeContext) (value.Value, error) {
		for i := 0; i < ctx.NumArgs(); i++ {
			fmt.Fprint(w, ctx.Arg(i).String())
		}
		fmt.Fprintln(w)
		return value.NullVal(), nil
	})))
	g.Set(value.StringKey{Obj: a.InternString("len")}, value.ObjVal(nativeFn(a, "len", 1, func(ctx value.NativeContext) (value.Value, error) {
		return lenOf(ctx)
	})))
}

func nativeFn(a *alloc.Allocator, name string, arity int, fn value.NativeFn) *value.Obj {
	return a.NewNativeFunction(a.InternString(name), arity, fn, nil)
}

func lenOf(ctx value.NativeContext) (value.Value, error) {
	arg := ctx.Arg(0)
	if arg.IsObj(value.StringObj) {
		return value.IntVal(int64(arg.AsObj().RuneLen)), nil
	}
	if n, ok := listLen(arg); ok {
		return value.IntVal(int64(n)), nil
	}
	if n, ok := dictLen(arg); ok {
		return value.IntVal(int64(n)), nil
	}
	return value.Value{}, ctx.Throw("TypeError", fmt.Sprintf("len() unsupported for %s", arg.String()))
}

func installNumeric(a *alloc.Allocator, g *globalsTable) {
	unary := func(name string, f func(float64) float64) {
		g.Set(value.StringKey{Obj: a.InternString(name)}, value.ObjVal(nativeFn(a, name, 1, func(ctx value.NativeContext) (value.Value, error) {
			x, err := asFloatArg(ctx, 0)
			if err != nil {
				return value.Value{}, err
			}
			return value.FloatVal(f(x)), nil
		})))
	}
	unary("sqrt", math.Sqrt)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tan", math.Tan)
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	unary("round", math.Round)

	g.Set(value.StringKey{Obj: a.InternString("pow")}, value.ObjVal(nativeFn(a, "pow", 2, func(ctx value.NativeContext) (value.Value, error) {
		x, err := asFloatArg(ctx, 0)
		if err != nil {
			return value.Value{}, err
		}
		y, err := asFloatArg(ctx, 1)
		if err != nil {
			return value.Value{}, err
		}
		return value.FloatVal(math.Pow(x, y)), nil
	})))
	g.Set(value.StringKey{Obj: a.InternString("is_inf")}, value.ObjVal(nativeFn(a, "is_inf", 1, func(ctx value.NativeContext) (value.Value, error) {
		x, err := asFloatArg(ctx, 0)
		if err != nil {
			return value.Value{}, err
		}
		return value.BoolVal(math.IsInf(x, 0)), nil
	})))
	g.Set(value.StringKey{Obj: a.InternString("is_nan")}, value.ObjVal(nativeFn(a, "is_nan", 1, func(ctx value.NativeContext) (value.Value, error) {
		x, err := asFloatArg(ctx, 0)
		if err != nil {
			return value.Value{}, err
		}
		return value.BoolVal(math.IsNaN(x)), nil
	})))
}

func asFloatArg(ctx value.NativeContext, i int) (float64, error) {
	v := ctx.Arg(i)
	switch v.Kind {
	case value.Int:
		return float64(v.AsInt()), nil
	case value.Float:
		return v.AsFloat(), nil
	}
	return 0, ctx.Throw("TypeError", fmt.Sprintf("expected a number, got %s", v.String()))
}
