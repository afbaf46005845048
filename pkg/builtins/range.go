package builtins

import (
	"github.com/kristofer/voxl/pkg/alloc"
	"github.com/kristofer/voxl/pkg/value"
)

// rangeState is Range's mutable cursor; $iter returns the Range
// instance itself (it is its own iterator) since nothing needs to
// observe two independent positions over the same range at once.
type rangeState struct {
	cur, hi int64
}

func installRange(a *alloc.Allocator, g *globalsTable) {
	rangeClass := a.NewClass(a.InternString("Range"), 1)

	rangeClass.Methods.Set(value.StringKey{Obj: a.InternString("$iter")}, value.ObjVal(
		a.NewNativeFunction(a.InternString("$iter"), 0, func(ctx value.NativeContext) (value.Value, error) {
			return ctx.Self(), nil
		}, nil)))

	rangeClass.Methods.Set(value.StringKey{Obj: a.InternString("$next")}, value.ObjVal(
		a.NewNativeFunction(a.InternString("$next"), 0, func(ctx value.NativeContext) (value.Value, error) {
			st := ctx.Self().AsObj().NatCtx.(*rangeState)
			if st.cur >= st.hi {
				return value.Value{}, ctx.Throw("StopIteration", "")
			}
			v := st.cur
			st.cur++
			return value.IntVal(v), nil
		}, nil)))

	g.Set(value.StringKey{Obj: a.InternString("Range")}, value.ObjVal(rangeClass))

	g.Set(value.StringKey{Obj: a.InternString("range")}, value.ObjVal(
		a.NewNativeFunction(a.InternString("range"), 2, func(ctx value.NativeContext) (value.Value, error) {
			lo, err := asIntArg(ctx, 0)
			if err != nil {
				return value.Value{}, err
			}
			hi, err := asIntArg(ctx, 1)
			if err != nil {
				return value.Value{}, err
			}
			r := ctx.Heap().NewNativeInstance(rangeClass, nil)
			r.NatCtx = &rangeState{cur: lo, hi: hi}
			return value.ObjVal(r), nil
		}, nil)))
}

func asIntArg(ctx value.NativeContext, i int) (int64, error) {
	v := ctx.Arg(i)
	if v.Kind != value.Int {
		return 0, ctx.Throw("TypeError", "range() requires Int arguments")
	}
	return v.AsInt(), nil
}
