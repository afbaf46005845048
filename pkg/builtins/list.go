package builtins

import (
	"fmt"

	"github.com/kristofer/voxl/pkg/alloc"
	"github.com/kristofer/voxl/pkg/value"
)

// List is a NativeInstance (§4.9) whose backing Go slice lives in
// NatCtx rather than Payload — voxl's Payload field models a C-style
// inline byte blob, but a dynamic []Value is more naturally expressed
// as an ordinary Go slice behind an opaque pointer, still marked for
// GC through the class's NativeMarker hook.
type listData struct {
	items []value.Value
}

func installList(a *alloc.Allocator, g *globalsTable) {
	listClass := a.NewClass(a.InternString("List"), 1)
	listClass.NativeMarker = func(o *value.Obj, mark func(value.Value)) {
		ld := o.NatCtx.(*listData)
		for _, v := range ld.items {
			mark(v)
		}
	}

	listClass.Methods.Set(value.StringKey{Obj: a.InternString("$init")}, value.ObjVal(
		a.NewNativeFunction(a.InternString("$init"), -1, func(ctx value.NativeContext) (value.Value, error) {
			self := ctx.Self().AsObj()
			items := make([]value.Value, ctx.NumArgs())
			for i := range items {
				items[i] = ctx.Arg(i)
			}
			self.NatCtx = &listData{items: items}
			syncListSize(ctx.Heap(), self)
			return value.NullVal(), nil
		}, nil)))

	listClass.Methods.Set(value.StringKey{Obj: a.InternString("push")}, value.ObjVal(
		a.NewNativeFunction(a.InternString("push"), 1, func(ctx value.NativeContext) (value.Value, error) {
			self := ctx.Self().AsObj()
			ld := self.NatCtx.(*listData)
			ld.items = append(ld.items, ctx.Arg(0))
			syncListSize(ctx.Heap(), self)
			return ctx.Self(), nil
		}, nil)))

	listClass.Methods.Set(value.StringKey{Obj: a.InternString("$get_index")}, value.ObjVal(
		a.NewNativeFunction(a.InternString("$get_index"), 1, func(ctx value.NativeContext) (value.Value, error) {
			ld := ctx.Self().AsObj().NatCtx.(*listData)
			i, err := listIndex(ctx, ld, ctx.Arg(0))
			if err != nil {
				return value.Value{}, err
			}
			return ld.items[i], nil
		}, nil)))

	listClass.Methods.Set(value.StringKey{Obj: a.InternString("$set_index")}, value.ObjVal(
		a.NewNativeFunction(a.InternString("$set_index"), 2, func(ctx value.NativeContext) (value.Value, error) {
			ld := ctx.Self().AsObj().NatCtx.(*listData)
			i, err := listIndex(ctx, ld, ctx.Arg(0))
			if err != nil {
				return value.Value{}, err
			}
			ld.items[i] = ctx.Arg(1)
			return ctx.Arg(1), nil
		}, nil)))

	listClass.Methods.Set(value.StringKey{Obj: a.InternString("$iter")}, value.ObjVal(
		a.NewNativeFunction(a.InternString("$iter"), 0, func(ctx value.NativeContext) (value.Value, error) {
			iter := ctx.Heap().NewNativeInstance(listIteratorClass, nil)
			iter.NatCtx = &listIterState{list: ctx.Self().AsObj(), pos: 0}
			return value.ObjVal(iter), nil
		}, nil)))

	g.Set(value.StringKey{Obj: a.InternString("List")}, value.ObjVal(listClass))

	installListIterator(a, g)
}

func listIndex(ctx value.NativeContext, ld *listData, idxVal value.Value) (int, error) {
	if idxVal.Kind != value.Int {
		return 0, ctx.Throw("TypeError", "list index must be an Int")
	}
	i := int(idxVal.AsInt())
	if i < 0 || i >= len(ld.items) {
		return 0, ctx.Throw("TypeError", fmt.Sprintf("list index %d out of range (size %d)", i, len(ld.items)))
	}
	return i, nil
}

func syncListSize(h value.Heap, self *value.Obj) {
	ld := self.NatCtx.(*listData)
	self.Fields.Set(value.StringKey{Obj: h.InternString("size")}, value.IntVal(int64(len(ld.items))))
}

func listLen(v value.Value) (int, bool) {
	if !v.IsObj(value.NativeInstanceObj) {
		return 0, false
	}
	ld, ok := v.AsObj().NatCtx.(*listData)
	if !ok {
		return 0, false
	}
	return len(ld.items), true
}

var listIteratorClass *value.Obj

type listIterState struct {
	list *value.Obj
	pos  int
}

func installListIterator(a *alloc.Allocator, g *globalsTable) {
	listIteratorClass = a.NewClass(a.InternString("ListIterator"), 1)
	listIteratorClass.NativeMarker = func(o *value.Obj, mark func(value.Value)) {
		st := o.NatCtx.(*listIterState)
		mark(value.ObjVal(st.list))
	}

	listIteratorClass.Methods.Set(value.StringKey{Obj: a.InternString("$init")}, value.ObjVal(
		a.NewNativeFunction(a.InternString("$init"), 1, func(ctx value.NativeContext) (value.Value, error) {
			list := ctx.Arg(0)
			if !list.IsObj(value.NativeInstanceObj) {
				return value.Value{}, ctx.Throw("TypeError", "ListIterator requires a List")
			}
			ctx.Self().AsObj().NatCtx = &listIterState{list: list.AsObj(), pos: 0}
			return value.NullVal(), nil
		}, nil)))

	listIteratorClass.Methods.Set(value.StringKey{Obj: a.InternString("$next")}, value.ObjVal(
		a.NewNativeFunction(a.InternString("$next"), 0, func(ctx value.NativeContext) (value.Value, error) {
			st := ctx.Self().AsObj().NatCtx.(*listIterState)
			ld := st.list.NatCtx.(*listData)
			if st.pos >= len(ld.items) {
				return value.Value{}, ctx.Throw("StopIteration", "")
			}
			v := ld.items[st.pos]
			st.pos++
			return v, nil
		}, nil)))

	g.Set(value.StringKey{Obj: a.InternString("ListIterator")}, value.ObjVal(listIteratorClass))
}
