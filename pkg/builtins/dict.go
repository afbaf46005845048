package builtins

import (
	"github.com/kristofer/voxl/pkg/alloc"
	"github.com/kristofer/voxl/pkg/value"
)

// dictEntry is one stored (key, value) pair; dictData buckets entries
// by hash, resolving collisions with a short linear scan compared via
// Value.Equals (matching voxl's own equality rule, §3) so Int(1) and
// Float(1.0) collide the same way they compare equal.
type dictEntry struct {
	key value.Value
	val value.Value
}

type dictData struct {
	buckets map[uint64][]dictEntry
	size    int
}

func newDictData() *dictData { return &dictData{buckets: make(map[uint64][]dictEntry)} }

func (d *dictData) find(h uint64, key value.Value) (int, []dictEntry) {
	bucket := d.buckets[h]
	for i, e := range bucket {
		if e.key.Equals(key) {
			return i, bucket
		}
	}
	return -1, bucket
}

func (d *dictData) get(h uint64, key value.Value) (value.Value, bool) {
	i, bucket := d.find(h, key)
	if i < 0 {
		return value.Value{}, false
	}
	return bucket[i].val, true
}

func (d *dictData) set(h uint64, key, val value.Value) {
	i, bucket := d.find(h, key)
	if i >= 0 {
		bucket[i].val = val
		d.buckets[h] = bucket
		return
	}
	d.buckets[h] = append(bucket, dictEntry{key: key, val: val})
	d.size++
}

func installDict(a *alloc.Allocator, g *globalsTable) {
	dictClass := a.NewClass(a.InternString("Dict"), 1)
	dictClass.NativeMarker = func(o *value.Obj, mark func(value.Value)) {
		dd := o.NatCtx.(*dictData)
		for _, bucket := range dd.buckets {
			for _, e := range bucket {
				mark(e.key)
				mark(e.val)
			}
		}
	}

	dictClass.Methods.Set(value.StringKey{Obj: a.InternString("$init")}, value.ObjVal(
		a.NewNativeFunction(a.InternString("$init"), 0, func(ctx value.NativeContext) (value.Value, error) {
			self := ctx.Self().AsObj()
			self.NatCtx = newDictData()
			syncDictSize(ctx.Heap(), self)
			return value.NullVal(), nil
		}, nil)))

	dictClass.Methods.Set(value.StringKey{Obj: a.InternString("$get_index")}, value.ObjVal(
		a.NewNativeFunction(a.InternString("$get_index"), 1, func(ctx value.NativeContext) (value.Value, error) {
			dd := ctx.Self().AsObj().NatCtx.(*dictData)
			h, err := dictHash(ctx, ctx.Arg(0))
			if err != nil {
				return value.Value{}, err
			}
			v, ok := dd.get(h, ctx.Arg(0))
			if !ok {
				return value.Value{}, ctx.Throw("NameError", "key not found")
			}
			return v, nil
		}, nil)))

	dictClass.Methods.Set(value.StringKey{Obj: a.InternString("$set_index")}, value.ObjVal(
		a.NewNativeFunction(a.InternString("$set_index"), 2, func(ctx value.NativeContext) (value.Value, error) {
			self := ctx.Self().AsObj()
			dd := self.NatCtx.(*dictData)
			h, err := dictHash(ctx, ctx.Arg(0))
			if err != nil {
				return value.Value{}, err
			}
			dd.set(h, ctx.Arg(0), ctx.Arg(1))
			syncDictSize(ctx.Heap(), self)
			return ctx.Arg(1), nil
		}, nil)))

	g.Set(value.StringKey{Obj: a.InternString("Dict")}, value.ObjVal(dictClass))
}

func dictHash(ctx value.NativeContext, key value.Value) (uint64, error) {
	h, ok, err := ctx.Host().Hash(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ctx.Throw("TypeError", "Dict key has no $hash method")
	}
	return h, nil
}

func syncDictSize(h value.Heap, self *value.Obj) {
	dd := self.NatCtx.(*dictData)
	self.Fields.Set(value.StringKey{Obj: h.InternString("size")}, value.IntVal(int64(dd.size)))
}

func dictLen(v value.Value) (int, bool) {
	if !v.IsObj(value.NativeInstanceObj) {
		return 0, false
	}
	dd, ok := v.AsObj().NatCtx.(*dictData)
	if !ok {
		return 0, false
	}
	return dd.size, true
}
