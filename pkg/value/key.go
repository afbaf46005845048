package value

import (
	"unsafe"

	"github.com/kristofer/voxl/pkg/hashtable"
)

// StringKey adapts an interned String Obj* for use as a hashtable.Key,
// comparing by pointer identity (Invariant 1: exactly one String Obj
// exists per byte-sequence) and reusing its precomputed hash.
type StringKey struct {
	Obj *Obj
}

func (k StringKey) Hash() uint64 { return k.Obj.Hash }

func (k StringKey) Equal(other hashtable.Key) bool {
	o, ok := other.(StringKey)
	return ok && k.Obj == o.Obj
}

// ValueKey adapts an arbitrary Value for use as a hashtable key by the
// built-in rules: numbers, bools and null hash by value, a String by
// its content hash, and any other Obj by identity. It never calls a
// `$hash` method; VM.Hash does that for Dict keys.
type ValueKey struct {
	V Value
}

func (k ValueKey) Hash() uint64 {
	switch k.V.Kind {
	case Int:
		return hashInt64(k.V.i)
	case Float:
		return hashInt64(int64(k.V.f))
	case Bool:
		if k.V.b {
			return 1
		}
		return 0
	case Null:
		return 0
	case ObjRef:
		if k.V.obj != nil && k.V.obj.Kind == StringObj {
			return k.V.obj.Hash
		}
		return uint64(uintptr(unsafe.Pointer(k.V.obj)))
	}
	return 0
}

func (k ValueKey) Equal(other hashtable.Key) bool {
	o, ok := other.(ValueKey)
	if !ok {
		return false
	}
	return k.V.Equals(o.V)
}

func hashInt64(v int64) uint64 {
	u := uint64(v)
	u ^= u >> 33
	u *= 0xff51afd7ed558ccd
	u ^= u >> 33
	u *= 0xc4ceb9fe1a85ec53
	u ^= u >> 33
	return u
}
