// Package alloc implements voxl's allocator and tri-color mark-sweep
// garbage collector (C4, §4.5). It owns every heap Obj, the string
// intern pool, the shared constant pool, and the marking-function
// registry that VM/compiler/module roots register into.
package alloc

import (
	"fmt"
	"hash/fnv"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/kristofer/voxl/pkg/hashtable"
	"github.com/kristofer/voxl/pkg/value"
)

// MarkFn is called during a GC pass; it must report every Value and
// Obj it directly holds live via the supplied addValue/addObj
// callbacks (§4.5 step 2).
type MarkFn func(addValue func(value.Value), addObj func(*value.Obj))

type markEntry struct {
	id int
	fn MarkFn
}

// MarkingHandle is returned by RegisterMarkingFunction; call Unregister
// when the root goes out of scope (e.g. a call frame returns).
type MarkingHandle struct {
	a  *Allocator
	id int
}

func (h MarkingHandle) Unregister() { h.a.unregisterMarkingFunction(h.id) }

// Allocator owns every live Obj and drives the GC.
type Allocator struct {
	head *value.Obj // singly-linked list of all live objects

	markingFns []markEntry
	nextMarkID int
	worklist   []*value.Obj

	constants []value.Value

	localObjs   map[*value.Obj]int // pinned Obj -> refcount
	localValues []value.Value      // pinned Values, native-handle style

	internPool map[string]*value.Obj

	bytesAllocated int64
	gcThreshold    int64
	growthFactor   int64
	minThreshold   int64
	stress         bool
	gcLog          bool

	openUpvalues []*value.Obj // sorted by descending OpenSlot, §3 invariant 4

	gcCount int
}

// Config carries the tunables §4.5.a documents as Config-overridable.
type Config struct {
	GrowthFactor int64 // default 2
	MinThreshold int64 // default 1 MiB
	Stress       bool
	GCLog        bool
}

// DefaultConfig matches original_source/src/Allocator.cpp's defaults.
func DefaultConfig() Config {
	return Config{GrowthFactor: 2, MinThreshold: 1 << 20}
}

// New creates an Allocator. VOXL_GC_STRESS=1 overrides cfg.Stress, per
// §4.5.a's env-var escape hatch.
func New(cfg Config) *Allocator {
	a := &Allocator{
		localObjs:    make(map[*value.Obj]int),
		internPool:   make(map[string]*value.Obj),
		growthFactor: cfg.GrowthFactor,
		minThreshold: cfg.MinThreshold,
		gcThreshold:  cfg.MinThreshold,
		stress:       cfg.Stress,
		gcLog:        cfg.GCLog,
	}
	if os.Getenv("VOXL_GC_STRESS") == "1" {
		a.stress = true
	}
	if a.growthFactor <= 0 {
		a.growthFactor = 2
	}
	if a.minThreshold <= 0 {
		a.minThreshold = 1 << 20
	}
	return a
}

// RegisterMarkingFunction adds fn to the set of roots visited by every
// GC pass. Returns a handle to unregister it later (§4.5: "The VM,
// compiler, loaded-modules table, and per-call local handles each
// register one.").
func (a *Allocator) RegisterMarkingFunction(fn MarkFn) MarkingHandle {
	id := a.nextMarkID
	a.nextMarkID++
	a.markingFns = append(a.markingFns, markEntry{id: id, fn: fn})
	return MarkingHandle{a: a, id: id}
}

func (a *Allocator) unregisterMarkingFunction(id int) {
	for i, e := range a.markingFns {
		if e.id == id {
			a.markingFns = append(a.markingFns[:i], a.markingFns[i+1:]...)
			return
		}
	}
}

// PinLocal and UnpinLocal implement value.Heap's local-handle pin set:
// a native function can hold a live reference to an Obj/Value across
// allocations it triggers without a stack slot backing it.
func (a *Allocator) PinLocal(v value.Value) {
	if v.Kind == value.ObjRef && v.AsObj() != nil {
		a.localObjs[v.AsObj()]++
		return
	}
	a.localValues = append(a.localValues, v)
}

func (a *Allocator) UnpinLocal(v value.Value) {
	if v.Kind == value.ObjRef && v.AsObj() != nil {
		o := v.AsObj()
		if n, ok := a.localObjs[o]; ok {
			if n <= 1 {
				delete(a.localObjs, o)
			} else {
				a.localObjs[o] = n - 1
			}
		}
		return
	}
	for i := len(a.localValues) - 1; i >= 0; i-- {
		if a.localValues[i].Equals(v) {
			a.localValues = append(a.localValues[:i], a.localValues[i+1:]...)
			return
		}
	}
}

func (a *Allocator) track(o *value.Obj, size int64) *value.Obj {
	o.Next = a.head
	a.head = o
	a.bytesAllocated += size
	if a.stress || a.bytesAllocated > a.gcThreshold {
		a.RunGC()
	}
	return o
}

const objBaseSize = 64 // approximate header+field cost, for threshold accounting only

// InternString returns the canonical String Obj for s, allocating one
// if this is the first time s has been seen (Invariant 1).
func (a *Allocator) InternString(s string) *value.Obj {
	if o, ok := a.internPool[s]; ok {
		return o
	}
	o := &value.Obj{
		Kind:    value.StringObj,
		Chars:   s,
		ByteLen: len(s),
		RuneLen: len([]rune(s)),
		Hash:    fnvHash(s),
	}
	a.internPool[s] = o
	return a.track(o, int64(objBaseSize+len(s)))
}

func fnvHash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// NewFunction allocates a compiled-function Obj.
func (a *Allocator) NewFunction(name *value.Obj, arity, upvalueCount int) *value.Obj {
	o := &value.Obj{Kind: value.FunctionObj, Name: name, Arity: arity, UpvalueCount: upvalueCount}
	return a.track(o, objBaseSize)
}

// NewNativeFunction allocates a NativeFunction Obj bridging a Go fn
// into voxl.
func (a *Allocator) NewNativeFunction(name *value.Obj, arity int, fn value.NativeFn, ctx interface{}) *value.Obj {
	o := &value.Obj{Kind: value.NativeFunctionObj, Name: name, Arity: arity, Native: fn, NatCtx: ctx}
	return a.track(o, objBaseSize)
}

// NewClass allocates a Class Obj with an empty method table.
func (a *Allocator) NewClass(name *value.Obj, instanceSize int) *value.Obj {
	o := &value.Obj{
		Kind:         value.ClassObj,
		Name:         name,
		Methods:      hashtable.New[value.Value](),
		InstanceSize: instanceSize,
	}
	return a.track(o, objBaseSize)
}

// NewInstance allocates a plain script-defined instance of class.
func (a *Allocator) NewInstance(class *value.Obj) *value.Obj {
	o := &value.Obj{Kind: value.InstanceObj, Class: class, Fields: hashtable.New[value.Value]()}
	return a.track(o, objBaseSize)
}

// NewNativeInstance allocates an instance whose payload is an opaque
// byte blob owned by a builtin; it may be nil (List and Dict pass nil
// and keep their state in NatCtx).
func (a *Allocator) NewNativeInstance(class *value.Obj, payload []byte) *value.Obj {
	o := &value.Obj{
		Kind:    value.NativeInstanceObj,
		Class:   class,
		Payload: payload,
		// A native instance still gets a small Fields table: builtins
		// like List/Dict use it for read-only synthetic fields (`size`)
		// that field access finds the same way a script Instance's
		// fields do, without exposing Payload's internal layout.
		Fields: hashtable.New[value.Value](),
	}
	return a.track(o, int64(objBaseSize+len(payload)))
}

// NewClosure allocates a Closure wrapping fn with nUpvalues empty
// upvalue slots, filled in by the VM as it resolves each descriptor.
func (a *Allocator) NewClosure(fn *value.Obj, nUpvalues int) *value.Obj {
	o := &value.Obj{Kind: value.ClosureObj, Function: fn, Upvalues: make([]*value.Obj, nUpvalues)}
	return a.track(o, objBaseSize)
}

// NewOpenUpvalue allocates an Upvalue pointing at a live stack slot and
// inserts it into the open-upvalue list, kept sorted by descending
// slot so closing a scope can close a contiguous prefix in O(k)
// (Invariants 3 & 4).
func (a *Allocator) NewOpenUpvalue(slot int, ref *value.Value) *value.Obj {
	for _, existing := range a.openUpvalues {
		if existing.Open && existing.OpenSlot == slot {
			return existing
		}
	}
	o := &value.Obj{Kind: value.UpvalueObj}
	o.OpenUpvalue(slot, ref)
	a.track(o, objBaseSize)

	idx, _ := slices.BinarySearchFunc(a.openUpvalues, o, func(x, y *value.Obj) int {
		return y.OpenSlot - x.OpenSlot // descending
	})
	a.openUpvalues = slices.Insert(a.openUpvalues, idx, o)
	return o
}

// CloseUpvaluesFrom closes every open upvalue whose captured slot is
// >= fromSlot, then drops them from the open list.
func (a *Allocator) CloseUpvaluesFrom(fromSlot int) {
	cut := len(a.openUpvalues)
	for i, o := range a.openUpvalues {
		if o.OpenSlot < fromSlot {
			cut = i
			break
		}
		o.Close()
	}
	a.openUpvalues = a.openUpvalues[cut:]
}

// NewBoundFunction allocates the (receiver, method) pair produced by
// method lookup on an instance.
func (a *Allocator) NewBoundFunction(receiver value.Value, method *value.Obj) *value.Obj {
	o := &value.Obj{Kind: value.BoundFunctionObj, Receiver: receiver, Method: method}
	return a.track(o, objBaseSize)
}

// NewModule allocates a Module Obj with an empty globals table.
func (a *Allocator) NewModule(name string) *value.Obj {
	o := &value.Obj{Kind: value.ModuleObj, ModName: name, Globals: hashtable.New[value.Value]()}
	return a.track(o, objBaseSize)
}

// AddConstant appends v to the shared constant pool and returns its
// index.
func (a *Allocator) AddConstant(v value.Value) int {
	a.constants = append(a.constants, v)
	return len(a.constants) - 1
}

// Constant returns the pool entry at id.
func (a *Allocator) Constant(id int) value.Value { return a.constants[id] }

// RunGC performs one tri-color mark-and-sweep pass (§4.5).
func (a *Allocator) RunGC() {
	a.gcCount++
	before := a.bytesAllocated

	a.worklist = a.worklist[:0]
	for _, e := range a.markingFns {
		e.fn(a.markValue, a.enqueue)
	}
	for o := range a.localObjs {
		a.enqueue(o)
	}
	for _, v := range a.localValues {
		a.markValue(v)
	}
	for _, u := range a.openUpvalues {
		a.enqueue(u)
	}

	for len(a.worklist) > 0 {
		o := a.worklist[len(a.worklist)-1]
		a.worklist = a.worklist[:len(a.worklist)-1]
		a.markChildren(o)
	}

	a.sweep()

	a.gcThreshold = a.bytesAllocated * a.growthFactor
	if a.gcThreshold < a.minThreshold {
		a.gcThreshold = a.minThreshold
	}

	if a.gcLog {
		fmt.Fprintf(os.Stderr, "gc #%d: %s -> %s (next threshold %s)\n",
			a.gcCount,
			humanize.Bytes(uint64(before)),
			humanize.Bytes(uint64(a.bytesAllocated)),
			humanize.Bytes(uint64(a.gcThreshold)))
	}
}

func (a *Allocator) markValue(v value.Value) {
	if v.Kind == value.ObjRef && v.AsObj() != nil {
		a.enqueue(v.AsObj())
	}
}

func (a *Allocator) enqueue(o *value.Obj) {
	if o == nil || o.Marked {
		return
	}
	o.Marked = true
	a.worklist = append(a.worklist, o)
}

// markChildren enqueues o's outgoing Obj references per its variant
// (§4.5 step 3).
func (a *Allocator) markChildren(o *value.Obj) {
	switch o.Kind {
	case value.StringObj:
		// no outgoing references
	case value.FunctionObj:
		a.enqueue(o.Name)
		a.enqueue(o.Module)
		if o.Chunk != nil {
			for _, c := range o.Chunk.Constants {
				if ov, ok := c.(value.Value); ok {
					a.markValue(ov)
				}
			}
		}
	case value.NativeFunctionObj:
		a.enqueue(o.Name)
		a.enqueue(o.Module)
	case value.ClassObj:
		a.enqueue(o.Name)
		a.enqueue(o.Super)
		if o.Methods != nil {
			o.Methods.Each(func(_ hashtable.Key, v value.Value) bool {
				a.markValue(v)
				return true
			})
		}
	case value.InstanceObj:
		a.enqueue(o.Class)
		if o.Fields != nil {
			o.Fields.Each(func(_ hashtable.Key, v value.Value) bool {
				a.markValue(v)
				return true
			})
		}
	case value.NativeInstanceObj:
		a.enqueue(o.Class)
		if o.Class != nil && o.Class.NativeMarker != nil {
			o.Class.NativeMarker(o, a.markValue)
		}
	case value.ClosureObj:
		a.enqueue(o.Function)
		for _, up := range o.Upvalues {
			a.enqueue(up)
		}
	case value.UpvalueObj:
		a.markValue(o.Get())
	case value.BoundFunctionObj:
		a.markValue(o.Receiver)
		a.enqueue(o.Method)
	case value.ModuleObj:
		if o.Globals != nil {
			o.Globals.Each(func(_ hashtable.Key, v value.Value) bool {
				a.markValue(v)
				return true
			})
		}
	}
}

func (a *Allocator) sweep() {
	var prev *value.Obj
	node := a.head
	a.bytesAllocated = 0
	for node != nil {
		next := node.Next
		if node.Marked {
			node.Marked = false
			a.bytesAllocated += objBaseSize
			prev = node
		} else {
			if node.Kind == value.StringObj {
				delete(a.internPool, node.Chars)
			}
			if node.Kind == value.NativeInstanceObj && node.Class != nil && node.Class.NativeFree != nil {
				node.Class.NativeFree(node)
			}
			if prev == nil {
				a.head = next
			} else {
				prev.Next = next
			}
		}
		node = next
	}
}

// AllocationError wraps a fatal out-of-memory style condition; voxl's
// allocator never actually runs out of Go heap, and no code in this
// module returns this error (pkg/vm reports call-stack exhaustion
// through its own FatalError).
func AllocationError(context string) error {
	return errors.Wrapf(errFatalAllocation, "while %s", context)
}

var errFatalAllocation = errors.New("allocator: fatal condition")
