// Package value defines voxl's runtime Value tagged union and the
// heap Obj header with its ten variants (§3 DATA MODEL, C3/C5).
//
// Layering note: this package sits between pkg/bytecode/pkg/hashtable
// (which it imports) and pkg/alloc/pkg/vm (which import it). To avoid
// a cycle, the few places Obj/Value need to call back into the
// allocator or VM — native functions allocating a new string, an
// operator-method fallback invoking a user closure — are expressed as
// interfaces (Heap, VMHost, NativeContext) defined here and satisfied
// structurally by pkg/alloc and pkg/vm. Neither of those packages is
// imported by this one.
package value

import (
	"fmt"
	"math"

	"github.com/kristofer/voxl/pkg/bytecode"
	"github.com/kristofer/voxl/pkg/hashtable"
)

// Kind tags a Value's active variant.
type Kind byte

const (
	Int Kind = iota
	Float
	Bool
	Null
	ObjRef
)

// Value is voxl's value representation, passed by value everywhere
// per §4.6. Only one of i/f/b/obj is meaningful, selected by Kind.
type Value struct {
	Kind Kind
	i    int64
	f    float64
	b    bool
	obj  *Obj
}

func IntVal(v int64) Value   { return Value{Kind: Int, i: v} }
func FloatVal(v float64) Value { return Value{Kind: Float, f: v} }
func BoolVal(v bool) Value   { return Value{Kind: Bool, b: v} }
func NullVal() Value         { return Value{Kind: Null} }
func ObjVal(o *Obj) Value    { return Value{Kind: ObjRef, obj: o} }

func (v Value) AsInt() int64    { return v.i }
func (v Value) AsFloat() float64 { return v.f }
func (v Value) AsBool() bool    { return v.b }
func (v Value) AsObj() *Obj     { return v.obj }

func (v Value) IsNull() bool { return v.Kind == Null }
func (v Value) IsObj(k ObjKind) bool {
	return v.Kind == ObjRef && v.obj != nil && v.obj.Kind == k
}

// Truthy implements voxl's truthiness rule: null and false are falsy,
// everything else — including 0, 0.0, and "" — is truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case Null:
		return false
	case Bool:
		return v.b
	default:
		return true
	}
}

// Equals implements §3's equality rule: numeric variants cross-compare
// by promotion; Obj compares identity except strings, which compare
// by interned identity (so a plain pointer compare suffices once the
// allocator has guaranteed interning — see Invariant 1).
func (v Value) Equals(o Value) bool {
	switch v.Kind {
	case Int:
		switch o.Kind {
		case Int:
			return v.i == o.i
		case Float:
			return float64(v.i) == o.f
		}
		return false
	case Float:
		switch o.Kind {
		case Int:
			return v.f == float64(o.i)
		case Float:
			return v.f == o.f
		}
		return false
	case Bool:
		return o.Kind == Bool && v.b == o.b
	case Null:
		return o.Kind == Null
	case ObjRef:
		if o.Kind != ObjRef {
			return false
		}
		return v.obj == o.obj
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case Int:
		return fmt.Sprintf("%d", v.i)
	case Float:
		return formatFloat(v.f)
	case Bool:
		if v.b {
			return "true"
		}
		return "false"
	case Null:
		return "null"
	case ObjRef:
		if v.obj == nil {
			return "null"
		}
		return v.obj.String()
	}
	return "<invalid>"
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	s := fmt.Sprintf("%g", f)
	return s
}

// ObjKind tags an Obj's active variant (§3).
type ObjKind byte

const (
	StringObj ObjKind = iota
	FunctionObj
	NativeFunctionObj
	ClassObj
	InstanceObj
	NativeInstanceObj
	ClosureObj
	UpvalueObj
	BoundFunctionObj
	ModuleObj
)

// NativeFn is a Go function exposed to voxl code as a NativeFunction
// Obj. It receives a NativeContext for argument access, heap
// allocation, and raising voxl-level errors.
type NativeFn func(ctx NativeContext) (Value, error)

// NativeContext is what a NativeFn is given at call time. Implemented
// by pkg/vm's call-frame machinery.
type NativeContext interface {
	Arg(i int) Value
	NumArgs() int
	Self() Value // receiver for a bound native method; Null for a plain function call
	Heap() Heap
	Host() VMHost
	Throw(className, message string) error
}

// Heap is the subset of the allocator (pkg/alloc) that native code
// and operator-dispatch fallbacks need: string interning and
// allocation of the handful of Obj variants constructible from Go.
type Heap interface {
	InternString(s string) *Obj
	NewInstance(class *Obj) *Obj
	NewNativeInstance(class *Obj, payload []byte) *Obj
	PinLocal(v Value)
	UnpinLocal(v Value)
}

// VMHost is the subset of the VM that native code needs to call back
// into user code (e.g. Dict's key hashing, which runs a key's `$hash`
// method through Hash).
type VMHost interface {
	Call(callee Value, args []Value) (Value, error)
	RaiseClass(name string) (*Obj, bool)

	// Hash computes v's dict key hash: built-in Int/Float/Bool/Null/
	// String hash structurally; an Instance/NativeInstance hashes via
	// its class's $hash method, ok=false if it has none (§4.9's "Dict
	// requires $hash on keys, else TypeError").
	Hash(v Value) (h uint64, ok bool, err error)
}

// Obj is the heap object header plus every variant's fields, kept as
// one flat struct (rather than an interface/visitor hierarchy) so
// dispatch happens on Kind, never on a v-table, per §4.6.
type Obj struct {
	Kind ObjKind

	// GC linkage (C4): singly-linked list of all live objects, and the
	// tri-color mark bit. Maintained exclusively by pkg/alloc.
	Next   *Obj
	Marked bool

	// --- String ---
	Chars   string
	ByteLen int
	RuneLen int
	Hash    uint64

	// --- Function ---
	Name         *Obj // String
	Arity        int
	UpvalueCount int
	Chunk        *bytecode.Chunk
	Module       *Obj // back-pointer to defining module, for Function/NativeFunction

	// --- NativeFunction ---
	Native  NativeFn
	NatCtx  interface{} // opaque user context, per §3

	// --- Class ---
	Methods      *hashtable.Table[Value] // name String -> callable Obj (Closure/NativeFunction)
	Super        *Obj
	NativeMarker func(o *Obj, mark func(Value))
	NativeFree   func(o *Obj)
	InstanceSize int

	// --- Instance ---
	Class  *Obj
	Fields *hashtable.Table[Value]

	// --- NativeInstance ---
	Payload []byte

	// --- Closure ---
	Function *Obj
	Upvalues []*Obj

	// --- Upvalue ---
	OpenSlot   int // stack index when Open; ordering key for the open-upvalue list
	Open       bool
	Closed     Value
	stackRef   *Value // non-nil only while Open; points into the VM's value stack

	// --- BoundFunction ---
	Receiver Value
	Method   *Obj

	// --- Module ---
	ModName string
	Globals *hashtable.Table[Value]
	Loaded  bool
}

func (o *Obj) String() string {
	switch o.Kind {
	case StringObj:
		return o.Chars
	case FunctionObj:
		return fmt.Sprintf("<fn %s>", nameOf(o.Name))
	case NativeFunctionObj:
		return fmt.Sprintf("<native fn %s>", nameOf(o.Name))
	case ClassObj:
		return fmt.Sprintf("<class %s>", nameOf(o.Name))
	case InstanceObj:
		return fmt.Sprintf("<instance of %s>", nameOf(o.Class.Name))
	case NativeInstanceObj:
		return fmt.Sprintf("<native instance of %s>", nameOf(o.Class.Name))
	case ClosureObj:
		return fmt.Sprintf("<fn %s>", nameOf(o.Function.Name))
	case UpvalueObj:
		return "<upvalue>"
	case BoundFunctionObj:
		return fmt.Sprintf("<bound method %s>", nameOf(o.Method.Name))
	case ModuleObj:
		return fmt.Sprintf("<module %s>", o.ModName)
	}
	return "<obj>"
}

func nameOf(nameObj *Obj) string {
	if nameObj == nil {
		return "?"
	}
	return nameObj.Chars
}

// StackSlot returns the open upvalue's captured stack pointer. Used by
// the VM's CloseUpvalue handling; nil once closed.
func (o *Obj) StackSlot() *Value { return o.stackRef }

// OpenUpvalue points o at a live stack slot, marking it Open.
func (o *Obj) OpenUpvalue(slot int, ref *Value) {
	o.Open = true
	o.OpenSlot = slot
	o.stackRef = ref
}

// Close moves the current stack value into Closed and detaches from
// the stack, per §3's Upvalue lifecycle.
func (o *Obj) Close() {
	if o.stackRef != nil {
		o.Closed = *o.stackRef
	}
	o.Open = false
	o.stackRef = nil
}

// Get reads the upvalue's current value, whether open or closed.
func (o *Obj) Get() Value {
	if o.Open && o.stackRef != nil {
		return *o.stackRef
	}
	return o.Closed
}

// Set writes through to the live stack slot if open, else to Closed.
func (o *Obj) Set(v Value) {
	if o.Open && o.stackRef != nil {
		*o.stackRef = v
		return
	}
	o.Closed = v
}
