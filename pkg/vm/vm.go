// Package vm implements voxl's bytecode interpreter (C8 §4.8): a
// single flat fetch-decode-execute loop over call frames, a value
// stack, an exception-handler stack, and the module loader/cache.
//
// Calling convention: a CallFrame's base slot is the callee's own
// stack slot (not base+1, clox-style) so a receiver written there by
// class construction or bound-method dispatch lands exactly where the
// callee's local slot 0 expects it. Every call — a plain `Call`
// opcode, a bound-method invocation, a `$get_index`/`$set_index`
// dispatch, or `$init` during construction — funnels through
// pushClosureFrame/invokeNative in call.go so the interpreter
// never recurses into a nested Go loop to "wait" for a result: a
// Closure callee just gets a frame pushed and this loop's next
// iteration naturally continues inside it.
package vm

import (
	"fmt"

	"github.com/dolthub/swiss"
	"github.com/pkg/errors"

	"github.com/kristofer/voxl/pkg/alloc"
	"github.com/kristofer/voxl/pkg/bytecode"
	"github.com/kristofer/voxl/pkg/hashtable"
	"github.com/kristofer/voxl/pkg/reporter"
	"github.com/kristofer/voxl/pkg/value"
)

// Config carries the stack-size tunables §4.8.a documents as
// Config-overridable.
type Config struct {
	ValueStackSize   int // default 1024
	CallStackSize    int // default 256
	HandlerStackSize int // default 64
}

// DefaultConfig matches original_source's fixed-array defaults.
func DefaultConfig() Config {
	return Config{ValueStackSize: 1024, CallStackSize: 256, HandlerStackSize: 64}
}

// CallFrame is one live invocation: a Closure, its instruction
// pointer, and the stack window it owns (Glossary: CallFrame).
type CallFrame struct {
	closure *value.Obj // Closure Obj
	ip      int
	base    int // == the callee's own stack slot

	// returnOverrideSlot, when >= 0, is an absolute stack slot whose
	// value replaces whatever this frame's Return would normally push
	// — used for $init (override = base, i.e. the constructed
	// receiver) and $set_index (override = the original value operand,
	// so the assignment reads back as that value regardless of what
	// $set_index itself returns).
	returnOverrideSlot int
}

// handler is one entry of the exception-handler stack pushed by
// TryBegin (Glossary: Handler).
type handler struct {
	stackTop   int
	pc         int
	frameIndex int
}

// ModuleResolver is the external collaborator (§6) that turns an
// import path into source text. The core never touches the
// filesystem directly.
type ModuleResolver interface {
	// Resolve returns src and a display filename for path, or ok=false
	// if no such module exists.
	Resolve(path, workDir string) (src string, filename string, ok bool)
}

// VM is voxl's interpreter. One VM owns one Allocator, one global
// module cache, and one builtins/globals namespace per loaded module
// (§5: two concurrent VMs are unsupported, this type is not
// goroutine-safe).
type VM struct {
	a   *alloc.Allocator
	rep reporter.Reporter

	stack []value.Value
	sp    int

	frames []CallFrame

	handlers []handler

	modules *swiss.Map[string, *value.Obj] // import path -> Module
	builtin *value.Obj                     // synthetic Module holding the builtin namespace

	resolver ModuleResolver
	workDir  string

	// core error classes the interpreter itself raises.
	typeErrorClass     *value.Obj
	nameErrorClass     *value.Obj
	stopIterationClass *value.Obj

	// frequently-used interned strings, precomputed once (§4.8).
	sInit      *value.Obj
	sAdd       *value.Obj
	sSub       *value.Obj
	sMul       *value.Obj
	sDiv       *value.Obj
	sMod       *value.Obj
	sLt        *value.Obj
	sLe        *value.Obj
	sGt        *value.Obj
	sGe        *value.Obj
	sGetIndex  *value.Obj
	sSetIndex  *value.Obj
	sStr       *value.Obj
	sHash      *value.Obj
	sIter      *value.Obj
	sNext      *value.Obj

	markHandle alloc.MarkingHandle
}

const maxModulePathDepth = 64 // caps how many modules one VM caches; import cycles are broken by the cache itself

// New creates a VM backed by a (already constructed) Allocator and
// wires its GC root-marking function (§4.5: "The VM ... registers
// one.").
func New(a *alloc.Allocator, rep reporter.Reporter, resolver ModuleResolver, workDir string, cfg Config) *VM {
	if cfg.ValueStackSize <= 0 {
		cfg = DefaultConfig()
	}
	vm := &VM{
		a:        a,
		rep:      rep,
		resolver: resolver,
		workDir:  workDir,
		stack:    make([]value.Value, cfg.ValueStackSize),
		frames:   make([]CallFrame, 0, cfg.CallStackSize),
		handlers: make([]handler, 0, cfg.HandlerStackSize),
		modules:  swiss.NewMap[string, *value.Obj](8),
	}
	vm.sInit = a.InternString("$init")
	vm.sAdd = a.InternString("$add")
	vm.sSub = a.InternString("$sub")
	vm.sMul = a.InternString("$mul")
	vm.sDiv = a.InternString("$div")
	vm.sMod = a.InternString("$mod")
	vm.sLt = a.InternString("$lt")
	vm.sLe = a.InternString("$le")
	vm.sGt = a.InternString("$gt")
	vm.sGe = a.InternString("$ge")
	vm.sGetIndex = a.InternString("$get_index")
	vm.sSetIndex = a.InternString("$set_index")
	vm.sStr = a.InternString("$str")
	vm.sHash = a.InternString("$hash")
	vm.sIter = a.InternString("$iter")
	vm.sNext = a.InternString("$next")

	vm.builtin = a.NewModule("<builtin>")
	vm.builtin.Loaded = true
	vm.installCoreErrorClasses()

	vm.markHandle = a.RegisterMarkingFunction(vm.markRoots)
	return vm
}

// Close releases the VM's GC root registration. Callers that create a
// VM for the lifetime of a process don't need to call this; it exists
// for tests and embedders that run many short-lived VMs against one
// Allocator.
func (vm *VM) Close() { vm.markHandle.Unregister() }

// Builtins returns the synthetic module new modules' globals are
// seeded from, so pkg/builtins (or a driver) can install native
// classes/functions into it before any script runs.
func (vm *VM) Builtins() *value.Obj { return vm.builtin }

// markRoots is the MarkFn the VM registers with the Allocator: every
// live Value the interpreter itself holds outside the heap (the value
// stack, pending call frames' closures, the module cache, and the
// core error classes) must be reported or the GC would collect live
// data out from under a running program.
func (vm *VM) markRoots(addValue func(value.Value), addObj func(*value.Obj)) {
	for i := 0; i < vm.sp; i++ {
		addValue(vm.stack[i])
	}
	for _, f := range vm.frames {
		addObj(f.closure)
	}
	addObj(vm.builtin)
	addObj(vm.typeErrorClass)
	addObj(vm.nameErrorClass)
	addObj(vm.stopIterationClass)
	vm.modules.Iter(func(_ string, m *value.Obj) bool {
		addObj(m)
		return true
	})
}

func (vm *VM) push(v value.Value) { vm.stack[vm.sp] = v; vm.sp++ }
func (vm *VM) pop() value.Value   { vm.sp--; return vm.stack[vm.sp] }
func (vm *VM) peek(depth int) value.Value { return vm.stack[vm.sp-1-depth] }

// errControlTransfer is returned by throwValue when it successfully
// found and jumped to a handler: the instruction that triggered it is
// abandoned and the main loop simply re-fetches from the (now
// relocated) current frame. It is never returned to a caller outside
// this package.
var errControlTransfer = errors.New("vm: control transferred to handler")

// UncaughtError wraps a voxl exception Value that propagated past
// every handler (§7 kind 4's terminal case). The driver prints it and
// exits non-zero; it is not itself catchable.
type UncaughtError struct {
	Value value.Value
	Trace *Trace
}

func (e *UncaughtError) Error() string {
	return fmt.Sprintf("uncaught exception: %s", e.Value.String())
}

// Run compiles and executes src as the program's entry module.
// filename is used for diagnostics and as the module's cache key.
func (vm *VM) Run(src, filename string) (value.Value, error) {
	mod, fn, err := vm.loadModule(filename, src, filename)
	if err != nil {
		return value.NullVal(), err
	}
	return vm.execModule(mod, fn)
}

// execModule runs a module's top-level Function to completion,
// returning its final (always null) result or a propagated error.
func (vm *VM) execModule(mod *value.Obj, fn *value.Obj) (value.Value, error) {
	closure := vm.a.NewClosure(fn, fn.UpvalueCount)
	base := vm.sp
	vm.push(value.ObjVal(closure))
	stopDepth := len(vm.frames)
	vm.frames = append(vm.frames, CallFrame{closure: closure, base: base, returnOverrideSlot: -1})
	result, err := vm.run(stopDepth)
	return result, err
}

// run is the interpreter's core loop. It executes instructions until
// the call-frame stack unwinds back to stopDepth (normal return) or a
// propagating error (fatal, or uncaught exception) occurs.
func (vm *VM) run(stopDepth int) (value.Value, error) {
	for {
		if len(vm.frames) <= stopDepth {
			if vm.sp == 0 {
				return value.NullVal(), nil
			}
			return vm.pop(), nil
		}
		err := vm.step()
		if err != nil {
			if err == errControlTransfer {
				continue
			}
			return value.NullVal(), err
		}
	}
}

// step decodes and executes exactly one instruction in the
// topmost call frame.
func (vm *VM) step() error {
	frame := &vm.frames[len(vm.frames)-1]
	chunk := frame.closure.Function.Chunk
	code := chunk.Code
	op := bytecode.Op(code[frame.ip])
	line := chunk.Lines[frame.ip]
	frame.ip++

	readU32 := func() uint32 {
		v := chunk.ReadU32(frame.ip)
		frame.ip += 4
		return v
	}

	switch op {
	case bytecode.GetConstant:
		idx := readU32()
		vm.push(chunk.Constants[idx].(value.Value))
	case bytecode.GetLocal:
		slot := int(readU32())
		vm.push(vm.stack[frame.base+slot])
	case bytecode.SetLocal:
		slot := int(readU32())
		vm.stack[frame.base+slot] = vm.peek(0)
	case bytecode.CreateGlobal:
		idx := readU32()
		name := chunk.Constants[idx].(value.Value).AsObj()
		frame.closure.Function.Module.Globals.Set(value.StringKey{Obj: name}, vm.pop())
	case bytecode.GetGlobal:
		idx := readU32()
		name := chunk.Constants[idx].(value.Value).AsObj()
		v, ok := frame.closure.Function.Module.Globals.Get(value.StringKey{Obj: name})
		if !ok {
			v, ok = vm.builtin.Globals.Get(value.StringKey{Obj: name})
		}
		if !ok {
			return vm.raiseNameError(fmt.Sprintf("undefined name %q", name.Chars))
		}
		vm.push(v)
	case bytecode.SetGlobal:
		idx := readU32()
		name := chunk.Constants[idx].(value.Value).AsObj()
		g := frame.closure.Function.Module.Globals
		key := value.StringKey{Obj: name}
		if !g.Has(key) {
			return vm.raiseNameError(fmt.Sprintf("undefined name %q", name.Chars))
		}
		g.Set(key, vm.peek(0))
	case bytecode.GetUpvalue:
		idx := int(readU32())
		vm.push(frame.closure.Upvalues[idx].Get())
	case bytecode.SetUpvalue:
		idx := int(readU32())
		frame.closure.Upvalues[idx].Set(vm.peek(0))
	case bytecode.GetField:
		idx := readU32()
		name := chunk.Constants[idx].(value.Value).AsObj()
		receiver := vm.pop()
		v, err := vm.getField(receiver, name)
		if err != nil {
			return err
		}
		vm.push(v)
	case bytecode.SetField:
		idx := readU32()
		name := chunk.Constants[idx].(value.Value).AsObj()
		v := vm.pop()
		receiver := vm.pop()
		if err := vm.setField(receiver, name, v); err != nil {
			return err
		}
		vm.push(v)
	case bytecode.StoreMethod:
		idx := readU32()
		name := chunk.Constants[idx].(value.Value).AsObj()
		method := vm.pop()
		class := vm.peek(0).AsObj()
		class.Methods.Set(value.StringKey{Obj: name}, method)
	case bytecode.GetIndex:
		return vm.execGetIndex()
	case bytecode.SetIndex:
		return vm.execSetIndex()
	case bytecode.LoadNull:
		vm.push(value.NullVal())
	case bytecode.LoadTrue:
		vm.push(value.BoolVal(true))
	case bytecode.LoadFalse:
		vm.push(value.BoolVal(false))
	case bytecode.CreateClass:
		nameVal := vm.pop()
		name := nameVal.AsObj()
		vm.push(value.ObjVal(vm.a.NewClass(name, 0)))
	case bytecode.Inherit:
		super := vm.pop()
		if !super.IsObj(value.ClassObj) {
			return vm.raiseTypeError("superclass must be a class")
		}
		vm.peek(0).AsObj().Super = super.AsObj()
	case bytecode.Closure:
		return vm.execClosure(frame, chunk)
	case bytecode.Jump:
		target := int(readU32())
		frame.ip = target
	case bytecode.JumpIfTrue:
		target := int(readU32())
		if vm.peek(0).Truthy() {
			frame.ip = target
		}
	case bytecode.JumpIfFalse:
		target := int(readU32())
		if !vm.peek(0).Truthy() {
			frame.ip = target
		}
	case bytecode.JumpIfFalseAndPop:
		target := int(readU32())
		if !vm.pop().Truthy() {
			frame.ip = target
		}
	case bytecode.JumpBack:
		target := int(readU32())
		frame.ip = target
	case bytecode.Call:
		argCount := int(readU32())
		calleeSlot := vm.sp - argCount - 1
		return vm.callValue(calleeSlot, argCount)
	case bytecode.Return:
		return vm.execReturn(frame)
	case bytecode.TryBegin:
		target := int(readU32())
		vm.handlers = append(vm.handlers, handler{stackTop: vm.sp, pc: target, frameIndex: len(vm.frames) - 1})
	case bytecode.TryEnd:
		vm.handlers = vm.handlers[:len(vm.handlers)-1]
	case bytecode.FinallyBegin, bytecode.FinallyEnd:
		// Never emitted by the compiler (finally blocks are inlined at
		// every exit point instead, see compileTry); kept so the
		// disassembler and a future lowering can recognize the opcode.
	case bytecode.Throw:
		return vm.throwValue(vm.pop())
	case bytecode.Rethrow:
		return vm.throwValue(vm.pop())
	case bytecode.CloseUpvalue:
		slot := int(code[frame.ip])
		frame.ip++
		vm.a.CloseUpvaluesFrom(frame.base + slot)
	case bytecode.MatchClass:
		idx := readU32()
		name := chunk.Constants[idx].(value.Value).AsObj()
		v := vm.pop()
		vm.push(value.BoolVal(vm.matchesClass(v, name.Chars)))
	case bytecode.PopStack:
		vm.sp--
	case bytecode.CloneTop:
		vm.push(vm.peek(0))
	case bytecode.Import:
		idx := readU32()
		path := chunk.Constants[idx].(value.Value).AsObj().Chars
		mod, err := vm.importModule(path)
		if err != nil {
			return err
		}
		vm.push(value.ObjVal(mod))
	case bytecode.ModuleSetLoaded:
		frame.closure.Function.Module.Loaded = true
	case bytecode.ModuleImportAllToGlobalNamespace:
		mod := vm.pop().AsObj()
		dst := frame.closure.Function.Module.Globals
		mod.Globals.Each(func(k hashtable.Key, v value.Value) bool {
			dst.Set(k, v)
			return true
		})
	default:
		return vm.binaryOrUnary(op, line)
	}
	return nil
}
