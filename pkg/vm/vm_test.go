package vm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/voxl/pkg/alloc"
	"github.com/kristofer/voxl/pkg/reporter"
	"github.com/kristofer/voxl/pkg/value"
)

// testRangeState is a trimmed stand-in for pkg/builtins' rangeState:
// just enough of a Range iterator for loop-desugaring tests below to
// drive without importing pkg/builtins (which itself imports pkg/vm).
type testRangeState struct{ cur, hi int64 }

// installTestRange registers a minimal Range class and `range(lo,hi)`
// constructor, mirroring pkg/builtins/range.go's installRange closely
// enough to exercise the same `$iter`/`$next`/StopIteration protocol
// the for-loop's desugaring (pkg/parser/parser.go's parseFor) expects.
func installTestRange(a *alloc.Allocator, v *VM) {
	rangeClass := a.NewClass(a.InternString("Range"), 1)
	rangeClass.Methods.Set(value.StringKey{Obj: a.InternString("$iter")}, value.ObjVal(
		a.NewNativeFunction(a.InternString("$iter"), 0, func(ctx value.NativeContext) (value.Value, error) {
			return ctx.Self(), nil
		}, nil)))
	rangeClass.Methods.Set(value.StringKey{Obj: a.InternString("$next")}, value.ObjVal(
		a.NewNativeFunction(a.InternString("$next"), 0, func(ctx value.NativeContext) (value.Value, error) {
			st := ctx.Self().AsObj().NatCtx.(*testRangeState)
			if st.cur >= st.hi {
				return value.Value{}, ctx.Throw("StopIteration", "")
			}
			n := st.cur
			st.cur++
			return value.IntVal(n), nil
		}, nil)))
	v.Builtins().Globals.Set(value.StringKey{Obj: a.InternString("range")}, value.ObjVal(
		a.NewNativeFunction(a.InternString("range"), 2, func(ctx value.NativeContext) (value.Value, error) {
			lo, hi := ctx.Arg(0).AsInt(), ctx.Arg(1).AsInt()
			r := ctx.Heap().NewNativeInstance(rangeClass, nil)
			r.NatCtx = &testRangeState{cur: lo, hi: hi}
			return value.ObjVal(r), nil
		}, nil)))
}

// newTestVM builds a VM with a native `put` and a trimmed `range`
// installed into its builtin namespace, writing every `put` argument's
// String() to out — just enough of §4.9's surface for these
// package-level tests to observe program behavior without importing
// pkg/builtins (which itself imports pkg/vm).
func newTestVM(t *testing.T, out *strings.Builder) *VM {
	t.Helper()
	a := alloc.New(alloc.DefaultConfig())
	v := New(a, reporter.Discard{}, nil, "", DefaultConfig())
	put := a.NewNativeFunction(a.InternString("put"), -1, func(ctx value.NativeContext) (value.Value, error) {
		for i := 0; i < ctx.NumArgs(); i++ {
			out.WriteString(ctx.Arg(i).String())
		}
		return value.NullVal(), nil
	}, nil)
	v.Builtins().Globals.Set(value.StringKey{Obj: a.InternString("put")}, value.ObjVal(put))
	installTestRange(a, v)
	return v
}

func run(t *testing.T, src string) (string, error) {
	t.Helper()
	var out strings.Builder
	v := newTestVM(t, &out)
	_, err := v.Run(src, "<test>")
	return out.String(), err
}

func TestRangeLoop(t *testing.T) {
	out, err := run(t, `for i in range(0,10) { put(i); }`)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", out)
}

func TestBlockScoping(t *testing.T) {
	out, err := run(t, `x : 1; { x : 10; put(x); } put(x);`)
	require.NoError(t, err)
	assert.Equal(t, "101", out)
}

func TestTryCatchFinally(t *testing.T) {
	out, err := run(t, `fn f() { try { throw 1; } catch -> v { put("c"); } finally { put("f"); } } f();`)
	require.NoError(t, err)
	assert.Equal(t, "cf", out)
}

func TestClosureCapturesByReference(t *testing.T) {
	out, err := run(t, `fn make() { x : 0; ret || { x = x + 1; ret x; }; } c : make(); put(c()); put(c()); put(c());`)
	require.NoError(t, err)
	assert.Equal(t, "123", out)
}

func TestClassInitSetsField(t *testing.T) {
	out, err := run(t, `class P { fn $init($) { $.a = 1; } } p : P(); put(p.a);`)
	require.NoError(t, err)
	assert.Equal(t, "1", out)
}

func TestStringConcat(t *testing.T) {
	out, err := run(t, `put("ab" ++ "cd");`)
	require.NoError(t, err)
	assert.Equal(t, "abcd", out)
}

func TestUncaughtExceptionPropagates(t *testing.T) {
	_, err := run(t, `throw 42;`)
	require.Error(t, err)
	var uncaught *UncaughtError
	require.ErrorAs(t, err, &uncaught)
	assert.Equal(t, int64(42), uncaught.Value.AsInt())
}

func TestRethrowPropagatesToOuterHandler(t *testing.T) {
	out, err := run(t, `
		try {
			try { throw "inner"; } catch -> e { rethrow; }
		} catch -> e { put("outer"); }
	`)
	require.NoError(t, err)
	assert.Equal(t, "outer", out)
}

func TestArityMismatchRaisesTypeError(t *testing.T) {
	out, err := run(t, `
		fn f(a, b) { ret a + b; }
		try { f(1); } catch TypeError -> e { put("bad arity"); }
	`)
	require.NoError(t, err)
	assert.Equal(t, "bad arity", out)
}

func TestMultipleInstancesHaveIndependentFields(t *testing.T) {
	out, err := run(t, `
		class Counter {
			fn $init($) { $.n = 0; }
			fn bump($) { $.n = $.n + 1; ret $.n; }
		}
		a : Counter(); b : Counter();
		put(a.bump()); put(a.bump()); put(b.bump());
	`)
	require.NoError(t, err)
	assert.Equal(t, "121", out)
}

func TestOperatorMethodDispatch(t *testing.T) {
	out, err := run(t, `
		class Vec {
			fn $init($, x) { $.x = x; }
			fn $add($, other) { ret Vec($.x + other.x); }
			fn $str($) { ret "Vec"; }
		}
		v : Vec(1) + Vec(2);
		put(v.x);
	`)
	require.NoError(t, err)
	assert.Equal(t, "3", out)
}

func TestInheritanceDispatchesOverriddenMethod(t *testing.T) {
	out, err := run(t, `
		class Animal { fn speak($) { ret "..."; } }
		class Dog < Animal { fn speak($) { ret "woof"; } }
		d : Dog();
		put(d.speak());
	`)
	require.NoError(t, err)
	assert.Equal(t, "woof", out)
}

// fakeResolver hands a fixed set of in-memory sources to importModule,
// standing in for pkg/vm.ModuleResolver's filesystem-backed concrete
// implementation that lives in cmd/voxl.
type fakeResolver struct {
	sources map[string]string
}

func (r *fakeResolver) Resolve(path, workDir string) (string, string, bool) {
	src, ok := r.sources[path]
	return src, path, ok
}

func TestModuleImportSharesGlobalsAndCachesLoad(t *testing.T) {
	var out strings.Builder
	a := alloc.New(alloc.DefaultConfig())
	v := New(a, reporter.Discard{}, &fakeResolver{sources: map[string]string{
		"m": `counter : 0; fn bump() { counter = counter + 1; ret counter; }`,
	}}, "", DefaultConfig())
	put := a.NewNativeFunction(a.InternString("put"), -1, func(ctx value.NativeContext) (value.Value, error) {
		for i := 0; i < ctx.NumArgs(); i++ {
			out.WriteString(ctx.Arg(i).String())
		}
		return value.NullVal(), nil
	}, nil)
	v.Builtins().Globals.Set(value.StringKey{Obj: a.InternString("put")}, value.ObjVal(put))

	_, err := v.Run(`
		use "m" -> m;
		put(m.bump());
		use "m" -> m2;
		put(m2.bump());
	`, "<test>")
	require.NoError(t, err)
	assert.Equal(t, "12", out.String())
}

func TestHashMethodInvokedForInstanceDictKey(t *testing.T) {
	a := alloc.New(alloc.DefaultConfig())
	v := New(a, reporter.Discard{}, nil, "", DefaultConfig())

	var captured value.Value
	capture := a.NewNativeFunction(a.InternString("capture"), 1, func(ctx value.NativeContext) (value.Value, error) {
		captured = ctx.Arg(0)
		return value.NullVal(), nil
	}, nil)
	v.Builtins().Globals.Set(value.StringKey{Obj: a.InternString("capture")}, value.ObjVal(capture))

	_, err := v.Run(`
		class Box {
			fn $init($, v) { $.v = v; }
			fn $hash($) { ret $.v; }
		}
		capture(Box(7));
	`, "<test>")
	require.NoError(t, err)

	// Confirm VM.Hash (value.VMHost's contract, §4.9's "Dict requires
	// $hash on keys") actually invokes the user-defined $hash method.
	h, ok, err := v.Hash(captured)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), h)
}
