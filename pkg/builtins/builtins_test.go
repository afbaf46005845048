package builtins

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/kristofer/voxl/pkg/alloc"
	"github.com/kristofer/voxl/pkg/reporter"
	"github.com/kristofer/voxl/pkg/value"
	"github.com/kristofer/voxl/pkg/vm"
)

func run(t *testing.T, src string) (string, error) {
	t.Helper()
	a := alloc.New(alloc.DefaultConfig())
	v := vm.New(a, reporter.Discard{}, nil, "", vm.DefaultConfig())
	var out strings.Builder
	Install(v, &out)
	_, err := v.Run(src, "<test>")
	return out.String(), err
}

func TestListLiteralConstructsVariadically(t *testing.T) {
	out, err := run(t, `
		l : [1, 2, 3];
		put(len(l));
		put(" ");
		put(l.size);
	`)
	require.NoError(t, err)
	assert.Equal(t, "3 3", out)
}

func TestListIndexGetSet(t *testing.T) {
	out, err := run(t, `
		l : [10, 20, 30];
		l[1] = 99;
		put(l[0]); put(l[1]); put(l[2]);
	`)
	require.NoError(t, err)
	assert.Equal(t, "109930", out)
}

func TestListIndexOutOfRangeRaisesTypeError(t *testing.T) {
	out, err := run(t, `
		l : [1];
		try { put(l[5]); } catch TypeError -> e { put("oob"); }
	`)
	require.NoError(t, err)
	assert.Equal(t, "oob", out)
}

func TestListPushAndIterate(t *testing.T) {
	out, err := run(t, `
		l : [1, 2];
		l.push(3);
		for x in l { put(x); }
	`)
	require.NoError(t, err)
	assert.Equal(t, "123", out)
}

func TestDictLiteralSetIndexPerPair(t *testing.T) {
	out, err := run(t, `
		d : {"a": 1, "b": 2};
		put(d["a"]); put(d["b"]); put(d.size);
	`)
	require.NoError(t, err)
	assert.Equal(t, "122", out)
}

func TestDictMissingKeyRaisesNameError(t *testing.T) {
	out, err := run(t, `
		d : {};
		try { put(d["missing"]); } catch NameError -> e { put("missing"); }
	`)
	require.NoError(t, err)
	assert.Equal(t, "missing", out)
}

func TestDictRequiresHashableKey(t *testing.T) {
	out, err := run(t, `
		class NoHash { fn $init($) {} }
		d : {};
		try { d[NoHash()] = 1; } catch TypeError -> e { put("unhashable"); }
	`)
	require.NoError(t, err)
	assert.Equal(t, "unhashable", out)
}

func TestDictAcceptsInstanceKeyWithHash(t *testing.T) {
	out, err := run(t, `
		class Box {
			fn $init($, v) { $.v = v; }
			fn $hash($) { ret $.v; }
		}
		d : {};
		b : Box(1);
		d[b] = "one";
		put(d[b]);
	`)
	require.NoError(t, err)
	assert.Equal(t, "one", out)
}

// TestDictKeySnapshotIsDeterministicAfterSorting captures a Dict's
// backing dictData (bucketed by hash, so Go map iteration over
// dd.buckets is unspecified order) and confirms golang.org/x/exp/maps'
// Keys plus golang.org/x/exp/slices' Sort turn it into a stable
// snapshot suitable for assertion, since Dict itself makes no iteration
// order guarantee (§9).
func TestDictKeySnapshotIsDeterministicAfterSorting(t *testing.T) {
	a := alloc.New(alloc.DefaultConfig())
	v := vm.New(a, reporter.Discard{}, nil, "", vm.DefaultConfig())
	var out strings.Builder
	Install(v, &out)

	var captured value.Value
	capture := a.NewNativeFunction(a.InternString("capture"), 1, func(ctx value.NativeContext) (value.Value, error) {
		captured = ctx.Arg(0)
		return value.NullVal(), nil
	}, nil)
	v.Builtins().Globals.Set(value.StringKey{Obj: a.InternString("capture")}, value.ObjVal(capture))

	_, err := v.Run(`
		d : {};
		d["b"] = 1;
		d["a"] = 2;
		d["c"] = 3;
		capture(d);
	`, "<test>")
	require.NoError(t, err)

	dd := captured.AsObj().NatCtx.(*dictData)
	seen := make(map[string]bool, dd.size)
	for _, bucket := range dd.buckets {
		for _, e := range bucket {
			seen[e.key.String()] = true
		}
	}
	keys := maps.Keys(seen)
	slices.Sort(keys)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestRangeIsExclusiveOfUpperBound(t *testing.T) {
	out, err := run(t, `
		r : range(3, 6);
		for x in r { put(x); }
	`)
	require.NoError(t, err)
	assert.Equal(t, "345", out)
}

func TestLenSupportsStringListDict(t *testing.T) {
	out, err := run(t, `
		put(len("hello"));
		put(len([1,2,3,4]));
		put(len({"a":1}));
	`)
	require.NoError(t, err)
	assert.Equal(t, "541", out)
}

func TestNumericHelpers(t *testing.T) {
	out, err := run(t, `
		put(floor(1.9));
		put(" ");
		put(ceil(1.1));
		put(" ");
		put(sqrt(9.0));
	`)
	require.NoError(t, err)
	assert.Equal(t, "1 2 3", out)
}

func TestPutlnAddsNewline(t *testing.T) {
	out, err := run(t, `putln("x"); put("y");`)
	require.NoError(t, err)
	assert.Equal(t, "x\ny", out)
}
