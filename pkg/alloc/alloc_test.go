package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/voxl/pkg/value"
)

func TestInternStringReturnsSamePointer(t *testing.T) {
	a := New(DefaultConfig())
	s1 := a.InternString("hello")
	s2 := a.InternString("hello")
	assert.Same(t, s1, s2)
}

func TestInternStringDistinctContents(t *testing.T) {
	a := New(DefaultConfig())
	s1 := a.InternString("a")
	s2 := a.InternString("b")
	assert.NotSame(t, s1, s2)
}

func TestNewInstanceHasEmptyFields(t *testing.T) {
	a := New(DefaultConfig())
	cls := a.NewClass(a.InternString("Foo"), 0)
	inst := a.NewInstance(cls)
	require.NotNil(t, inst.Fields)
	assert.Equal(t, 0, inst.Fields.Len())
}

func TestOpenUpvalueOrderingDescending(t *testing.T) {
	a := New(DefaultConfig())
	v1, v2, v3 := value.IntVal(1), value.IntVal(2), value.IntVal(3)
	a.NewOpenUpvalue(2, &v2)
	a.NewOpenUpvalue(5, &v1)
	a.NewOpenUpvalue(1, &v3)

	require.Len(t, a.openUpvalues, 3)
	assert.Equal(t, 5, a.openUpvalues[0].OpenSlot)
	assert.Equal(t, 2, a.openUpvalues[1].OpenSlot)
	assert.Equal(t, 1, a.openUpvalues[2].OpenSlot)
}

func TestCloseUpvaluesFromClosesPrefixAndKeepsRest(t *testing.T) {
	a := New(DefaultConfig())
	s1, s2, s3 := value.IntVal(10), value.IntVal(20), value.IntVal(30)
	u1 := a.NewOpenUpvalue(1, &s1)
	u2 := a.NewOpenUpvalue(3, &s2)
	u3 := a.NewOpenUpvalue(5, &s3)

	a.CloseUpvaluesFrom(3)

	assert.False(t, u2.Open)
	assert.False(t, u3.Open)
	assert.True(t, u1.Open)
	assert.Len(t, a.openUpvalues, 1)
	assert.Equal(t, int64(10), u1.Get().AsInt())
}

func TestRunGCSweepsUnreachableAndKeepsRooted(t *testing.T) {
	a := New(DefaultConfig())
	rootCls := a.NewClass(a.InternString("Kept"), 0)
	garbage := a.NewClass(a.InternString("Garbage"), 0) // never rooted

	handle := a.RegisterMarkingFunction(func(addValue func(value.Value), addObj func(*value.Obj)) {
		addObj(rootCls)
	})
	defer handle.Unregister()

	a.RunGC()

	found, garbageFound := false, false
	for o := a.head; o != nil; o = o.Next {
		if o == rootCls {
			found = true
		}
		if o == garbage {
			garbageFound = true
		}
	}
	assert.True(t, found, "rooted class should survive GC")
	assert.False(t, garbageFound, "unrooted class should be swept")
}

func TestPinLocalKeepsObjAliveAcrossGC(t *testing.T) {
	a := New(DefaultConfig())
	s := a.InternString("pinned") // interning alone isn't a root
	a.PinLocal(value.ObjVal(s))

	a.RunGC()

	v, ok := func() (*value.Obj, bool) {
		for o := a.head; o != nil; o = o.Next {
			if o == s {
				return o, true
			}
		}
		return nil, false
	}()
	assert.True(t, ok)
	assert.Same(t, s, v)
}

func TestConstantPoolAddAndFetch(t *testing.T) {
	a := New(DefaultConfig())
	idx := a.AddConstant(value.IntVal(42))
	assert.Equal(t, int64(42), a.Constant(idx).AsInt())
}

func TestGCThresholdGrowsByGrowthFactor(t *testing.T) {
	a := New(Config{GrowthFactor: 2, MinThreshold: 100})
	s := a.InternString("x") // 65 bytes, under the threshold: no GC yet
	a.PinLocal(value.ObjVal(s))
	a.RunGC()
	// The one survivor counts objBaseSize (64) bytes; 64*2 = 128 >= 100.
	assert.Equal(t, int64(128), a.gcThreshold)
}
