package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruthy(t *testing.T) {
	assert.False(t, NullVal().Truthy())
	assert.False(t, BoolVal(false).Truthy())
	assert.True(t, BoolVal(true).Truthy())
	assert.True(t, IntVal(0).Truthy())
	assert.True(t, FloatVal(0).Truthy())
}

func TestEqualsNumericCrossPromotion(t *testing.T) {
	assert.True(t, IntVal(2).Equals(FloatVal(2.0)))
	assert.True(t, FloatVal(2.0).Equals(IntVal(2)))
	assert.False(t, IntVal(2).Equals(FloatVal(2.5)))
}

func TestEqualsStringNeverEqualsNumber(t *testing.T) {
	s := &Obj{Kind: StringObj, Chars: "2"}
	assert.False(t, ObjVal(s).Equals(IntVal(2)))
	assert.False(t, IntVal(2).Equals(ObjVal(s)))
}

func TestEqualsObjIdentity(t *testing.T) {
	a := &Obj{Kind: InstanceObj}
	b := &Obj{Kind: InstanceObj}
	assert.True(t, ObjVal(a).Equals(ObjVal(a)))
	assert.False(t, ObjVal(a).Equals(ObjVal(b)))
}

func TestEqualsInternedStringsByIdentity(t *testing.T) {
	// Invariant 1: exactly one String Obj per byte sequence — so two
	// distinct Obj pointers with the same Chars are NOT equal here;
	// interning happens in the allocator, not in Value.Equals.
	a := &Obj{Kind: StringObj, Chars: "hi"}
	b := &Obj{Kind: StringObj, Chars: "hi"}
	assert.False(t, ObjVal(a).Equals(ObjVal(b)))
	assert.True(t, ObjVal(a).Equals(ObjVal(a)))
}

func TestStringFormatting(t *testing.T) {
	assert.Equal(t, "3", IntVal(3).String())
	assert.Equal(t, "true", BoolVal(true).String())
	assert.Equal(t, "null", NullVal().String())
}

func TestUpvalueOpenCloseRoundTrip(t *testing.T) {
	slot := IntVal(42)
	up := &Obj{Kind: UpvalueObj}
	up.OpenUpvalue(3, &slot)
	assert.True(t, up.Open)
	assert.Equal(t, int64(42), up.Get().AsInt())

	slot = IntVal(99)
	assert.Equal(t, int64(99), up.Get().AsInt(), "open upvalue reads through to live stack slot")

	up.Close()
	assert.False(t, up.Open)
	assert.Equal(t, int64(99), up.Get().AsInt(), "closed upvalue retains last stack value")

	up.Set(IntVal(7))
	assert.Equal(t, int64(7), up.Closed.AsInt())
}

func TestIsObjKindCheck(t *testing.T) {
	s := ObjVal(&Obj{Kind: StringObj})
	assert.True(t, s.IsObj(StringObj))
	assert.False(t, s.IsObj(ClassObj))
	assert.False(t, IntVal(1).IsObj(StringObj))
}
