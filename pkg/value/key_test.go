package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringKeyIdentityEquality(t *testing.T) {
	a := &Obj{Kind: StringObj, Chars: "x", Hash: 123}
	b := &Obj{Kind: StringObj, Chars: "x", Hash: 123}
	assert.True(t, StringKey{a}.Equal(StringKey{a}))
	assert.False(t, StringKey{a}.Equal(StringKey{b}))
	assert.Equal(t, uint64(123), StringKey{a}.Hash())
}

func TestValueKeyNumericEquality(t *testing.T) {
	k1 := ValueKey{IntVal(5)}
	k2 := ValueKey{FloatVal(5.0)}
	assert.True(t, k1.Equal(k2))
}

func TestValueKeyDistinctObjectsDiffer(t *testing.T) {
	a := ValueKey{ObjVal(&Obj{Kind: InstanceObj})}
	b := ValueKey{ObjVal(&Obj{Kind: InstanceObj})}
	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(a))
}
