package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeysUTF16(t *testing.T) {
	// U+10000 encodes as a surrogate pair (0xD800...) and so sorts before
	// U+E000 in UTF-16, the reverse of UTF-8 byte order.
	obj := Object{"": Int(2), "\U00010000": Int(1)}
	data, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":1,\"\":2}", string(data))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	data, err := MarshalCanonical(String("<a&b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a&b>"`, string(data))
}

func TestKey_NFCNormalises(t *testing.T) {
	composed := String("é")
	decomposed := String("é")
	assert.Equal(t, Key(composed), Key(decomposed))
	assert.True(t, Equal(composed, decomposed))
}

func TestKey_NullAndNested(t *testing.T) {
	assert.Equal(t, "null", Key(Null{}))
	assert.Equal(t, `[1,"x",{"k":true}]`, Key(List{Int(1), String("x"), Object{"k": Bool(true)}}))
}

func TestKey_InvalidUTF8StaysDistinct(t *testing.T) {
	a, b := String("\xff"), String("\xfe")
	assert.NotEqual(t, Key(a), Key(b))
	assert.NotEqual(t, Key(a), Key(String("\uFFFD")))
	assert.False(t, Equal(a, b))

	_, err := MarshalCanonical(a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UTF-8")
}
