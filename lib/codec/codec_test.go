package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfer(t *testing.T) {
	v := Infer(LongToBytes(42))
	assert.Equal(t, KindInt, v.Kind())
	assert.Equal(t, int64(42), v.Wire())

	v = Infer([]byte("abc"))
	assert.Equal(t, KindBytes, v.Kind())
	assert.Equal(t, []byte("abc"), v.Wire())

	// nine bytes are never a number
	v = Infer([]byte("123456789"))
	assert.Equal(t, KindBytes, v.Kind())
}

func TestExplicitTagWins(t *testing.T) {
	// an eight character string stays a string when tagged as one
	v := String("abcdefgh")
	assert.Equal(t, KindString, v.Kind())
	assert.Equal(t, "abcdefgh", v.Wire())
}

func TestLongBytesRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 1 << 40, -(1 << 62)} {
		assert.Equal(t, n, BytesToLong(LongToBytes(n)))
	}
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 1, 0}, LongToBytes(256))
	assert.Equal(t, int64(258), BytesToLong([]byte{1, 2}))
}

func TestDecode(t *testing.T) {
	v, err := Decode(KindBytes, []byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, KindBytes, v.Kind())

	v, err = Decode(KindInt, int64(7))
	require.NoError(t, err)
	assert.True(t, v.Equal(Int(7)))

	v, err = Decode(KindString, "x")
	require.NoError(t, err)
	assert.True(t, v.Equal(String("x")))

	// null is "no value", never an error
	for _, k := range []Kind{KindBytes, KindInt, KindString} {
		v, err = Decode(k, nil)
		require.NoError(t, err)
		assert.True(t, v.IsNull())
	}

	_, err = Decode(KindInt, []byte{1})
	assert.Error(t, err)
}

func TestInt64(t *testing.T) {
	n, err := Int(5).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = Bytes(LongToBytes(9)).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	n, err = String("12").Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	_, err = String("twelve").Int64()
	assert.Error(t, err)
	_, err = Null().Int64()
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Int(2).Compare(Int(10)))
	assert.Equal(t, 1, String("2").Compare(String("10")))
	assert.Equal(t, 0, Bytes([]byte("a")).Compare(Bytes([]byte("a"))))
	assert.Equal(t, -1, Null().Compare(String("")))
}

func TestFieldsEqual(t *testing.T) {
	a := Fields{"a": String("1"), "b": Int(2)}
	b := a.Clone()
	assert.True(t, a.Equal(b))
	b["c"] = Null()
	assert.False(t, a.Equal(b))
	assert.False(t, String("").Equal(Null()))
}

func TestDecodeBytesFromText(t *testing.T) {
	v, err := Decode(KindBytes, "done")
	require.NoError(t, err)
	assert.Equal(t, []byte("done"), v.Raw())

	_, err = Decode(KindBytes, int64(1))
	assert.Error(t, err)
}
