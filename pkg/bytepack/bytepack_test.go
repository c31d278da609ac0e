package bytepack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestReaderPrimitives(t *testing.T) {
	w := NewWriter()
	w.WriteUint8(0xAB)
	w.WriteUint16(0x1234)
	w.WriteUint32(0xDEADBEEF)
	w.WriteUint64(0x0102030405060708)
	w.WriteInt32(-42)
	w.WriteFloat32(1.5)
	w.WriteBool(true)
	w.WriteBool(false)

	r := NewReader(w.Bytes())

	u8, err := r.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xAB), u8)

	u16, err := r.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u32)

	u64, err := r.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), u64)

	i32, err := r.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(-42), i32)

	f32, err := r.ReadFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f32)

	b, err := r.ReadBool()
	require.NoError(t, err)
	assert.True(t, b)

	b, err = r.ReadBool()
	require.NoError(t, err)
	assert.False(t, b)

	assert.Zero(t, r.Remaining())
}

func TestReaderLittleEndian(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04})

	v, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x04030201), v)
}

func TestReaderBufferExhausted(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})

	_, err := r.ReadUint32()
	assert.ErrorIs(t, err, ErrBufferExhausted)

	// A failed read does not advance the cursor
	v, err := r.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0201), v)

	_, err = r.ReadUint8()
	assert.ErrorIs(t, err, ErrBufferExhausted)
}

func TestReaderCString(t *testing.T) {
	r := NewReader([]byte("hello\x00world\x00"))

	s, err := r.ReadCString()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	s, err = r.ReadCString()
	require.NoError(t, err)
	assert.Equal(t, "world", s)
}

func TestReaderCStringUnterminated(t *testing.T) {
	r := NewReader([]byte("no terminator"))

	_, err := r.ReadCString()
	assert.ErrorIs(t, err, ErrBufferExhausted)
}

func TestReaderCStringDecoding(t *testing.T) {
	// "café" in Windows-1252
	r := NewReaderWith([]byte{'c', 'a', 'f', 0xE9, 0x00}, charmap.Windows1252.NewDecoder())

	s, err := r.ReadCString()
	require.NoError(t, err)
	assert.Equal(t, "café", s)
}

func TestReaderPeekAndReadAll(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4})

	assert.Equal(t, []byte{1, 2}, r.Peek(2))
	assert.Equal(t, []byte{1, 2, 3, 4}, r.Peek(10))
	assert.Equal(t, 0, r.Pos())

	_, err := r.Read(1)
	require.NoError(t, err)

	assert.Equal(t, []byte{2, 3, 4}, r.ReadAll())
	assert.Zero(t, r.Remaining())
	assert.Empty(t, r.ReadAll())
}

func TestWriterCString(t *testing.T) {
	w := NewWriter()
	w.WriteCString("abc")
	w.WriteCString("")

	assert.Equal(t, []byte{'a', 'b', 'c', 0, 0}, w.Bytes())
	assert.Equal(t, 5, w.Len())
}
