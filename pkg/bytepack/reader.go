// Package bytepack provides sequential little-endian readers and writers
// over byte buffers, used to decode and build binary protocol payloads.
package bytepack

import (
	"encoding/binary"
	"errors"
	"math"

	"golang.org/x/text/encoding"
)

// ErrBufferExhausted is returned when a read runs past the end of the buffer.
var ErrBufferExhausted = errors.New("buffer exhausted")

// Reader consumes a byte buffer sequentially. All multi-byte integers are
// read little-endian. Strings are decoded with the configured text decoder,
// raw bytes are treated as UTF-8 when no decoder is set.
type Reader struct {
	dec *encoding.Decoder
	buf []byte
	pos int
}

// NewReader creates a Reader over buf with no text decoder (UTF-8 strings).
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// NewReaderWith creates a Reader over buf using dec for string decoding.
// A nil decoder behaves like NewReader.
func NewReaderWith(buf []byte, dec *encoding.Decoder) *Reader {
	return &Reader{buf: buf, dec: dec}
}

// Pos returns the current read offset.
func (r *Reader) Pos() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Read returns the next n bytes and advances the cursor.
func (r *Reader) Read(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, ErrBufferExhausted
	}

	data := r.buf[r.pos : r.pos+n]
	r.pos += n

	return data, nil
}

// ReadAll returns every unread byte and advances the cursor to the end.
func (r *Reader) ReadAll() []byte {
	data := r.buf[r.pos:]
	r.pos = len(r.buf)

	return data
}

// Peek returns the next n bytes (or fewer, near the end) without advancing.
func (r *Reader) Peek(n int) []byte {
	if r.Remaining() < n {
		return r.buf[r.pos:]
	}

	return r.buf[r.pos : r.pos+n]
}

// ReadUint8 reads one unsigned byte.
func (r *Reader) ReadUint8() (uint8, error) {
	data, err := r.Read(1)
	if err != nil {
		return 0, err
	}

	return data[0], nil
}

// ReadInt8 reads one signed byte.
func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

// ReadUint16 reads a little-endian unsigned 16-bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	data, err := r.Read(2)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(data), nil
}

// ReadInt16 reads a little-endian signed 16-bit integer.
func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadUint32 reads a little-endian unsigned 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	data, err := r.Read(4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(data), nil
}

// ReadInt32 reads a little-endian signed 32-bit integer.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads a little-endian unsigned 64-bit integer.
func (r *Reader) ReadUint64() (uint64, error) {
	data, err := r.Read(8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(data), nil
}

// ReadFloat32 reads a little-endian IEEE 754 single-precision float.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}

	return math.Float32frombits(v), nil
}

// ReadBool reads one byte and reports whether it is non-zero.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	return v != 0, err
}

// ReadChar reads one byte and decodes it as a single-character string.
func (r *Reader) ReadChar() (string, error) {
	data, err := r.Read(1)
	if err != nil {
		return "", err
	}

	return r.decode(data)
}

// ReadCString reads bytes up to (and consuming) the next NUL terminator and
// decodes them as a string.
func (r *Reader) ReadCString() (string, error) {
	start := r.pos
	for {
		c, err := r.ReadUint8()
		if err != nil {
			return "", err
		}
		if c == 0 {
			break
		}
	}

	return r.decode(r.buf[start : r.pos-1])
}

func (r *Reader) decode(data []byte) (string, error) {
	if r.dec == nil {
		return string(data), nil
	}

	decoded, err := r.dec.Bytes(data)
	if err != nil {
		return "", err
	}

	return string(decoded), nil
}
