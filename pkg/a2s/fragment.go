package a2s

import (
	"bytes"
	"compress/bzip2"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// fragmentHeaderSize is the fixed part of every multi-packet fragment:
// message id (4), fragment count (1), fragment id (1), split size (2).
const fragmentHeaderSize = 8

// compressedHeaderSize extends the fragment header with the decompressed
// size (4) and CRC32 (4) carried by bzip2-compressed messages.
const compressedHeaderSize = fragmentHeaderSize + 8

// fragment is one decoded piece of a multi-packet response. Fragments only
// live for the duration of one reassembly, they are never retained.
type fragment struct {
	payload   []byte
	messageID uint32
	splitSize uint16
	count     uint8
	id        uint8
}

// compressed reports whether the message this fragment belongs to is
// bzip2-compressed. The flag lives in bit 15 of the message id.
func (f *fragment) compressed() bool {
	return f.messageID&(1<<15) != 0
}

// decodeFragment parses one datagram body, everything after the 4-byte
// multi-packet marker, into a fragment. Compressed payloads are inflated
// and verified against the CRC32 declared on the wire.
func decodeFragment(data []byte) (*fragment, error) {
	if len(data) < fragmentHeaderSize {
		return nil, fmt.Errorf("%w: fragment too short (%d bytes)", ErrBrokenMessage, len(data))
	}

	frag := &fragment{
		messageID: binary.LittleEndian.Uint32(data[0:4]),
		count:     data[4],
		id:        data[5],
		splitSize: binary.LittleEndian.Uint16(data[6:8]),
	}

	if !frag.compressed() {
		frag.payload = data[fragmentHeaderSize:]
		return frag, nil
	}

	if len(data) < compressedHeaderSize {
		return nil, fmt.Errorf("%w: compressed fragment too short (%d bytes)", ErrBrokenMessage, len(data))
	}

	size := binary.LittleEndian.Uint32(data[8:12])
	crc := binary.LittleEndian.Uint32(data[12:16])

	payload, err := io.ReadAll(bzip2.NewReader(bytes.NewReader(data[compressedHeaderSize:])))
	if err != nil {
		return nil, fmt.Errorf("%w: bzip2 decompression failed: %v", ErrBrokenMessage, err)
	}

	if uint32(len(payload)) != size || crc32.ChecksumIEEE(payload) != crc {
		return nil, fmt.Errorf("%w: decompressed fragment does not match declared size or checksum", ErrBrokenMessage)
	}

	frag.payload = payload

	return frag, nil
}
