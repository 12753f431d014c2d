// Package scale decodes the fixed-width SCALE primitives read from chain storage.
// SCALE encodes fixed-width integers little-endian with no length prefix.
package scale

import (
	"encoding/binary"

	"github.com/Layr-Labs/storage-locator/pkg/chainErrors"
)

// DecodeU16 decodes a SCALE u16. Trailing bytes are ignored.
func DecodeU16(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, chainErrors.DecodeFailure("u16 needs 2 bytes, got %d", len(data))
	}
	return binary.LittleEndian.Uint16(data), nil
}

// DecodeU32 decodes a SCALE u32. Trailing bytes are ignored.
func DecodeU32(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, chainErrors.DecodeFailure("u32 needs 4 bytes, got %d", len(data))
	}
	return binary.LittleEndian.Uint32(data), nil
}

// DecodeU64 decodes a SCALE u64. Trailing bytes are ignored.
func DecodeU64(data []byte) (uint64, error) {
	if len(data) < 8 {
		return 0, chainErrors.DecodeFailure("u64 needs 8 bytes, got %d", len(data))
	}
	return binary.LittleEndian.Uint64(data), nil
}

// EncodeU16 is the inverse of DecodeU16.
func EncodeU16(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}

// EncodeU32 is the inverse of DecodeU32.
func EncodeU32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

// EncodeU64 is the inverse of DecodeU64.
func EncodeU64(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}
