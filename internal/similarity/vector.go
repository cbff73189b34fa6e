package similarity

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeVector serialises a vector as a little-endian float32 blob for
// storage in a SQLite BLOB column.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector deserialises a little-endian float32 blob produced by
// EncodeVector. Returns an error if the blob length is not a multiple of 4.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("similarity: malformed vector blob: %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
