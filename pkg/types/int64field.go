// Package types holds the key type the hash index operates on: a single
// comparable, hashable, serializable field value.
package types

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
)

// Int64Field is a 64-bit signed integer key or value.
type Int64Field int64

// Serialize writes the field in big-endian form.
func (f Int64Field) Serialize(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, int64(f))
}

// DeserializeInt64Field reads a value written by Serialize.
func DeserializeInt64Field(r io.Reader) (Int64Field, error) {
	var v int64
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return Int64Field(v), nil
}

// Equals reports whether other holds the same value as f.
func (f Int64Field) Equals(other Int64Field) bool {
	return f == other
}

// Hash returns an FNV-32a hash of the field's big-endian bytes.
func (f Int64Field) Hash() uint32 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(f))
	h := fnv.New32a()
	h.Write(buf[:])
	return h.Sum32()
}

func (f Int64Field) String() string {
	return fmt.Sprintf("%d", int64(f))
}
