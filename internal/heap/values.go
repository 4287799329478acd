package heap

import (
	"encoding/binary"
	"unicode/utf16"
)

// Encoders for value array payloads, big-endian like the dump format.

// IntArrayData encodes int elements.
func IntArrayData(vals ...int32) []byte {
	data := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint32(data[i*4:], uint32(v))
	}
	return data
}

// LongArrayData encodes long elements.
func LongArrayData(vals ...int64) []byte {
	data := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint64(data[i*8:], uint64(v))
	}
	return data
}

// ShortArrayData encodes short elements.
func ShortArrayData(vals ...int16) []byte {
	data := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint16(data[i*2:], uint16(v))
	}
	return data
}

// CharArrayData encodes s as UTF-16 char elements.
func CharArrayData(s string) []byte {
	units := utf16.Encode([]rune(s))
	data := make([]byte, 2*len(units))
	for i, u := range units {
		binary.BigEndian.PutUint16(data[i*2:], u)
	}
	return data
}

// DecodeChars decodes big-endian UTF-16 char elements.
func DecodeChars(data []byte) string {
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return string(utf16.Decode(units))
}
