package heap

import (
	"encoding/binary"
	"unicode/utf16"
)

// Compact string coders (JDK 9+).
const (
	CoderLatin1 = 0
	CoderUTF16  = 1
)

// StringReader decodes java.lang.String instances. It supports both the
// char[] layout with optional offset/count fields and the compact byte[]
// layout with a coder field.
type StringReader struct {
	snap      Snapshot
	class     *Class
	valueIdx  int
	coderIdx  int
	offsetIdx int
	countIdx  int
}

// NewStringReader prepares a reader for the String class of s.
// It returns nil if the snapshot has no usable String class.
func NewStringReader(s Snapshot) *StringReader {
	c := s.ClassByName(ClassString)
	if c == nil {
		return nil
	}
	r := &StringReader{
		snap:      s,
		class:     c,
		valueIdx:  c.FieldIndex("value"),
		coderIdx:  c.FieldIndex("coder"),
		offsetIdx: c.FieldIndex("offset"),
		countIdx:  c.FieldIndex("count"),
	}
	if r.valueIdx < 0 {
		return nil
	}
	return r
}

// Class returns the String class.
func (r *StringReader) Class() *Class {
	return r.class
}

// Backing returns the value array of a string, or nil if it is missing.
func (r *StringReader) Backing(str *Object) *Object {
	arr := r.snap.Object(str.Field(r.valueIdx).Ref)
	if arr == nil || arr.Kind != KindValueArray {
		return nil
	}
	return arr
}

// Read returns the string contents and its backing array. ok is false when
// the backing array is missing, e.g. in a truncated dump.
func (r *StringReader) Read(str *Object) (value string, backing *Object, ok bool) {
	arr := r.Backing(str)
	if arr == nil {
		return "", nil, false
	}
	switch arr.ElemType() {
	case TypeChar:
		n := arr.Len()
		off, cnt := 0, n
		if r.offsetIdx >= 0 && r.countIdx >= 0 {
			off = int(str.Field(r.offsetIdx).Bits)
			cnt = int(str.Field(r.countIdx).Bits)
			if off < 0 || cnt < 0 || off+cnt > n {
				off, cnt = 0, n
			}
		}
		return DecodeChars(arr.Data[off*2 : (off+cnt)*2]), arr, true
	case TypeByte:
		coder := int64(CoderLatin1)
		if r.coderIdx >= 0 {
			coder = str.Field(r.coderIdx).Bits
		}
		if coder == CoderUTF16 {
			return decodeUTF16LE(arr.Data), arr, true
		}
		runes := make([]rune, len(arr.Data))
		for i, c := range arr.Data {
			runes[i] = rune(c)
		}
		return string(runes), arr, true
	}
	return "", nil, false
}

// decodeUTF16LE decodes compact-string UTF-16 payloads, which HotSpot
// stores in native (little-endian) order.
func decodeUTF16LE(data []byte) string {
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	return string(utf16.Decode(units))
}
