// Package heap models a parsed heap snapshot as an immutable object graph.
//
// Objects are addressed by a dense global index. Regular objects occupy
// [0, NumObjects) and class statics holders follow them, so a visited set
// for a whole scan session is a single bitset. Nothing in this package
// mutates during analysis; per-session state lives in Marks.
package heap

import "fmt"

// BasicType is the HPROF basic type tag of a field or array element.
type BasicType uint8

const (
	TypeObject  BasicType = 2
	TypeBoolean BasicType = 4
	TypeChar    BasicType = 5
	TypeFloat   BasicType = 6
	TypeDouble  BasicType = 7
	TypeByte    BasicType = 8
	TypeShort   BasicType = 9
	TypeInt     BasicType = 10
	TypeLong    BasicType = 11
)

// Size returns the size in bytes of a value of this type.
// References take ptrSize bytes.
func (t BasicType) Size(ptrSize int) int {
	switch t {
	case TypeObject:
		return ptrSize
	case TypeBoolean, TypeByte:
		return 1
	case TypeChar, TypeShort:
		return 2
	case TypeFloat, TypeInt:
		return 4
	case TypeDouble, TypeLong:
		return 8
	default:
		return 0
	}
}

// IsPrimitive reports whether t is a non-reference type.
func (t BasicType) IsPrimitive() bool {
	return t != TypeObject && t.Size(0) > 0
}

// IsFloating reports whether t is float or double.
func (t BasicType) IsFloating() bool {
	return t == TypeFloat || t == TypeDouble
}

// Valid reports whether t is a known tag.
func (t BasicType) Valid() bool {
	return t == TypeObject || t.IsPrimitive()
}

// String returns the Java name of the type.
func (t BasicType) String() string {
	switch t {
	case TypeObject:
		return "Object"
	case TypeBoolean:
		return "boolean"
	case TypeChar:
		return "char"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeByte:
		return "byte"
	case TypeShort:
		return "short"
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	default:
		return fmt.Sprintf("BasicType(%d)", uint8(t))
	}
}

// ArrayClassName returns the class name of a primitive array of this type, e.g. "int[]".
func (t BasicType) ArrayClassName() string {
	return t.String() + "[]"
}

// Field describes one declared field of a class.
type Field struct {
	Name string
	Type BasicType
}

// Reference sentinels stored in FieldValue.Ref and array elements.
const (
	// NoRef is a null reference.
	NoRef = -1
	// Unresolved is a reference to an object missing from the snapshot.
	Unresolved = -2
)

// FieldValue is the content of one field slot.
// For TypeObject slots Ref holds the target global index, NoRef or Unresolved.
// For primitive slots Bits holds the value, sign-extended for signed types.
type FieldValue struct {
	Type BasicType
	Ref  int
	Bits int64
}

// Ref returns a reference value pointing at the object with global index idx.
func Ref(idx int) FieldValue {
	return FieldValue{Type: TypeObject, Ref: idx}
}

// Null returns a null reference value.
func Null() FieldValue {
	return FieldValue{Type: TypeObject, Ref: NoRef}
}

// Prim returns a primitive value of type t.
func Prim(t BasicType, bits int64) FieldValue {
	return FieldValue{Type: t, Ref: NoRef, Bits: bits}
}

// IsRef reports whether the slot holds a reference (possibly null).
func (v FieldValue) IsRef() bool {
	return v.Type == TypeObject
}

// IsNullRef reports whether the slot is a reference that leads nowhere usable.
func (v FieldValue) IsNullRef() bool {
	return v.Type == TypeObject && v.Ref < 0
}

// IsZero reports whether the slot is null or a zero primitive.
func (v FieldValue) IsZero() bool {
	if v.Type == TypeObject {
		return v.Ref == NoRef
	}
	return v.Bits == 0
}
