package heap

import "encoding/binary"

// Kind tags the variant of an Object.
type Kind uint8

const (
	KindInstance Kind = iota
	KindClass
	KindObjectArray
	KindValueArray
)

func (k Kind) String() string {
	switch k {
	case KindInstance:
		return "instance"
	case KindClass:
		return "class"
	case KindObjectArray:
		return "object-array"
	case KindValueArray:
		return "value-array"
	default:
		return "unknown"
	}
}

// Object is one heap object. Which payload is set depends on Kind:
// Fields for instances, Elements for object arrays, Data for value arrays.
// A KindClass object is the statics holder of Class; its slots are
// Class.StaticValues.
type Object struct {
	Index  int
	Kind   Kind
	Class  *Class
	Size   int
	Offset int64

	Fields   []FieldValue
	Elements []int
	// Data holds value array elements big-endian, as in the dump.
	Data []byte
}

// Len returns the array length, or 0 for non-arrays.
func (o *Object) Len() int {
	switch o.Kind {
	case KindObjectArray:
		return len(o.Elements)
	case KindValueArray:
		if sz := o.ElemSize(); sz > 0 {
			return len(o.Data) / sz
		}
	}
	return 0
}

// ElemType returns the element type of a value array.
func (o *Object) ElemType() BasicType {
	return o.Class.ElemType
}

// ElemSize returns the element size of a value array in bytes.
func (o *Object) ElemSize() int {
	return o.Class.ElemType.Size(0)
}

// Field returns the value of instance field i.
func (o *Object) Field(i int) FieldValue {
	if i < 0 || i >= len(o.Fields) {
		return Null()
	}
	return o.Fields[i]
}

// Statics returns the static field values of a class object.
func (o *Object) Statics() []FieldValue {
	if o.Kind != KindClass {
		return nil
	}
	return o.Class.StaticValues
}

// IsString reports whether the object is a java.lang.String instance.
func (o *Object) IsString() bool {
	return o.Kind == KindInstance && o.Class.IsString()
}

// Int returns element i of a value array, sign-extended except for char and boolean.
func (o *Object) Int(i int) int64 {
	sz := o.ElemSize()
	b := o.Data[i*sz : (i+1)*sz]
	switch o.Class.ElemType {
	case TypeBoolean:
		return int64(b[0])
	case TypeByte:
		return int64(int8(b[0]))
	case TypeChar:
		return int64(binary.BigEndian.Uint16(b))
	case TypeShort:
		return int64(int16(binary.BigEndian.Uint16(b)))
	case TypeInt, TypeFloat:
		return int64(int32(binary.BigEndian.Uint32(b)))
	case TypeLong, TypeDouble:
		return int64(binary.BigEndian.Uint64(b))
	}
	return 0
}
