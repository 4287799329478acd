package heap

import "strings"

// Well-known class names the analysis depends on.
const (
	ClassObject    = "java.lang.Object"
	ClassString    = "java.lang.String"
	ClassReference = "java.lang.ref.Reference"
)

// Class describes a loaded class. Instance fields are addressed by a flat
// index over the whole hierarchy, superclass fields first.
type Class struct {
	Name         string
	Index        int
	Super        *Class
	Loader       int
	Fields       []Field
	StaticFields []Field
	StaticValues []FieldValue
	InstanceSize int
	// ElemType is the element type for array classes and zero otherwise.
	ElemType BasicType
	IsArray  bool

	objIndex   int
	allFields  []Field
	fieldOwner []*Class
	hasRefs    bool
	subclasses []*Class
}

// ObjectIndex returns the global index of the class statics holder.
func (c *Class) ObjectIndex() int {
	return c.objIndex
}

// InstanceFields returns all instance fields including inherited ones.
func (c *Class) InstanceFields() []Field {
	return c.allFields
}

// NumInstanceFields returns the number of instance field slots.
func (c *Class) NumInstanceFields() int {
	return len(c.allFields)
}

// FieldAt returns the instance field at flat index i.
func (c *Class) FieldAt(i int) Field {
	return c.allFields[i]
}

// DeclaringClass returns the class in the hierarchy that declares field i.
func (c *Class) DeclaringClass(i int) *Class {
	if i < 0 || i >= len(c.fieldOwner) {
		return nil
	}
	return c.fieldOwner[i]
}

// FieldIndex returns the flat index of the first field with the given name,
// or -1. A name of the form "a|b" matches either alternative, first one wins.
func (c *Class) FieldIndex(name string) int {
	for _, alt := range strings.Split(name, "|") {
		for i, f := range c.allFields {
			if f.Name == alt {
				return i
			}
		}
	}
	return -1
}

// LastFieldIndex is like FieldIndex but prefers the most derived declaration
// when a subclass shadows a superclass field of the same name.
func (c *Class) LastFieldIndex(name string) int {
	for _, alt := range strings.Split(name, "|") {
		for i := len(c.allFields) - 1; i >= 0; i-- {
			if c.allFields[i].Name == alt {
				return i
			}
		}
	}
	return -1
}

// HasReferenceFields reports whether any instance field is a reference.
func (c *Class) HasReferenceFields() bool {
	return c.hasRefs
}

// Subclasses returns the direct subclasses.
func (c *Class) Subclasses() []*Class {
	return c.subclasses
}

// IsSubclassOf reports whether c is name or extends it.
func (c *Class) IsSubclassOf(name string) bool {
	for k := c; k != nil; k = k.Super {
		if k.Name == name {
			return true
		}
	}
	return false
}

// IsString reports whether c is java.lang.String.
func (c *Class) IsString() bool {
	return c.Name == ClassString
}

// IsReference reports whether c extends java.lang.ref.Reference.
func (c *Class) IsReference() bool {
	return c.IsSubclassOf(ClassReference)
}

// SimpleName returns the name without its package prefix.
func (c *Class) SimpleName() string {
	if i := strings.LastIndexByte(c.Name, '.'); i >= 0 {
		return c.Name[i+1:]
	}
	return c.Name
}

func (c *Class) String() string {
	return c.Name
}

// resolve computes the flattened field layout. Superclasses must be resolved first.
func (c *Class) resolve() {
	var inherited []Field
	var owners []*Class
	if c.Super != nil {
		inherited = c.Super.allFields
		owners = c.Super.fieldOwner
		c.Super.subclasses = append(c.Super.subclasses, c)
	}
	c.allFields = make([]Field, 0, len(inherited)+len(c.Fields))
	c.allFields = append(c.allFields, inherited...)
	c.allFields = append(c.allFields, c.Fields...)
	c.fieldOwner = make([]*Class, 0, len(c.allFields))
	c.fieldOwner = append(c.fieldOwner, owners...)
	for range c.Fields {
		c.fieldOwner = append(c.fieldOwner, c)
	}
	c.hasRefs = false
	for _, f := range c.allFields {
		if f.Type == TypeObject {
			c.hasRefs = true
			break
		}
	}
}

var boxedSizes = map[string]int{
	"java.lang.Boolean":   1,
	"java.lang.Byte":      1,
	"java.lang.Character": 2,
	"java.lang.Short":     2,
	"java.lang.Integer":   4,
	"java.lang.Float":     4,
	"java.lang.Long":      8,
	"java.lang.Double":    8,
}

// BoxedNumberSize returns the size of the primitive wrapped by a boxed
// number class such as java.lang.Integer, or 0 for any other class.
func (c *Class) BoxedNumberSize() int {
	return boxedSizes[c.Name]
}
