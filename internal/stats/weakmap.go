package stats

import (
	"github.com/heapscan/internal/descriptors"
	"github.com/heapscan/internal/heap"
)

const weakHashMapClass = "java.util.WeakHashMap"

// IsWeakMap reports whether col belongs to the WeakHashMap family.
func IsWeakMap(col descriptors.Instance) bool {
	return col.ClassDescriptor().Class.IsSubclassOf(weakHashMapClass)
}

// WeakMapBackRefs finds entries of a weak map whose value strongly
// references a key of the same map, which keeps the key reachable forever.
// It returns the summed size of such keys and values, and a sample
// "Class.field" naming one of the offending references.
func WeakMapBackRefs(snap heap.Snapshot, col descriptors.Instance) (int, string) {
	type entry struct{ key, value int }
	var entries []entry
	keys := make(map[int]struct{})
	col.Iterate(descriptors.VisitorFuncs{Elem: func(key, value int) bool {
		if key >= 0 {
			keys[key] = struct{}{}
		}
		if key >= 0 && value >= 0 {
			entries = append(entries, entry{key, value})
		}
		return true
	}})

	ovhd, sample := 0, ""
	for _, e := range entries {
		k, v := snap.Object(e.key), snap.Object(e.value)
		if k == nil || v == nil {
			continue
		}
		if s, ok := backRef(v, keys); ok {
			ovhd += k.Size + v.Size
			if sample == "" {
				sample = s
			}
		}
	}
	return ovhd, sample
}

// backRef reports whether v is a key or holds a strong reference to one.
func backRef(v *heap.Object, keys map[int]struct{}) (string, bool) {
	if _, ok := keys[v.Index]; ok {
		return v.Class.Name, true
	}
	switch v.Kind {
	case heap.KindInstance:
		skipReferent := v.Class.IsReference()
		for i, f := range v.Fields {
			if i >= v.Class.NumInstanceFields() {
				break
			}
			if !f.IsRef() || f.Ref < 0 {
				continue
			}
			field := v.Class.FieldAt(i)
			if skipReferent && field.Name == "referent" && v.Class.DeclaringClass(i).Name == heap.ClassReference {
				continue
			}
			if _, ok := keys[f.Ref]; ok {
				return v.Class.Name + "." + field.Name, true
			}
		}
	case heap.KindObjectArray:
		for _, r := range v.Elements {
			if _, ok := keys[r]; ok {
				return v.Class.Name, true
			}
		}
	}
	return "", false
}
