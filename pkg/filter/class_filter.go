// Package filter classifies Java class names by origin so reports can tell
// JDK and framework overhead apart from the application's own classes.
package filter

import (
	"strings"
	"sync"
)

// ClassCategory represents the origin of a class.
type ClassCategory int

const (
	CategoryUnknown ClassCategory = iota
	// CategoryPrimitive covers primitive arrays.
	CategoryPrimitive
	CategoryJDK
	// CategoryFramework covers third-party library internals.
	CategoryFramework
	CategoryApplication
	// CategoryBusiness covers classes under a configured application package.
	CategoryBusiness
)

// String returns the string representation of the category.
func (c ClassCategory) String() string {
	switch c {
	case CategoryPrimitive:
		return "primitive"
	case CategoryJDK:
		return "jdk"
	case CategoryFramework:
		return "framework"
	case CategoryApplication:
		return "application"
	case CategoryBusiness:
		return "business"
	default:
		return "unknown"
	}
}

var (
	primitiveArrays = map[string]bool{
		"byte[]": true, "char[]": true, "int[]": true, "long[]": true,
		"short[]": true, "boolean[]": true, "float[]": true, "double[]": true,
	}

	jdkPrefixes = []string{
		"java.", "javax.", "sun.", "com.sun.", "jdk.",
	}

	frameworkPrefixes = []string{
		"org.springframework.",
		"io.netty.",
		"com.google.common.",
		"org.slf4j.",
		"ch.qos.logback.",
		"org.apache.",
		"com.fasterxml.jackson.",
		"net.bytebuddy.",
		"io.opentelemetry.",
		"org.hibernate.",
		"kotlin.",
		"scala.",
	}
)

const defaultCacheSize = 10000

// ClassFilter classifies class names. It is safe for concurrent use.
type ClassFilter struct {
	mu               sync.RWMutex
	businessPrefixes []string
	cache            map[string]ClassCategory
	cacheSize        int
}

// NewClassFilter creates a ClassFilter that treats classes under the given
// package prefixes as business code.
func NewClassFilter(businessPrefixes ...string) *ClassFilter {
	f := &ClassFilter{
		cache:     make(map[string]ClassCategory),
		cacheSize: defaultCacheSize,
	}
	f.AddBusinessPrefixes(businessPrefixes...)
	return f
}

// AddBusinessPrefixes adds application package prefixes. A prefix without a
// trailing dot matches the package and its subpackages.
func (f *ClassFilter) AddBusinessPrefixes(prefixes ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasSuffix(p, ".") {
			p += "."
		}
		f.businessPrefixes = append(f.businessPrefixes, p)
	}
	// Categories may change with the new prefixes.
	f.cache = make(map[string]ClassCategory)
}

// Classify returns the category of a class name. Array classes take the
// category of their element type.
func (f *ClassFilter) Classify(className string) ClassCategory {
	if className == "" {
		return CategoryUnknown
	}
	f.mu.RLock()
	cat, ok := f.cache[className]
	f.mu.RUnlock()
	if ok {
		return cat
	}

	cat = f.classify(className)

	f.mu.Lock()
	if len(f.cache) < f.cacheSize {
		f.cache[className] = cat
	}
	f.mu.Unlock()
	return cat
}

func (f *ClassFilter) classify(className string) ClassCategory {
	if primitiveArrays[className] {
		return CategoryPrimitive
	}
	name := strings.TrimRight(className, "[]")
	f.mu.RLock()
	for _, p := range f.businessPrefixes {
		if strings.HasPrefix(name, p) {
			f.mu.RUnlock()
			return CategoryBusiness
		}
	}
	f.mu.RUnlock()
	if hasAnyPrefix(name, jdkPrefixes) {
		return CategoryJDK
	}
	if hasAnyPrefix(name, frameworkPrefixes) {
		return CategoryFramework
	}
	return CategoryApplication
}

// IsApplicationLevel reports whether the class belongs to the application
// rather than the JDK or a library.
func (f *ClassFilter) IsApplicationLevel(className string) bool {
	switch f.Classify(className) {
	case CategoryApplication, CategoryBusiness:
		return true
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
