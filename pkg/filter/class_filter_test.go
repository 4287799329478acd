package filter

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassFilter_Classify(t *testing.T) {
	f := NewClassFilter("com.example", " ", "org.acme.")

	tests := []struct {
		className string
		expected  ClassCategory
	}{
		{"", CategoryUnknown},
		{"byte[]", CategoryPrimitive},
		{"long[]", CategoryPrimitive},
		{"java.lang.String", CategoryJDK},
		{"java.util.HashMap", CategoryJDK},
		{"java.lang.String[]", CategoryJDK},
		{"javax.servlet.Servlet", CategoryJDK},
		{"sun.misc.Unsafe", CategoryJDK},
		{"jdk.internal.misc.Unsafe", CategoryJDK},
		{"io.netty.buffer.PoolArena", CategoryFramework},
		{"com.google.common.collect.ImmutableList", CategoryFramework},
		{"org.springframework.web.servlet.DispatcherServlet[]", CategoryFramework},
		{"com.example.MyService", CategoryBusiness},
		{"com.example.order.Line[][]", CategoryBusiness},
		{"com.examples.Other", CategoryApplication},
		{"org.acme.Widget", CategoryBusiness},
		{"app.Owner", CategoryApplication},
	}
	for _, tt := range tests {
		t.Run(tt.className, func(t *testing.T) {
			assert.Equal(t, tt.expected, f.Classify(tt.className))
			// second lookup is served from the cache
			assert.Equal(t, tt.expected, f.Classify(tt.className))
		})
	}
}

func TestClassFilter_AddBusinessPrefixes(t *testing.T) {
	f := NewClassFilter()
	assert.Equal(t, CategoryApplication, f.Classify("app.Owner"))
	assert.True(t, f.IsApplicationLevel("app.Owner"))

	f.AddBusinessPrefixes("app")
	assert.Equal(t, CategoryBusiness, f.Classify("app.Owner"))
	assert.True(t, f.IsApplicationLevel("app.Owner"))
	assert.False(t, f.IsApplicationLevel("java.util.ArrayList"))
	assert.False(t, f.IsApplicationLevel("int[]"))
}

func TestClassCategory_String(t *testing.T) {
	tests := []struct {
		c    ClassCategory
		want string
	}{
		{CategoryUnknown, "unknown"},
		{CategoryPrimitive, "primitive"},
		{CategoryJDK, "jdk"},
		{CategoryFramework, "framework"},
		{CategoryApplication, "application"},
		{CategoryBusiness, "business"},
		{ClassCategory(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.String())
		})
	}
}

func TestClassFilter_Concurrent(t *testing.T) {
	f := NewClassFilter("app")
	names := []string{"app.Owner", "java.lang.String", "io.netty.util.Recycler", "char[]"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				f.Classify(names[j%len(names)])
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, CategoryBusiness, f.Classify("app.Owner"))
}
