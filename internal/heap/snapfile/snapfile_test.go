package snapfile

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/heap/heaptest"
	"github.com/heapscan/pkg/compression"
	apperrors "github.com/heapscan/pkg/errors"
)

func sampleHeap(t *testing.T) *heap.Heap {
	f := heaptest.New()
	f.B.SetInfo(heap.Info{
		Name:       "orders-service",
		JVMVersion: "17.0.9",
		CreatedAt:  time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
	})
	registry := f.B.DefineClass("app.Registry", f.Object,
		heap.Field{Name: "byName", Type: heap.TypeObject},
		heap.Field{Name: "hits", Type: heap.TypeLong},
		heap.Field{Name: "ratio", Type: heap.TypeDouble})

	m := f.HashMapOf(heaptest.KV{K: f.Str("a"), V: f.Int(-7)}, heaptest.KV{K: f.Str("b"), V: f.LongBox(1 << 40)})
	r := f.Instance(registry, heap.Ref(m), heap.Prim(heap.TypeLong, -3), heap.Prim(heap.TypeDouble, 0x3ff0000000000000))
	arr := f.ObjArray("app.Registry", r, heap.NoRef, heap.Unresolved)
	f.IntArray(1, -2, 3)
	f.B.SetStatics(registry,
		[]heap.Field{{Name: "INSTANCE", Type: heap.TypeObject}, {Name: "COUNT", Type: heap.TypeInt}},
		[]heap.FieldValue{heap.Ref(r), heap.Prim(heap.TypeInt, 42)})
	f.B.SetOffset(arr, 1<<33)
	f.Root(r)
	f.B.AddRoot(f.B.ClassRef(registry), heap.RootStickyClass, "")
	return f.Build(t)
}

func assertSameHeap(t *testing.T, want, got *heap.Heap) {
	t.Helper()
	require.Equal(t, want.NumObjects(), got.NumObjects())
	require.Equal(t, want.NumClasses(), got.NumClasses())
	assert.Equal(t, want.Layout(), got.Layout())
	assert.Equal(t, want.Info().Name, got.Info().Name)
	assert.Equal(t, want.Info().JVMVersion, got.Info().JVMVersion)
	assert.True(t, want.Info().CreatedAt.Equal(got.Info().CreatedAt))

	for i, wc := range want.Classes() {
		gc := got.Classes()[i]
		assert.Equal(t, wc.Name, gc.Name)
		assert.Equal(t, wc.InstanceSize, gc.InstanceSize, wc.Name)
		assert.Equal(t, wc.IsArray, gc.IsArray, wc.Name)
		assert.Equal(t, wc.ElemType, gc.ElemType, wc.Name)
		assert.Equal(t, wc.Loader, gc.Loader, wc.Name)
		assert.Equal(t, wc.InstanceFields(), gc.InstanceFields(), wc.Name)
		assert.Equal(t, wc.StaticFields, gc.StaticFields, wc.Name)
		assert.Equal(t, wc.StaticValues, gc.StaticValues, wc.Name)
		if wc.Super != nil {
			require.NotNil(t, gc.Super, wc.Name)
			assert.Equal(t, wc.Super.Name, gc.Super.Name)
		}
	}

	for i := 0; i < want.NumObjects(); i++ {
		w, g := want.Object(i), got.Object(i)
		assert.Equal(t, w.Kind, g.Kind, "object %d", i)
		assert.Equal(t, w.Class.Name, g.Class.Name, "object %d", i)
		assert.Equal(t, w.Size, g.Size, "object %d", i)
		assert.Equal(t, w.Offset, g.Offset, "object %d", i)
		assert.Equal(t, w.Fields, g.Fields, "object %d", i)
		assert.Equal(t, w.Elements, g.Elements, "object %d", i)
		assert.Equal(t, w.Data, g.Data, "object %d", i)
	}

	require.Len(t, got.Roots(), len(want.Roots()))
	for i, r := range want.Roots() {
		assert.Equal(t, *r, *got.Roots()[i])
	}
}

func TestRoundTrip(t *testing.T) {
	h := sampleHeap(t)
	for _, codec := range []compression.Type{compression.TypeNone, compression.TypeGzip, compression.TypeZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, h, codec))

			hdr, detected, err := ReadHeader(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, codec, detected)
			assert.Equal(t, uint32(h.NumObjects()), hdr.NumObjects)
			assert.Equal(t, uint32(h.NumClasses()), hdr.NumClasses)
			assert.Equal(t, uint32(2), hdr.NumRoots)

			got, err := Read(&buf)
			require.NoError(t, err)
			assertSameHeap(t, h, got)
		})
	}
}

func TestWriteFile_ReadFile(t *testing.T) {
	h := sampleHeap(t)
	path := filepath.Join(t.TempDir(), "dumps", "app.snap")
	require.NoError(t, WriteFile(path, h, compression.TypeZstd))

	got, err := ReadFile(context.Background(), path)
	require.NoError(t, err)
	assertSameHeap(t, h, got)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".snap-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temporary file left behind")
}

func TestRead_Errors(t *testing.T) {
	h := sampleHeap(t)
	var good bytes.Buffer
	require.NoError(t, Write(&good, h, compression.TypeNone))

	var future bytes.Buffer
	require.NoError(t, msgpack.NewEncoder(&future).Encode(&Header{Magic: magic, Schema: SchemaVersion + 1}))

	tests := []struct {
		name  string
		input []byte
		check func(error) bool
	}{
		{"garbage", []byte("definitely not a snapshot"), apperrors.IsUnsupportedFormat},
		{"empty", nil, apperrors.IsUnsupportedFormat},
		{"newer schema", future.Bytes(), apperrors.IsUnsupportedFormat},
		{"truncated", good.Bytes()[:good.Len()/2], apperrors.IsCorruptedSnapshot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestReadFile_NotFound(t *testing.T) {
	_, err := ReadFile(context.Background(), filepath.Join(t.TempDir(), "missing.snap"))
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, 3, apperrors.ExitCode(err))
}

func TestReadContext_Cancelled(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleHeap(t), compression.TypeGzip))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadContext(ctx, &buf)
	assert.True(t, apperrors.IsCancelled(err))
}
