// Package snapfile stores a heap snapshot as a compressed stream of
// msgpack records: a header, then classes in index order, objects in
// index order and finally GC roots.
//
// References are written as global indices of the snapshot, so a class
// statics holder is addressed as NumObjects+classIndex on both sides.
package snapfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/heapscan/internal/heap"
	"github.com/heapscan/pkg/compression"
	apperrors "github.com/heapscan/pkg/errors"
)

const (
	magic = "HEAPSCAN"
	// SchemaVersion is bumped whenever a record layout changes.
	SchemaVersion uint16 = 1

	ctxCheckMask = 1<<16 - 1
)

// Header is the first record of a snapshot file.
type Header struct {
	Magic      string      `msgpack:"magic"`
	Schema     uint16      `msgpack:"schema"`
	Layout     heap.Layout `msgpack:"layout"`
	Info       heap.Info   `msgpack:"info"`
	NumClasses uint32      `msgpack:"classes"`
	NumObjects uint32      `msgpack:"objects"`
	NumRoots   uint32      `msgpack:"roots"`
}

type fieldRecord struct {
	Name string `msgpack:"n"`
	Type uint8  `msgpack:"t"`
}

type classRecord struct {
	Name         string        `msgpack:"name"`
	Super        int           `msgpack:"super"`
	Loader       int           `msgpack:"loader"`
	InstanceSize int           `msgpack:"size"`
	IsArray      bool          `msgpack:"array,omitempty"`
	ElemType     uint8         `msgpack:"elem,omitempty"`
	Fields       []fieldRecord `msgpack:"fields,omitempty"`
	Statics      []fieldRecord `msgpack:"statics,omitempty"`
	StaticValues []int64       `msgpack:"svals,omitempty"`
}

// objectRecord holds one object. Values are instance slots: the target
// index for reference fields and the raw bits otherwise.
type objectRecord struct {
	Kind     uint8   `msgpack:"k"`
	Class    int     `msgpack:"c"`
	Offset   int64   `msgpack:"o"`
	Values   []int64 `msgpack:"v,omitempty"`
	Elements []int   `msgpack:"e,omitempty"`
	Data     []byte  `msgpack:"d,omitempty"`
}

type rootRecord struct {
	Object int    `msgpack:"obj"`
	Type   string `msgpack:"type"`
	Desc   string `msgpack:"desc,omitempty"`
}

func fieldRecords(fields []heap.Field) []fieldRecord {
	if len(fields) == 0 {
		return nil
	}
	out := make([]fieldRecord, len(fields))
	for i, f := range fields {
		out[i] = fieldRecord{Name: f.Name, Type: uint8(f.Type)}
	}
	return out
}

func slotValue(v heap.FieldValue) int64 {
	if v.Type == heap.TypeObject {
		return int64(v.Ref)
	}
	return v.Bits
}

// Write encodes snap to w compressed with codec.
func Write(w io.Writer, snap heap.Snapshot, codec compression.Type) error {
	hdr := Header{Magic: magic, Schema: SchemaVersion, Layout: snap.Layout(), Info: snap.Info()}
	var err error
	if hdr.NumClasses, err = safecast.Conv[uint32](snap.NumClasses()); err != nil {
		return fmt.Errorf("too many classes: %w", err)
	}
	if hdr.NumObjects, err = safecast.Conv[uint32](snap.NumObjects()); err != nil {
		return fmt.Errorf("too many objects: %w", err)
	}
	if hdr.NumRoots, err = safecast.Conv[uint32](len(snap.Roots())); err != nil {
		return fmt.Errorf("too many roots: %w", err)
	}

	cw, err := compression.NewWriter(w, codec, compression.LevelDefault)
	if err != nil {
		return err
	}
	enc := msgpack.NewEncoder(cw)
	if err := enc.Encode(&hdr); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, c := range snap.Classes() {
		rec := classRecord{
			Name:         c.Name,
			Super:        heap.NoRef,
			Loader:       c.Loader,
			InstanceSize: c.InstanceSize,
			IsArray:      c.IsArray,
			ElemType:     uint8(c.ElemType),
			Fields:       fieldRecords(c.Fields),
			Statics:      fieldRecords(c.StaticFields),
		}
		if c.Super != nil {
			rec.Super = c.Super.Index
		}
		for _, v := range c.StaticValues {
			rec.StaticValues = append(rec.StaticValues, slotValue(v))
		}
		if err := enc.Encode(&rec); err != nil {
			return fmt.Errorf("failed to write class %s: %w", c.Name, err)
		}
	}

	for i := 0; i < snap.NumObjects(); i++ {
		o := snap.Object(i)
		rec := objectRecord{Kind: uint8(o.Kind), Class: o.Class.Index, Offset: o.Offset}
		switch o.Kind {
		case heap.KindInstance:
			rec.Values = make([]int64, len(o.Fields))
			for j, v := range o.Fields {
				rec.Values[j] = slotValue(v)
			}
		case heap.KindObjectArray:
			rec.Elements = o.Elements
		case heap.KindValueArray:
			rec.Data = o.Data
		}
		if err := enc.Encode(&rec); err != nil {
			return fmt.Errorf("failed to write object %d: %w", i, err)
		}
	}

	for _, r := range snap.Roots() {
		rec := rootRecord{Object: r.Object, Type: string(r.Type), Desc: r.Description}
		if err := enc.Encode(&rec); err != nil {
			return fmt.Errorf("failed to write root: %w", err)
		}
	}
	return cw.Close()
}

// WriteFile writes snap to path through a temporary file in the same
// directory, so readers never see a partial snapshot.
func WriteFile(path string, snap heap.Snapshot, codec compression.Type) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".snap-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if err := Write(f, snap, codec); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return os.Rename(f.Name(), path)
}

func corrupted(format string, args ...interface{}) error {
	return apperrors.Wrap(apperrors.CodeCorruptedSnapshot, "corrupted snapshot", fmt.Errorf(format, args...))
}

type decoder struct {
	dec   *msgpack.Decoder
	codec compression.Type
	close func() error
}

func newDecoder(r io.Reader) (*decoder, Header, error) {
	cr, codec, err := compression.NewReader(r)
	if err != nil {
		return nil, Header{}, apperrors.Wrap(apperrors.CodeCorruptedSnapshot, "corrupted snapshot", err)
	}
	d := &decoder{dec: msgpack.NewDecoder(cr), codec: codec, close: cr.Close}
	var hdr Header
	if err := d.dec.Decode(&hdr); err != nil || hdr.Magic != magic {
		cr.Close()
		return nil, Header{}, apperrors.ErrUnsupportedFormat
	}
	if hdr.Schema != SchemaVersion {
		cr.Close()
		return nil, Header{}, apperrors.Newf(apperrors.CodeUnsupportedFormat,
			"snapshot schema %d, want %d", hdr.Schema, SchemaVersion)
	}
	return d, hdr, nil
}

// ReadHeader reads only the header of a snapshot and reports its codec.
func ReadHeader(r io.Reader) (Header, compression.Type, error) {
	d, hdr, err := newDecoder(r)
	if err != nil {
		return Header{}, compression.TypeNone, err
	}
	defer d.close()
	return hdr, d.codec, nil
}

// Read decodes a snapshot written by Write.
func Read(r io.Reader) (*heap.Heap, error) {
	return ReadContext(context.Background(), r)
}

// ReadContext decodes a snapshot, giving up with ErrCancelled once ctx is done.
func ReadContext(ctx context.Context, r io.Reader) (*heap.Heap, error) {
	d, hdr, err := newDecoder(r)
	if err != nil {
		return nil, err
	}
	defer d.close()

	b := heap.NewBuilder(hdr.Layout)
	b.SetInfo(hdr.Info)
	nClasses := int(hdr.NumClasses)
	nObjects := int(hdr.NumObjects)
	classes := make([]*heap.Class, 0, nClasses)

	for i := 0; i < nClasses; i++ {
		var rec classRecord
		if err := d.dec.Decode(&rec); err != nil {
			return nil, corrupted("class %d: %w", i, err)
		}
		c, err := defineClass(b, classes, &rec)
		if err != nil {
			return nil, corrupted("class %d (%s): %w", i, rec.Name, err)
		}
		classes = append(classes, c)
	}

	for i := 0; i < nObjects; i++ {
		if i&ctxCheckMask == 0 && ctx.Err() != nil {
			return nil, apperrors.ErrCancelled
		}
		var rec objectRecord
		if err := d.dec.Decode(&rec); err != nil {
			return nil, corrupted("object %d: %w", i, err)
		}
		if err := addObject(b, classes, &rec); err != nil {
			return nil, corrupted("object %d: %w", i, err)
		}
		b.SetOffset(i, rec.Offset)
	}

	for i := 0; i < int(hdr.NumRoots); i++ {
		var rec rootRecord
		if err := d.dec.Decode(&rec); err != nil {
			return nil, corrupted("root %d: %w", i, err)
		}
		b.AddRoot(rec.Object, heap.RootType(rec.Type), rec.Desc)
	}

	h, err := b.Build()
	if err != nil {
		return nil, corrupted("%w", err)
	}
	return h, nil
}

// ReadFile opens and decodes the snapshot at path.
func ReadFile(ctx context.Context, path string) (*heap.Heap, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.Wrap(apperrors.CodeSnapshotNotFound, "snapshot not found", err)
		}
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	return ReadContext(ctx, f)
}

func toFields(recs []fieldRecord) ([]heap.Field, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	out := make([]heap.Field, len(recs))
	for i, r := range recs {
		t := heap.BasicType(r.Type)
		if !t.Valid() {
			return nil, fmt.Errorf("field %s: bad type %d", r.Name, r.Type)
		}
		out[i] = heap.Field{Name: r.Name, Type: t}
	}
	return out, nil
}

func slot(t heap.BasicType, v int64) (heap.FieldValue, error) {
	if t != heap.TypeObject {
		return heap.Prim(t, v), nil
	}
	ref, err := safecast.Conv[int](v)
	if err != nil {
		return heap.FieldValue{}, err
	}
	return heap.Ref(ref), nil
}

func defineClass(b *heap.Builder, defined []*heap.Class, rec *classRecord) (*heap.Class, error) {
	var super *heap.Class
	if rec.Super != heap.NoRef {
		if rec.Super < 0 || rec.Super >= len(defined) {
			return nil, fmt.Errorf("superclass %d not defined before", rec.Super)
		}
		super = defined[rec.Super]
	}
	if b.Class(rec.Name) != nil {
		return nil, fmt.Errorf("duplicate class")
	}
	fields, err := toFields(rec.Fields)
	if err != nil {
		return nil, err
	}
	c := b.DefineClass(rec.Name, super, fields...)
	if c.Index != len(defined) {
		return nil, fmt.Errorf("class index %d, want %d", c.Index, len(defined))
	}
	c.Loader = rec.Loader
	c.IsArray = rec.IsArray
	c.ElemType = heap.BasicType(rec.ElemType)
	if rec.InstanceSize > 0 {
		c.InstanceSize = rec.InstanceSize
	}

	statics, err := toFields(rec.Statics)
	if err != nil {
		return nil, err
	}
	if len(statics) != len(rec.StaticValues) {
		return nil, fmt.Errorf("%d static fields but %d values", len(statics), len(rec.StaticValues))
	}
	if len(statics) > 0 {
		values := make([]heap.FieldValue, len(statics))
		for i, f := range statics {
			if values[i], err = slot(f.Type, rec.StaticValues[i]); err != nil {
				return nil, err
			}
		}
		b.SetStatics(c, statics, values)
	}
	return c, nil
}

func addObject(b *heap.Builder, classes []*heap.Class, rec *objectRecord) error {
	if rec.Class < 0 || rec.Class >= len(classes) {
		return fmt.Errorf("unknown class %d", rec.Class)
	}
	c := classes[rec.Class]
	idx := heap.NoRef
	switch heap.Kind(rec.Kind) {
	case heap.KindInstance:
		fields := c.InstanceFields()
		if len(rec.Values) != len(fields) {
			return fmt.Errorf("%s: %d values for %d fields", c.Name, len(rec.Values), len(fields))
		}
		values := make([]heap.FieldValue, len(fields))
		for i, f := range fields {
			v, err := slot(f.Type, rec.Values[i])
			if err != nil {
				return err
			}
			values[i] = v
		}
		idx = b.AddInstance(c, values...)
	case heap.KindObjectArray:
		if !c.IsArray || c.ElemType != heap.TypeObject {
			return fmt.Errorf("%s is not an object array class", c.Name)
		}
		idx = b.AddObjectArray(c, rec.Elements...)
	case heap.KindValueArray:
		if !c.IsArray || !c.ElemType.IsPrimitive() {
			return fmt.Errorf("%s is not a primitive array class", c.Name)
		}
		idx = b.AddValueArray(c.ElemType, rec.Data)
	default:
		return fmt.Errorf("bad object kind %d", rec.Kind)
	}
	if idx == heap.NoRef {
		return fmt.Errorf("rejected by builder")
	}
	return nil
}
