package ontology

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// RowValuer is implemented by ontology payload types so the generic Arrow
// codec below can flatten them into named columns without reflection.
// Values must be: int64, float64, bool, string for leaf scalar fields, or
// any JSON-marshalable value for FieldDict columns (the codec stores those
// as a JSON string column).
type RowValuer interface {
	Payload
	Row() map[string]any
}

// NewPayload is a factory the codec uses to reconstruct payloads on decode.
type NewPayload func(row map[string]any) (Payload, error)

// ArrowCodec is the Arrow-backed Codec implementation: leaf scalar fields
// (i64/f64/bool/string) become typed Arrow columns; FieldDict fields are
// carried as a JSON-encoded string column per field, the same pragmatic
// approach Arrow-based observability pipelines use for open-ended
// attribute maps.
type ArrowCodec struct {
	schema      SchemaDescriptor
	arrowSchema *arrow.Schema
	columns     []columnSpec
	allocator   memory.Allocator
	newPayload  NewPayload
}

type columnSpec struct {
	path string
	typ  FieldType
}

// NewArrowCodec builds a codec for the given schema. newPayload reconstructs
// a concrete Payload from a flattened row map on decode.
func NewArrowCodec(schema SchemaDescriptor, newPayload NewPayload) *ArrowCodec {
	var columns []columnSpec
	var fields []arrow.Field

	schema.Walk(func(path string, f FieldDescriptor) {
		switch f.Type {
		case FieldInt64:
			fields = append(fields, arrow.Field{Name: path, Type: arrow.PrimitiveTypes.Int64, Nullable: true})
		case FieldFloat64:
			fields = append(fields, arrow.Field{Name: path, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
		case FieldBool:
			fields = append(fields, arrow.Field{Name: path, Type: arrow.FixedWidthTypes.Boolean, Nullable: true})
		case FieldString, FieldDict:
			fields = append(fields, arrow.Field{Name: path, Type: arrow.BinaryTypes.String, Nullable: true})
		default:
			return
		}
		columns = append(columns, columnSpec{path: path, typ: f.Type})
	})

	return &ArrowCodec{
		schema:      schema,
		arrowSchema: arrow.NewSchema(fields, nil),
		columns:     columns,
		allocator:   memory.NewGoAllocator(),
		newPayload:  newPayload,
	}
}

func (c *ArrowCodec) Schema() SchemaDescriptor { return c.schema }

// arrowBatchBuilder accumulates rows into an arrow.Record via RecordBuilder.
type arrowBatchBuilder struct {
	codec *ArrowCodec
	rb    *array.RecordBuilder
	n     int
	bytes int
}

func (c *ArrowCodec) NewBatchBuilder() BatchBuilder {
	return &arrowBatchBuilder{
		codec: c,
		rb:    array.NewRecordBuilder(c.allocator, c.arrowSchema),
	}
}

func (b *arrowBatchBuilder) Append(p Payload) error {
	rv, ok := p.(RowValuer)
	if !ok {
		return fmt.Errorf("ontology: payload %T does not implement RowValuer", p)
	}
	if rv.OntologyTag() != b.codec.schema.Tag {
		return fmt.Errorf("ontology: payload tag %q does not match codec tag %q", rv.OntologyTag(), b.codec.schema.Tag)
	}
	row := rv.Row()
	for i, col := range b.codec.columns {
		v, present := row[col.path]
		builder := b.rb.Field(i)
		if !present || v == nil {
			builder.AppendNull()
			continue
		}
		switch col.typ {
		case FieldInt64:
			fb := builder.(*array.Int64Builder)
			iv, err := asInt64(v)
			if err != nil {
				return fmt.Errorf("ontology: field %s: %w", col.path, err)
			}
			fb.Append(iv)
			b.bytes += 8
		case FieldFloat64:
			fb := builder.(*array.Float64Builder)
			fv, err := asFloat64(v)
			if err != nil {
				return fmt.Errorf("ontology: field %s: %w", col.path, err)
			}
			fb.Append(fv)
			b.bytes += 8
		case FieldBool:
			fb := builder.(*array.BooleanBuilder)
			bv, ok := v.(bool)
			if !ok {
				return fmt.Errorf("ontology: field %s: expected bool, got %T", col.path, v)
			}
			fb.Append(bv)
			b.bytes++
		case FieldString:
			fb := builder.(*array.StringBuilder)
			sv, ok := v.(string)
			if !ok {
				return fmt.Errorf("ontology: field %s: expected string, got %T", col.path, v)
			}
			fb.Append(sv)
			b.bytes += len(sv)
		case FieldDict:
			fb := builder.(*array.StringBuilder)
			encoded, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("ontology: field %s: %w", col.path, err)
			}
			fb.Append(string(encoded))
			b.bytes += len(encoded)
		}
	}
	b.n++
	return nil
}

func (b *arrowBatchBuilder) Len() int       { return b.n }
func (b *arrowBatchBuilder) SizeBytes() int { return b.bytes }

func (b *arrowBatchBuilder) Finish() ([]byte, error) {
	rec := b.rb.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(b.codec.arrowSchema))
	if err := w.Write(rec); err != nil {
		return nil, fmt.Errorf("ontology: encode batch: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("ontology: close batch writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *arrowBatchBuilder) Release() {
	b.rb.Release()
}

// DecodeBatch reads an IPC-framed Arrow record batch back into Payload
// values. Row order is preserved; the read path depends on it.
func (c *ArrowCodec) DecodeBatch(data []byte) ([]Payload, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(c.allocator))
	if err != nil {
		return nil, fmt.Errorf("ontology: open batch reader: %w", err)
	}
	defer reader.Release()

	var out []Payload
	for reader.Next() {
		rec := reader.Record()
		n := int(rec.NumRows())
		for row := 0; row < n; row++ {
			values := make(map[string]any, len(c.columns))
			for i, col := range c.columns {
				arr := rec.Column(i)
				if arr.IsNull(row) {
					continue
				}
				switch col.typ {
				case FieldInt64:
					values[col.path] = arr.(*array.Int64).Value(row)
				case FieldFloat64:
					values[col.path] = arr.(*array.Float64).Value(row)
				case FieldBool:
					values[col.path] = arr.(*array.Boolean).Value(row)
				case FieldString:
					values[col.path] = arr.(*array.String).Value(row)
				case FieldDict:
					var v any
					raw := arr.(*array.String).Value(row)
					if err := json.Unmarshal([]byte(raw), &v); err != nil {
						return nil, fmt.Errorf("ontology: decode dict field %s: %w", col.path, err)
					}
					values[col.path] = v
				}
			}
			p, err := c.newPayload(values)
			if err != nil {
				return nil, fmt.Errorf("ontology: reconstruct payload: %w", err)
			}
			out = append(out, p)
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("ontology: read batch: %w", err)
	}
	return out, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected int64, got %T", v)
	}
}

func asFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected float64, got %T", v)
	}
}
