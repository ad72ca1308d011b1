// Package ontology implements the ontology registry and payload contract:
// a stable tag per record schema, a schema descriptor enumerating field
// paths with primitive type tags, and encode/decode to the transport's
// record-batch representation.
package ontology

import (
	"fmt"
	"sync"
)

// FieldType is one of the primitive type tags a schema field may carry.
type FieldType int

const (
	FieldInt64 FieldType = iota
	FieldFloat64
	FieldBool
	FieldString
	FieldNested
	FieldDict
	FieldContainer
)

func (t FieldType) String() string {
	switch t {
	case FieldInt64:
		return "i64"
	case FieldFloat64:
		return "f64"
	case FieldBool:
		return "bool"
	case FieldString:
		return "string"
	case FieldNested:
		return "nested"
	case FieldDict:
		return "dict"
	case FieldContainer:
		return "container"
	default:
		return "unknown"
	}
}

// FieldDescriptor describes one field of a schema. Nested records carry
// their own Fields; container (list/tuple) fields carry an Elem describing
// what they contain, but are not queryable.
type FieldDescriptor struct {
	Name   string
	Type   FieldType
	Fields []FieldDescriptor // only for FieldNested
	Elem   *FieldDescriptor  // only for FieldContainer
}

// SchemaDescriptor enumerates the field paths of an ontology payload type.
type SchemaDescriptor struct {
	Tag    string
	Fields []FieldDescriptor
}

// Walk recursively enumerates every queryable leaf path (dot-joined) in the
// schema. Container fields are skipped; nested fields recurse; dict fields
// are leaves themselves (bracket/dot access into the map happens at the
// query layer, not here).
func (s SchemaDescriptor) Walk(visit func(path string, f FieldDescriptor)) {
	var rec func(prefix string, fields []FieldDescriptor)
	rec = func(prefix string, fields []FieldDescriptor) {
		for _, f := range fields {
			path := f.Name
			if prefix != "" {
				path = prefix + "." + f.Name
			}
			switch f.Type {
			case FieldContainer:
				continue
			case FieldNested:
				rec(path, f.Fields)
			default:
				visit(path, f)
			}
		}
	}
	rec("", s.Fields)
}

// Payload is an opaque ontology record: a typed sensor/user-defined message
// body whose schema matches exactly one registered tag.
type Payload interface {
	// OntologyTag returns the stable tag identifying this payload's schema.
	OntologyTag() string
}

// Codec encodes/decodes payloads of one ontology tag to/from the transport's
// record-batch representation (package seqstream/ontology/arrow_codec.go
// supplies the Arrow-backed implementation).
type Codec interface {
	Schema() SchemaDescriptor
	// NewBatchBuilder starts an outbound batch: each Append adds one payload
	// as a row, and Finish returns the encoded bytes.
	NewBatchBuilder() BatchBuilder
	DecodeBatch(data []byte) ([]Payload, error)
}

// BatchBuilder accumulates rows for one outbound record batch.
type BatchBuilder interface {
	Append(p Payload) error
	Len() int
	SizeBytes() int
	Finish() ([]byte, error)
	Release()
}

// registryEntry pairs a schema with its codec.
type registryEntry struct {
	schema SchemaDescriptor
	codec  Codec
}

// Registry is the process-wide, populated-once-then-read-only table
// mapping tag → schema + codec.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

// NewRegistry returns an empty registry. Most programs use the package-level
// DefaultRegistry instead of constructing their own, but tests benefit from
// isolated registries.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// DefaultRegistry is populated at ontology registration time (typically in
// each ontology package's init()) and read by the rest of the SDK.
var DefaultRegistry = NewRegistry()

// Register associates a tag with its schema and codec. Safe to call
// concurrently; intended to be called once per tag, typically from an
// init() function, before any writer or streamer touches the tag.
func (r *Registry) Register(tag string, schema SchemaDescriptor, codec Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[tag] = registryEntry{schema: schema, codec: codec}
}

// Lookup resolves a tag to its schema and codec.
func (r *Registry) Lookup(tag string) (SchemaDescriptor, Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[tag]
	if !ok {
		return SchemaDescriptor{}, nil, fmt.Errorf("ontology: tag %q is not registered", tag)
	}
	return e.schema, e.codec, nil
}

// Tags returns every registered tag, for diagnostics.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.entries))
	for t := range r.entries {
		tags = append(tags, t)
	}
	return tags
}
