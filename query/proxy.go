// Package query implements the typed query builder: a schema-introspecting
// field tree with operator-constrained leaves, the expression values those
// leaves produce, and the three builders that serialize to the platform's
// filter JSON.
package query

import (
	"fmt"

	"github.com/motionlake/seqstream-go/ontology"
)

// LeafKind is the operator family a field path supports, derived from its
// ontology.FieldType.
type LeafKind int

const (
	LeafNumeric LeafKind = iota
	LeafString
	LeafBool
	LeafDynamic
)

// FieldLeaf is a typed handle on one queryable attribute path. Its methods
// produce Expression values; none of them have side effects.
type FieldLeaf struct {
	Path string
	Kind LeafKind
}

func leafKindOf(t ontology.FieldType) (LeafKind, bool) {
	switch t {
	case ontology.FieldInt64, ontology.FieldFloat64:
		return LeafNumeric, true
	case ontology.FieldString:
		return LeafString, true
	case ontology.FieldBool:
		return LeafBool, true
	case ontology.FieldDict:
		return LeafDynamic, true
	default: // FieldNested recurses in Walk, FieldContainer is skipped
		return 0, false
	}
}

// FieldTree maps dot-joined attribute paths to their leaf, generated once
// per registered ontology tag by walking its SchemaDescriptor.
type FieldTree map[string]FieldLeaf

// BuildFieldTree walks schema and returns the path → leaf mapping. Typically
// called once, at ontology registration time, and cached by the caller.
func BuildFieldTree(schema ontology.SchemaDescriptor) FieldTree {
	tree := make(FieldTree)
	schema.Walk(func(path string, f ontology.FieldDescriptor) {
		kind, ok := leafKindOf(f.Type)
		if !ok {
			return
		}
		tree[path] = FieldLeaf{Path: path, Kind: kind}
	})
	return tree
}

// Dyn returns a leaf for a bracket-accessed dynamic key under a dict-shaped
// field (e.g. Q.x["environment.visibility"]), supporting dot notation for
// nested map traversal within the key itself.
func (t FieldTree) Dyn(dictPath, key string) (FieldLeaf, error) {
	base, ok := t[dictPath]
	if !ok || base.Kind != LeafDynamic {
		return FieldLeaf{}, fmt.Errorf("query: %q is not a dict-shaped field", dictPath)
	}
	return FieldLeaf{Path: dictPath + "." + key, Kind: LeafDynamic}, nil
}

func unsupportedOp(l FieldLeaf, op OpCode) error {
	return fmt.Errorf("query: operator %s is not valid on field %q", op, l.Path)
}

func (l FieldLeaf) supports(op OpCode) bool {
	if l.Kind == LeafDynamic {
		return true // dynamic leaves accept every operator, no type check
	}
	switch l.Kind {
	case LeafNumeric:
		switch op {
		case OpEq, OpNeq, OpLt, OpLeq, OpGt, OpGeq, OpBetween, OpIn:
			return true
		}
	case LeafString:
		switch op {
		case OpEq, OpNeq, OpMatch, OpIn:
			return true
		}
	case LeafBool:
		return op == OpEq
	}
	return false
}

// Eq builds an equality expression.
func (l FieldLeaf) Eq(v any) (Expression, error) { return l.build(OpEq, v) }

// Neq builds an inequality expression.
func (l FieldLeaf) Neq(v any) (Expression, error) { return l.build(OpNeq, v) }

// Lt builds a less-than expression (numeric leaves only).
func (l FieldLeaf) Lt(v any) (Expression, error) { return l.build(OpLt, v) }

// Leq builds a less-than-or-equal expression (numeric leaves only).
func (l FieldLeaf) Leq(v any) (Expression, error) { return l.build(OpLeq, v) }

// Gt builds a greater-than expression (numeric leaves only).
func (l FieldLeaf) Gt(v any) (Expression, error) { return l.build(OpGt, v) }

// Geq builds a greater-than-or-equal expression (numeric leaves only).
func (l FieldLeaf) Geq(v any) (Expression, error) { return l.build(OpGeq, v) }

// Between builds an inclusive range expression (numeric leaves only).
func (l FieldLeaf) Between(min, max any) (Expression, error) {
	return l.build(OpBetween, [2]any{min, max})
}

// In builds a set-membership expression (numeric and string leaves).
func (l FieldLeaf) In(values ...any) (Expression, error) { return l.build(OpIn, values) }

// Match builds a pattern-match expression (string leaves only).
func (l FieldLeaf) Match(pattern string) (Expression, error) { return l.build(OpMatch, pattern) }

func (l FieldLeaf) build(op OpCode, v any) (Expression, error) {
	if !l.supports(op) {
		return Expression{}, unsupportedOp(l, op)
	}
	return Expression{Path: l.Path, Op: op, Value: v}, nil
}
