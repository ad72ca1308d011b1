package query

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDuplicateField is returned when a builder already holds an expression
// for the given path. Use Between or In instead of adding two leaves for
// the same path.
var ErrDuplicateField = errors.New("query: duplicate expression path in builder")

// ErrHeterogeneousCatalogQuery is returned when a QueryOntologyCatalog
// accumulates expressions rooted at more than one ontology tag.
var ErrHeterogeneousCatalogQuery = errors.New("query: expressions span more than one ontology tag")

// Scope names which top-level resource a builder filters.
type Scope string

const (
	ScopeSequence Scope = "sequence"
	ScopeTopic    Scope = "topic"
	ScopeCatalog  Scope = "catalog"
)

// exprSet enforces the single-occurrence-per-path invariant shared by all
// three builders.
type exprSet struct {
	order []Expression
	paths map[string]struct{}
}

func newExprSet() exprSet {
	return exprSet{paths: make(map[string]struct{})}
}

func (s *exprSet) add(e Expression) error {
	if _, dup := s.paths[e.Path]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateField, e.Path)
	}
	s.paths[e.Path] = struct{}{}
	s.order = append(s.order, e)
	return nil
}

func (s exprSet) wire() []wireFilter {
	out := make([]wireFilter, len(s.order))
	for i, e := range s.order {
		out[i] = e.toWire()
	}
	return out
}

// timestampRange builds the range expression shared by every timestamp
// helper: (start, nil) → gt, (nil, end) → lt, (start, end) → between
// (inclusive).
func timestampRange(path string, start, end *int64) (Expression, bool) {
	switch {
	case start != nil && end != nil:
		return Expression{Path: path, Op: OpBetween, Value: [2]any{*start, *end}}, true
	case start != nil:
		return Expression{Path: path, Op: OpGt, Value: *start}, true
	case end != nil:
		return Expression{Path: path, Op: OpLt, Value: *end}, true
	default:
		return Expression{}, false
	}
}

// ---------------------------------------------------------------------
// QuerySequence
// ---------------------------------------------------------------------

// QuerySequence filters on Sequence.name / Sequence.user_metadata /
// Sequence.created_at.
type QuerySequence struct {
	exprs exprSet
	name  *Expression
}

// NewQuerySequence returns an empty sequence-scoped query builder.
func NewQuerySequence() *QuerySequence {
	return &QuerySequence{exprs: newExprSet()}
}

// WithName filters on exact sequence name.
func (q *QuerySequence) WithName(name string) (*QuerySequence, error) {
	return q.setName(Expression{Path: "sequence.name", Op: OpEq, Value: name})
}

// WithNameMatch filters on a pattern match of the sequence name.
func (q *QuerySequence) WithNameMatch(pattern string) (*QuerySequence, error) {
	return q.setName(Expression{Path: "sequence.name", Op: OpMatch, Value: pattern})
}

func (q *QuerySequence) setName(e Expression) (*QuerySequence, error) {
	if err := q.exprs.add(e); err != nil {
		return nil, err
	}
	q.name = &e
	return q, nil
}

// WithCreatedTimestamp filters on sequence creation time, per the (start,
// end) → gt/lt/between convention.
func (q *QuerySequence) WithCreatedTimestamp(start, end *int64) (*QuerySequence, error) {
	e, ok := timestampRange("sequence.created_at", start, end)
	if !ok {
		return q, nil
	}
	if err := q.exprs.add(e); err != nil {
		return nil, err
	}
	return q, nil
}

// WithExpression adds an expression rooted at Sequence.user_metadata.
func (q *QuerySequence) WithExpression(path string, op OpCode, value any) (*QuerySequence, error) {
	if err := q.exprs.add(Expression{Path: "sequence.user_metadata." + path, Op: op, Value: value}); err != nil {
		return nil, err
	}
	return q, nil
}

// MarshalWire serializes the builder to the platform's filter JSON.
func (q *QuerySequence) MarshalWire() ([]byte, error) {
	return json.Marshal(struct {
		Filters []wireFilter `json:"filters"`
		Scope   Scope        `json:"scope"`
	}{Filters: q.exprs.wire(), Scope: ScopeSequence})
}

// ---------------------------------------------------------------------
// QueryTopic
// ---------------------------------------------------------------------

// QueryTopic filters on Topic.name / Topic.ontology_tag /
// Topic.user_metadata / Topic.created_at.
type QueryTopic struct {
	exprs exprSet
}

// NewQueryTopic returns an empty topic-scoped query builder.
func NewQueryTopic() *QueryTopic {
	return &QueryTopic{exprs: newExprSet()}
}

// WithName filters on exact topic name.
func (q *QueryTopic) WithName(name string) (*QueryTopic, error) {
	if err := q.exprs.add(Expression{Path: "topic.name", Op: OpEq, Value: name}); err != nil {
		return nil, err
	}
	return q, nil
}

// WithNameMatch filters on a pattern match of the topic name.
func (q *QueryTopic) WithNameMatch(pattern string) (*QueryTopic, error) {
	if err := q.exprs.add(Expression{Path: "topic.name", Op: OpMatch, Value: pattern}); err != nil {
		return nil, err
	}
	return q, nil
}

// WithOntologyTag filters on the topic's ontology tag.
func (q *QueryTopic) WithOntologyTag(tag string) (*QueryTopic, error) {
	if err := q.exprs.add(Expression{Path: "topic.ontology_tag", Op: OpEq, Value: tag}); err != nil {
		return nil, err
	}
	return q, nil
}

// WithCreatedTimestamp filters on topic creation time.
func (q *QueryTopic) WithCreatedTimestamp(start, end *int64) (*QueryTopic, error) {
	e, ok := timestampRange("topic.created_at", start, end)
	if !ok {
		return q, nil
	}
	if err := q.exprs.add(e); err != nil {
		return nil, err
	}
	return q, nil
}

// WithExpression adds an expression rooted at Topic.user_metadata.
func (q *QueryTopic) WithExpression(path string, op OpCode, value any) (*QueryTopic, error) {
	if err := q.exprs.add(Expression{Path: "topic.user_metadata." + path, Op: op, Value: value}); err != nil {
		return nil, err
	}
	return q, nil
}

// MarshalWire serializes the builder to the platform's filter JSON.
func (q *QueryTopic) MarshalWire() ([]byte, error) {
	return json.Marshal(struct {
		Filters []wireFilter `json:"filters"`
		Scope   Scope        `json:"scope"`
	}{Filters: q.exprs.wire(), Scope: ScopeTopic})
}

// ---------------------------------------------------------------------
// QueryOntologyCatalog
// ---------------------------------------------------------------------

// TimestampKind selects which of a message's two timestamps a catalog query
// filters on.
type TimestampKind int

const (
	// TimestampMessage is the platform reception timestamp (Message.timestamp_ns).
	TimestampMessage TimestampKind = iota
	// TimestampData is the header's data-generation stamp.
	TimestampData
)

func (k TimestampKind) path() string {
	if k == TimestampData {
		return "message.header.stamp"
	}
	return "message.timestamp_ns"
}

// QueryOntologyCatalog filters ontology record fields; every added
// expression must share one root ontology tag.
type QueryOntologyCatalog struct {
	exprs exprSet
	tag   string
}

// NewQueryOntologyCatalog returns an empty catalog-scoped query builder.
func NewQueryOntologyCatalog() *QueryOntologyCatalog {
	return &QueryOntologyCatalog{exprs: newExprSet()}
}

// WithMessageTimestamp filters on the platform reception timestamp or the
// header's data-generation stamp, per kind.
func (q *QueryOntologyCatalog) WithMessageTimestamp(kind TimestampKind, start, end *int64) (*QueryOntologyCatalog, error) {
	e, ok := timestampRange(kind.path(), start, end)
	if !ok {
		return q, nil
	}
	if err := q.exprs.add(e); err != nil {
		return nil, err
	}
	return q, nil
}

// WithDataTimestamp is shorthand for WithMessageTimestamp(TimestampData, ...).
func (q *QueryOntologyCatalog) WithDataTimestamp(start, end *int64) (*QueryOntologyCatalog, error) {
	return q.WithMessageTimestamp(TimestampData, start, end)
}

// WithExpression adds an ontology field expression. tag identifies the
// expression's root ontology; all expressions added to one builder must
// share the same tag, or this fails with ErrHeterogeneousCatalogQuery.
func (q *QueryOntologyCatalog) WithExpression(tag string, expr Expression) (*QueryOntologyCatalog, error) {
	if q.tag == "" {
		q.tag = tag
	} else if q.tag != tag {
		return nil, fmt.Errorf("%w: %q vs %q", ErrHeterogeneousCatalogQuery, q.tag, tag)
	}
	if err := q.exprs.add(expr); err != nil {
		return nil, err
	}
	return q, nil
}

// OntologyTag returns the single ontology tag this builder is rooted at, or
// "" if no expression has been added yet.
func (q *QueryOntologyCatalog) OntologyTag() string { return q.tag }

// MarshalWire serializes the builder to the platform's filter JSON.
func (q *QueryOntologyCatalog) MarshalWire() ([]byte, error) {
	return json.Marshal(struct {
		Filters []wireFilter `json:"filters"`
		Scope   Scope        `json:"scope"`
	}{Filters: q.exprs.wire(), Scope: ScopeCatalog})
}
