package query

import "strings"

// ResponseItem is one sequence result: the sequence name and the relative
// paths of its matching topics (sequence prefix stripped, leading "/"
// enforced).
type ResponseItem struct {
	Sequence string
	Topics   []string
}

// NewResponseItem normalizes topics the way the wire response requires:
// the sequence name prefix is stripped and a leading "/" is enforced.
func NewResponseItem(sequence string, rawTopics []string) ResponseItem {
	topics := make([]string, len(rawTopics))
	for i, t := range rawTopics {
		t = strings.TrimPrefix(t, sequence)
		if !strings.HasPrefix(t, "/") {
			t = "/" + t
		}
		topics[i] = t
	}
	return ResponseItem{Sequence: sequence, Topics: topics}
}

// Response is the ordered, chainable query result.
type Response struct {
	Items []ResponseItem
}

// Len returns the number of items.
func (r *Response) Len() int { return len(r.Items) }

// IsEmpty reports whether the response has no items.
func (r *Response) IsEmpty() bool { return len(r.Items) == 0 }

// At returns the item at index i.
func (r *Response) At(i int) ResponseItem { return r.Items[i] }

// ToQuerySequence returns a QuerySequence restricted to the sequence names
// present in this response, via an $in filter: the restricted-query
// pattern for multi-modal correlation.
func (r *Response) ToQuerySequence() (*QuerySequence, error) {
	names := make([]any, 0, len(r.Items))
	for _, item := range r.Items {
		names = append(names, item.Sequence)
	}
	q := NewQuerySequence()
	if err := q.exprs.add(Expression{Path: "sequence.name", Op: OpIn, Value: names}); err != nil {
		return nil, err
	}
	return q, nil
}

// ToQueryTopic returns a QueryTopic restricted to the topic paths present
// in this response, via an $in filter.
func (r *Response) ToQueryTopic() (*QueryTopic, error) {
	var paths []any
	for _, item := range r.Items {
		for _, t := range item.Topics {
			paths = append(paths, t)
		}
	}
	q := NewQueryTopic()
	if err := q.exprs.add(Expression{Path: "topic.name", Op: OpIn, Value: paths}); err != nil {
		return nil, err
	}
	return q, nil
}
