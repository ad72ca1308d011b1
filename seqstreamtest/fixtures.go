package seqstreamtest

import (
	"fmt"

	"github.com/motionlake/seqstream-go/ontology"
)

// ScalarOntologyTag is the tag registered for the Scalar fixture payload.
const ScalarOntologyTag = "test.scalar"

// Scalar is a minimal single-float payload, matching the Scalar{v: f64}
// fixture used throughout the platform's worked examples.
type Scalar struct {
	V float64
}

// OntologyTag implements ontology.Payload.
func (Scalar) OntologyTag() string { return ScalarOntologyTag }

// Row implements ontology.RowValuer.
func (s Scalar) Row() map[string]any { return map[string]any{"v": s.V} }

func scalarSchema() ontology.SchemaDescriptor {
	return ontology.SchemaDescriptor{
		Tag: ScalarOntologyTag,
		Fields: []ontology.FieldDescriptor{
			{Name: "v", Type: ontology.FieldFloat64},
		},
	}
}

func newScalar(row map[string]any) (ontology.Payload, error) {
	v, ok := row["v"]
	if !ok {
		return Scalar{}, nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("seqstreamtest: scalar field v: expected float64, got %T", v)
	}
	return Scalar{V: f}, nil
}

// PoseOntologyTag is the tag registered for the Pose fixture payload, a
// richer record exercising nested fields and a dict column.
const PoseOntologyTag = "test.pose"

// Pose is a nested-record fixture with a position, a validity flag, a
// frame label, and an open-ended attribute dict.
type Pose struct {
	X, Y, Z    float64
	Valid      bool
	Label      string
	Attributes map[string]any
}

// OntologyTag implements ontology.Payload.
func (Pose) OntologyTag() string { return PoseOntologyTag }

// Row implements ontology.RowValuer.
func (p Pose) Row() map[string]any {
	return map[string]any{
		"position.x": p.X,
		"position.y": p.Y,
		"position.z": p.Z,
		"valid":      p.Valid,
		"label":      p.Label,
		"attributes": p.Attributes,
	}
}

func poseSchema() ontology.SchemaDescriptor {
	return ontology.SchemaDescriptor{
		Tag: PoseOntologyTag,
		Fields: []ontology.FieldDescriptor{
			{Name: "position", Type: ontology.FieldNested, Fields: []ontology.FieldDescriptor{
				{Name: "x", Type: ontology.FieldFloat64},
				{Name: "y", Type: ontology.FieldFloat64},
				{Name: "z", Type: ontology.FieldFloat64},
			}},
			{Name: "valid", Type: ontology.FieldBool},
			{Name: "label", Type: ontology.FieldString},
			{Name: "attributes", Type: ontology.FieldDict},
		},
	}
}

func newPose(row map[string]any) (ontology.Payload, error) {
	p := Pose{Attributes: map[string]any{}}
	if v, ok := row["position.x"].(float64); ok {
		p.X = v
	}
	if v, ok := row["position.y"].(float64); ok {
		p.Y = v
	}
	if v, ok := row["position.z"].(float64); ok {
		p.Z = v
	}
	if v, ok := row["valid"].(bool); ok {
		p.Valid = v
	}
	if v, ok := row["label"].(string); ok {
		p.Label = v
	}
	if v, ok := row["attributes"].(map[string]any); ok {
		p.Attributes = v
	}
	return p, nil
}

// RegisterFixtures registers the Scalar and Pose fixture ontologies into r,
// for use by tests that need a populated registry without depending on
// whatever a calling program registers at init time.
func RegisterFixtures(r *ontology.Registry) {
	r.Register(ScalarOntologyTag, scalarSchema(), ontology.NewArrowCodec(scalarSchema(), newScalar))
	r.Register(PoseOntologyTag, poseSchema(), ontology.NewArrowCodec(poseSchema(), newPose))
}

func init() {
	RegisterFixtures(ontology.DefaultRegistry)
}
