package query

import (
	"testing"

	"github.com/motionlake/seqstream-go/ontology"
)

func testSchema() ontology.SchemaDescriptor {
	return ontology.SchemaDescriptor{
		Tag: "test.pose",
		Fields: []ontology.FieldDescriptor{
			{Name: "position", Type: ontology.FieldNested, Fields: []ontology.FieldDescriptor{
				{Name: "x", Type: ontology.FieldFloat64},
			}},
			{Name: "valid", Type: ontology.FieldBool},
			{Name: "label", Type: ontology.FieldString},
			{Name: "attributes", Type: ontology.FieldDict},
			{Name: "raw", Type: ontology.FieldContainer, Elem: &ontology.FieldDescriptor{Type: ontology.FieldInt64}},
		},
	}
}

func TestBuildFieldTree_WalksNestedAndSkipsContainers(t *testing.T) {
	tree := BuildFieldTree(testSchema())

	if _, ok := tree["position.x"]; !ok {
		t.Error("expected position.x to be present")
	}
	if _, ok := tree["raw"]; ok {
		t.Error("expected container field to be excluded from the tree")
	}
	if leaf, ok := tree["valid"]; !ok || leaf.Kind != LeafBool {
		t.Errorf("expected valid to be a bool leaf, got %+v, ok=%v", leaf, ok)
	}
	if leaf, ok := tree["attributes"]; !ok || leaf.Kind != LeafDynamic {
		t.Errorf("expected attributes to be a dynamic leaf, got %+v, ok=%v", leaf, ok)
	}
}

func TestFieldLeaf_NumericSupportsRangeOps(t *testing.T) {
	leaf := FieldLeaf{Path: "position.x", Kind: LeafNumeric}

	if _, err := leaf.Lt(1.0); err != nil {
		t.Errorf("expected Lt to be supported on numeric leaf, got %v", err)
	}
	if _, err := leaf.Between(0.0, 10.0); err != nil {
		t.Errorf("expected Between to be supported on numeric leaf, got %v", err)
	}
	if _, err := leaf.Match("x.*"); err == nil {
		t.Error("expected Match to be rejected on a numeric leaf")
	}
}

func TestFieldLeaf_StringSupportsMatchNotRange(t *testing.T) {
	leaf := FieldLeaf{Path: "label", Kind: LeafString}

	if _, err := leaf.Match("front-*"); err != nil {
		t.Errorf("expected Match to be supported on string leaf, got %v", err)
	}
	if _, err := leaf.Lt("a"); err == nil {
		t.Error("expected Lt to be rejected on a string leaf")
	}
}

func TestFieldLeaf_BoolOnlySupportsEq(t *testing.T) {
	leaf := FieldLeaf{Path: "valid", Kind: LeafBool}

	if _, err := leaf.Eq(true); err != nil {
		t.Errorf("expected Eq to be supported on bool leaf, got %v", err)
	}
	if _, err := leaf.Neq(true); err == nil {
		t.Error("expected Neq to be rejected on a bool leaf")
	}
}

func TestFieldLeaf_DynamicSupportsAnyOp(t *testing.T) {
	tree := BuildFieldTree(testSchema())
	leaf, err := tree.Dyn("attributes", "environment.visibility")
	if err != nil {
		t.Fatalf("Dyn failed: %v", err)
	}
	if leaf.Path != "attributes.environment.visibility" {
		t.Errorf("unexpected dyn path: %q", leaf.Path)
	}
	if _, err := leaf.Between(0, 1); err != nil {
		t.Errorf("expected dynamic leaf to accept any operator, got %v", err)
	}
}

func TestFieldTree_DynRejectsNonDictField(t *testing.T) {
	tree := BuildFieldTree(testSchema())
	if _, err := tree.Dyn("label", "whatever"); err == nil {
		t.Error("expected Dyn on a non-dict field to fail")
	}
}
