package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelationID_Deterministic(t *testing.T) {
	a := RelationID("Alice", "works_at", "Acme")
	b := RelationID(" alice ", "works_at", "ACME")
	assert.Equal(t, a, b, "case and whitespace must not change the ID")

	c := RelationID("Alice", "member_of", "Acme")
	assert.NotEqual(t, a, c)
}

func TestOntology_Validate(t *testing.T) {
	ont := DefaultOntology()

	tests := []struct {
		name    string
		rel     GraphRelation
		wantOK  bool
	}{
		{
			"valid triple",
			GraphRelation{Predicate: "works_at", SubjType: "Person", ObjType: "Organization"},
			true,
		},
		{
			"unknown predicate",
			GraphRelation{Predicate: "invented_by_model"},
			false,
		},
		{
			"domain mismatch",
			GraphRelation{Predicate: "works_at", SubjType: "Product", ObjType: "Organization"},
			false,
		},
		{
			"range mismatch",
			GraphRelation{Predicate: "located_in", SubjType: "Person", ObjType: "Product"},
			false,
		},
		{
			"Entity range is a wildcard",
			GraphRelation{Predicate: "relates_to", SubjType: "Concept", ObjType: "Product"},
			true,
		},
		{
			"untyped subject accepted",
			GraphRelation{Predicate: "works_at", ObjType: "Organization"},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := ont.Validate(tt.rel)
			if tt.wantOK {
				assert.Empty(t, msg)
			} else {
				assert.NotEmpty(t, msg)
			}
		})
	}
}
