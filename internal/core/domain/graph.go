package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// EntityTypeAny is the wildcard entity type accepted by any range.
const EntityTypeAny = "Entity"

// GraphEntity is one extracted entity, serialised to graph/entities.jsonl.
type GraphEntity struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	Aliases []string       `json:"aliases,omitempty"`
	Refs    map[string]any `json:"source_refs,omitempty"`
}

// GraphRelation is one (subject, predicate, object) triple.
type GraphRelation struct {
	ID        string         `json:"id"`
	Subject   string         `json:"subj"`
	Predicate string         `json:"predicate"`
	Object    string         `json:"obj"`
	SubjType  string         `json:"subj_type,omitempty"`
	ObjType   string         `json:"obj_type,omitempty"`
	Refs      map[string]any `json:"source_refs,omitempty"`

	// ValidationError is set only on rows routed to relations_invalid.jsonl.
	ValidationError string `json:"_validation_error,omitempty"`
}

// RelationID derives the deterministic identifier for a triple. The same
// (subj, predicate, obj) always hashes to the same ID.
func RelationID(subj, predicate, obj string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(subj))))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(predicate))))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(obj))))
	return "rel_" + hex.EncodeToString(h.Sum(nil))[:24]
}

// OntologyPredicate declares a valid predicate with its domain and range
// entity types.
type OntologyPredicate struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Range  string `json:"range"`
}

// Ontology is the schema relations are validated against, stored as
// graph/ontology.json.
type Ontology struct {
	EntityTypes []string            `json:"entity_types"`
	Predicates  []OntologyPredicate `json:"predicates"`
}

// DefaultOntology seeds a generic schema when no domain ontology exists.
func DefaultOntology() *Ontology {
	return &Ontology{
		EntityTypes: []string{
			EntityTypeAny, "Person", "Organization", "Project",
			"Product", "Location", "Event", "Concept",
		},
		Predicates: []OntologyPredicate{
			{Name: "works_at", Domain: "Person", Range: "Organization"},
			{Name: "member_of", Domain: "Person", Range: EntityTypeAny},
			{Name: "part_of", Domain: EntityTypeAny, Range: EntityTypeAny},
			{Name: "located_in", Domain: EntityTypeAny, Range: "Location"},
			{Name: "relates_to", Domain: EntityTypeAny, Range: EntityTypeAny},
			{Name: "produces", Domain: "Organization", Range: "Product"},
			{Name: "participates_in", Domain: "Person", Range: "Event"},
			{Name: "mentions", Domain: EntityTypeAny, Range: EntityTypeAny},
		},
	}
}

// Validate checks a relation against the ontology: the predicate must be
// declared, the subject type must match its domain, and the object type its
// range. An "Entity" domain or range accepts any type. Returns "" when valid.
func (o *Ontology) Validate(rel GraphRelation) string {
	var pred *OntologyPredicate
	for i := range o.Predicates {
		if o.Predicates[i].Name == rel.Predicate {
			pred = &o.Predicates[i]
			break
		}
	}
	if pred == nil {
		return "unknown predicate: " + rel.Predicate
	}
	if pred.Domain != EntityTypeAny && rel.SubjType != "" && rel.SubjType != pred.Domain {
		return "subject type " + rel.SubjType + " outside domain " + pred.Domain
	}
	if pred.Range != EntityTypeAny && rel.ObjType != "" && rel.ObjType != pred.Range {
		return "object type " + rel.ObjType + " outside range " + pred.Range
	}
	return ""
}
