// Package entity holds the in-memory model of a legacy digital object tree.
package entity

import "sort"

// Relation names a link between two digital entities
type Relation string

const (
	// RelationPartOf links a child to its parent. The only traversed relation.
	RelationPartOf Relation = "part_of"
	// RelationManifestationOf links alternative renderings; kept, never walked.
	RelationManifestationOf Relation = "manifestation_of"
)

// StreamKind names a data stream slot on an entity
type StreamKind string

const (
	StreamData    StreamKind = "DATA"
	StreamPreview StreamKind = "PREVIEW"
)

// Stream is a data stream stored in the local cache
type Stream struct {
	Kind     StreamKind
	Path     string // local file path
	FileName string
	MimeType string
}

// DigitalEntity is one legacy object with its related entities resolved.
// PID and ParentPID are bare source identifiers; qualification with the
// target namespace happens at ingest time.
type DigitalEntity struct {
	PID          string
	Partition    string // legacy partition / collection code, e.g. EJO01
	UsageType    string // normalized role within a hierarchy, e.g. volume
	IsParent     bool
	Label        string
	Order        int
	ParentPID    string
	Identifiers  []string
	CreatedBy    string
	ImportedFrom string
	LegacyID     string
	Streams      map[StreamKind]Stream
	Related      []RelatedEntity
}

// RelatedEntity is a typed edge to another entity
type RelatedEntity struct {
	Relation Relation
	Entity   *DigitalEntity
}

// Stream returns the stream of the given kind, if present
func (e *DigitalEntity) Stream(kind StreamKind) (Stream, bool) {
	if e.Streams == nil {
		return Stream{}, false
	}
	s, ok := e.Streams[kind]
	return s, ok && s.Path != ""
}

// AddPart attaches child as a part_of relation and points its parent at e
func (e *DigitalEntity) AddPart(child *DigitalEntity) {
	child.ParentPID = e.PID
	e.Related = append(e.Related, RelatedEntity{Relation: RelationPartOf, Entity: child})
}

// Parts returns the part_of children in ascending Order. Children with
// equal Order keep the order in which they were discovered.
func (e *DigitalEntity) Parts() []*DigitalEntity {
	var parts []*DigitalEntity
	for _, rel := range e.Related {
		if rel.Relation == RelationPartOf && rel.Entity != nil {
			parts = append(parts, rel.Entity)
		}
	}
	sort.SliceStable(parts, func(i, j int) bool {
		return parts[i].Order < parts[j].Order
	})
	return parts
}

// Walk visits e and every part below it depth first, in Parts order.
// Returning false from fn stops descent below that node.
func (e *DigitalEntity) Walk(fn func(*DigitalEntity) bool) {
	if !fn(e) {
		return
	}
	for _, p := range e.Parts() {
		p.Walk(fn)
	}
}
