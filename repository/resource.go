// Package repository talks to the target repository's REST API and offers
// an in-memory stand-in with the same surface for dry runs and tests.
package repository

import (
	"github.com/teranos/regalsync/entity"
)

// Access and publication schemes written on every resource
const (
	SchemePublic = "public"
)

// Resource is the repository-side description of one object
type Resource struct {
	PID          entity.PID
	Type         entity.ObjectType
	ParentPID    entity.PID // zero for top-level objects
	CreatedBy    string
	ImportedFrom string
	LegacyID     string
}

// resourceDoc is the JSON body of PUT /resource/{pid} and GET /resource/{pid}
type resourceDoc struct {
	PID           string        `json:"pid,omitempty"`
	ContentType   string        `json:"contentType"`
	ParentPID     string        `json:"parentPid,omitempty"`
	AccessScheme  string        `json:"accessScheme"`
	PublishScheme string        `json:"publishScheme"`
	IsDescribedBy describedByDoc `json:"isDescribedBy"`
}

type describedByDoc struct {
	CreatedBy    string `json:"createdBy,omitempty"`
	ImportedFrom string `json:"importedFrom,omitempty"`
	LegacyID     string `json:"legacyId,omitempty"`
}

func toDoc(r Resource) resourceDoc {
	doc := resourceDoc{
		ContentType:   string(r.Type),
		AccessScheme:  SchemePublic,
		PublishScheme: SchemePublic,
		IsDescribedBy: describedByDoc{
			CreatedBy:    r.CreatedBy,
			ImportedFrom: r.ImportedFrom,
			LegacyID:     r.LegacyID,
		},
	}
	if !r.ParentPID.IsZero() {
		doc.ParentPID = r.ParentPID.String()
	}
	return doc
}

func fromDoc(pid entity.PID, doc resourceDoc) Resource {
	r := Resource{
		PID:          pid,
		Type:         entity.ObjectType(doc.ContentType),
		CreatedBy:    doc.IsDescribedBy.CreatedBy,
		ImportedFrom: doc.IsDescribedBy.ImportedFrom,
		LegacyID:     doc.IsDescribedBy.LegacyID,
	}
	if doc.ParentPID != "" {
		if parent, err := entity.ParsePID(doc.ParentPID); err == nil {
			r.ParentPID = parent
		} else {
			r.ParentPID = entity.NewPID(pid.Namespace, doc.ParentPID)
		}
	}
	return r
}
