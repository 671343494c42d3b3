package entity

import (
	"strings"

	"github.com/teranos/regalsync/errors"
)

// PID identifies a digital object in the target repository.
// Source systems hand out bare local identifiers; the repository addresses
// objects as "namespace:id". String is the only place the two are joined.
type PID struct {
	Namespace string
	ID        string
}

// NewPID qualifies a local identifier with a namespace
func NewPID(namespace, id string) PID {
	return PID{Namespace: namespace, ID: id}
}

// ParsePID parses "namespace:id". The id may itself contain colons.
func ParsePID(s string) (PID, error) {
	ns, id, ok := strings.Cut(s, ":")
	if !ok || ns == "" || id == "" {
		return PID{}, errors.NewInvalidRequestError("malformed pid %q, want namespace:id", s)
	}
	return PID{Namespace: ns, ID: id}, nil
}

// String returns the namespace-qualified form used on the wire
func (p PID) String() string {
	if p.Namespace == "" {
		return p.ID
	}
	return p.Namespace + ":" + p.ID
}

// IsZero reports whether p carries no identifier
func (p PID) IsZero() bool {
	return p.ID == ""
}

// WithSuffix derives a sibling identifier in the same namespace, e.g. the
// synthetic "-1" file child of a monograph.
func (p PID) WithSuffix(suffix string) PID {
	return PID{Namespace: p.Namespace, ID: p.ID + suffix}
}
