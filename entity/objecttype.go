package entity

import "github.com/teranos/regalsync/errors"

// ObjectType is the repository content model a node is materialized as
type ObjectType string

// The closed set of repository object types
const (
	TypeJournal     ObjectType = "journal"
	TypeVolume      ObjectType = "volume"
	TypeIssue       ObjectType = "issue"
	TypeVersion     ObjectType = "version"
	TypeFile        ObjectType = "file"
	TypeWebpage     ObjectType = "webpage"
	TypeMonograph   ObjectType = "monograph"
	TypeRootElement ObjectType = "rootElement"
)

var objectTypes = []ObjectType{
	TypeJournal, TypeVolume, TypeIssue, TypeVersion,
	TypeFile, TypeWebpage, TypeMonograph, TypeRootElement,
}

// ObjectTypes returns every known object type
func ObjectTypes() []ObjectType {
	out := make([]ObjectType, len(objectTypes))
	copy(out, objectTypes)
	return out
}

// ParseObjectType accepts only members of the closed set
func ParseObjectType(s string) (ObjectType, error) {
	for _, t := range objectTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", errors.NewInvalidRequestError("unknown object type %q", s)
}
