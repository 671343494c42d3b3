package ingest

import (
	"github.com/teranos/regalsync/entity"
	"github.com/teranos/regalsync/errors"
)

// ErrUnmappedType is returned for root entities whose partition has no
// ingest route.
var ErrUnmappedType = errors.New("unmapped object type")

// Family groups legacy partitions that share an ingest shape
type Family int

const (
	FamilyUnknown Family = iota
	FamilyJournal
	FamilyMonograph
	FamilyWebsite
)

func (f Family) String() string {
	switch f {
	case FamilyJournal:
		return "journal"
	case FamilyMonograph:
		return "monograph"
	case FamilyWebsite:
		return "website"
	default:
		return "unknown"
	}
}

var partitions = map[string]Family{
	"EJO01":    FamilyJournal,
	"WPD01":    FamilyMonograph,
	"WPD02":    FamilyMonograph,
	"HSS00DZM": FamilyMonograph,
	"WSC01":    FamilyWebsite,
	"WSI01":    FamilyWebsite,
}

// FamilyOf maps a normalized partition code to its family
func FamilyOf(partition string) Family {
	return partitions[partition]
}

// Handler names the procedure that materializes a node
type Handler int

const (
	HandleJournal Handler = iota + 1
	HandleVolume
	HandleIssue
	HandleFile
	HandleVersion
	HandleFallbackFile
	HandleRootElement
	HandleMonograph
	HandleWebsite     // webpage plus its parts as version leaves
	HandleWebpageOnly // webpage container, parts not walked
)

// Key is the routing input derived from a root entity
type Key struct {
	Family   Family
	Role     string
	IsParent bool
}

// KeyOf derives the routing key of e
func KeyOf(e *entity.DigitalEntity) Key {
	return Key{Family: FamilyOf(e.Partition), Role: e.UsageType, IsParent: e.IsParent}
}

// Route is the outcome of classification
type Route struct {
	Type    entity.ObjectType
	Handler Handler
}

// Classify returns the route for a root entity. The table is closed: every
// key either maps to exactly one route or fails with ErrUnmappedType.
func Classify(k Key) (Route, error) {
	switch k.Family {
	case FamilyJournal:
		if k.IsParent {
			return Route{Type: entity.TypeJournal, Handler: HandleJournal}, nil
		}
		return ClassifyPart(k.Role), nil
	case FamilyMonograph:
		return Route{Type: entity.TypeMonograph, Handler: HandleMonograph}, nil
	case FamilyWebsite:
		if k.IsParent {
			return Route{Type: entity.TypeWebpage, Handler: HandleWebsite}, nil
		}
		return Route{Type: entity.TypeWebpage, Handler: HandleWebpageOnly}, nil
	default:
		return Route{}, errors.Wrapf(ErrUnmappedType, "family %s", k.Family)
	}
}

// ClassifyPart routes a node below a root by its role alone. Unknown roles
// fall back to a file leaf.
func ClassifyPart(role string) Route {
	switch role {
	case string(entity.TypeVolume):
		return Route{Type: entity.TypeVolume, Handler: HandleVolume}
	case string(entity.TypeIssue):
		return Route{Type: entity.TypeIssue, Handler: HandleIssue}
	case string(entity.TypeFile):
		return Route{Type: entity.TypeFile, Handler: HandleFile}
	case string(entity.TypeVersion):
		return Route{Type: entity.TypeVersion, Handler: HandleVersion}
	case string(entity.TypeRootElement):
		return Route{Type: entity.TypeRootElement, Handler: HandleRootElement}
	default:
		return Route{Type: entity.TypeFile, Handler: HandleFallbackFile}
	}
}
