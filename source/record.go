// Package source talks to the legacy system's record API and defines the
// JSON record format written to the local cache.
package source

import (
	"encoding/json"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/teranos/regalsync/errors"
)

// Record is one legacy object as delivered by GET /records/{pid}
type Record struct {
	PID          string      `json:"pid"`
	Partition    string      `json:"partition"`
	UsageType    string      `json:"usage_type"`
	IsParent     bool        `json:"is_parent"`
	Label        string      `json:"label"`
	Order        *int        `json:"order,omitempty"`
	ParentPID    string      `json:"parent_pid,omitempty"`
	Identifiers  []string    `json:"identifiers,omitempty"`
	CreatedBy    string      `json:"created_by,omitempty"`
	ImportedFrom string      `json:"imported_from,omitempty"`
	LegacyID     string      `json:"legacy_id,omitempty"`
	Relations    []Relation  `json:"relations,omitempty"`
	Streams      []StreamRef `json:"streams,omitempty"`
}

// Relation points at another record
type Relation struct {
	Relation string `json:"relation"`
	PID      string `json:"pid"`
	Order    *int   `json:"order,omitempty"`
}

// StreamRef describes a downloadable data stream
type StreamRef struct {
	Kind     string `json:"kind"`
	URL      string `json:"url"`
	File     string `json:"file,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// RelationPartOf is the relation name of hierarchy edges
const RelationPartOf = "part_of"

// Parse decodes a record and checks it carries a pid
func Parse(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "malformed source record")
	}
	if strings.TrimSpace(r.PID) == "" {
		return nil, errors.New("source record has no pid")
	}
	return &r, nil
}

// PartPIDs lists part_of children in declaration order
func (r *Record) PartPIDs() []string {
	var pids []string
	for _, rel := range r.Relations {
		if rel.Relation == RelationPartOf && rel.PID != "" {
			pids = append(pids, rel.PID)
		}
	}
	return pids
}

// FileName returns the cache file name of a stream: the declared name, else
// the last URL path segment, else the stream kind.
func (s StreamRef) FileName() string {
	name := s.File
	if name == "" {
		if u, err := url.Parse(s.URL); err == nil {
			name = path.Base(u.Path)
		}
	}
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "" || name == "/" || name == "." {
		name = strings.ToLower(s.Kind)
	}
	if name == "" {
		name = "stream"
	}
	return name
}

// RecordPath is where a record of the tree rooted at root is cached
func RecordPath(root, pid string) string {
	return filepath.Join(root, safeName(pid)+".json")
}

// StreamPath is where a stream of pid is cached
func StreamPath(root, pid string, s StreamRef) string {
	return filepath.Join(root, "streams", safeName(pid), s.FileName())
}

// CacheDir is the per-PID directory below the cache root
func CacheDir(cacheRoot, pid string) string {
	return filepath.Join(cacheRoot, safeName(pid))
}

func safeName(pid string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(pid)
}
