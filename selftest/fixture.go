// Package selftest runs the TEST mode round trip: small fixture trees are
// ingested into the repository, read back and removed again.
package selftest

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/teranos/regalsync/entity"
	"github.com/teranos/regalsync/errors"
)

//go:embed fixtures
var embedded embed.FS

// Fixture is one self-contained tree plus the repository state it must
// produce.
type Fixture struct {
	Name     string          `toml:"name"`
	Root     string          `toml:"root"`
	Entities []FixtureEntity `toml:"entity"`
	Expect   []Expectation   `toml:"expect"`
}

// FixtureEntity describes one node of a fixture tree
type FixtureEntity struct {
	PID         string   `toml:"pid"`
	Parent      string   `toml:"parent"`
	Partition   string   `toml:"partition"`
	Usage       string   `toml:"usage"`
	IsParent    bool     `toml:"is_parent"`
	Label       string   `toml:"label"`
	Order       int      `toml:"order"`
	Identifiers []string `toml:"identifiers"`
	Data        string   `toml:"data"` // file in the fixture directory
	MimeType    string   `toml:"mime_type"`
}

// Expectation is one object that must exist after ingest
type Expectation struct {
	PID    string `toml:"pid"`
	Parent string `toml:"parent"`
	Type   string `toml:"type"`
}

type fixtureFile struct {
	Fixtures []Fixture `toml:"fixture"`
}

// Set is a loaded fixture collection and the files its entities reference
type Set struct {
	Fixtures []Fixture
	files    fs.FS
}

// DefaultSet returns the fixtures compiled into the binary
func DefaultSet() (*Set, error) {
	sub, err := fs.Sub(embedded, "fixtures")
	if err != nil {
		return nil, errors.Wrap(err, "embedded fixtures")
	}
	return LoadSet(sub)
}

// LoadDir loads fixtures from a directory on disk
func LoadDir(dir string) (*Set, error) {
	return LoadSet(os.DirFS(dir))
}

// LoadSet parses every *.toml file at the top of fsys, in name order
func LoadSet(fsys fs.FS) (*Set, error) {
	names, err := fs.Glob(fsys, "*.toml")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list fixtures")
	}
	sort.Strings(names)

	set := &Set{files: fsys}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read fixture %s", name)
		}
		var ff fixtureFile
		if _, err := toml.Decode(string(data), &ff); err != nil {
			return nil, errors.Wrapf(err, "failed to parse fixture %s", name)
		}
		for _, f := range ff.Fixtures {
			if err := f.validate(); err != nil {
				return nil, errors.Wrapf(err, "fixture %s in %s", f.Name, name)
			}
			set.Fixtures = append(set.Fixtures, f)
		}
	}
	if len(set.Fixtures) == 0 {
		return nil, errors.NewInvalidRequestError("no fixtures found")
	}
	return set, nil
}

func (f Fixture) validate() error {
	if f.Name == "" || f.Root == "" {
		return errors.NewInvalidRequestError("fixture needs name and root")
	}
	seen := make(map[string]bool)
	for _, e := range f.Entities {
		if e.PID == "" {
			return errors.NewInvalidRequestError("entity without pid")
		}
		if seen[e.PID] {
			return errors.NewInvalidRequestError("duplicate entity %s", e.PID)
		}
		seen[e.PID] = true
	}
	if !seen[f.Root] {
		return errors.NewInvalidRequestError("root %s is not an entity", f.Root)
	}
	for _, e := range f.Entities {
		if e.Parent != "" && !seen[e.Parent] {
			return errors.NewInvalidRequestError("entity %s has unknown parent %s", e.PID, e.Parent)
		}
	}
	for _, x := range f.Expect {
		if _, err := entity.ParseObjectType(x.Type); err != nil {
			return errors.Wrapf(err, "expectation for %s", x.PID)
		}
	}
	return nil
}

// Tree builds the entity tree of f. Data files are copied into streamDir
// so the repository client can upload them from disk.
func (s *Set) Tree(f Fixture, streamDir string) (*entity.DigitalEntity, error) {
	nodes := make(map[string]*entity.DigitalEntity, len(f.Entities))
	for _, fe := range f.Entities {
		e := &entity.DigitalEntity{
			PID:         fe.PID,
			Partition:   fe.Partition,
			UsageType:   fe.Usage,
			IsParent:    fe.IsParent,
			Label:       fe.Label,
			Order:       fe.Order,
			Identifiers: fe.Identifiers,
			LegacyID:    fe.PID,
		}
		if fe.Data != "" {
			p, err := s.materializeFile(fe.Data, filepath.Join(streamDir, fe.PID))
			if err != nil {
				return nil, err
			}
			e.Streams = map[entity.StreamKind]entity.Stream{
				entity.StreamData: {Kind: entity.StreamData, Path: p, FileName: path.Base(fe.Data), MimeType: fe.MimeType},
			}
		}
		nodes[fe.PID] = e
	}
	for _, fe := range f.Entities {
		if fe.Parent != "" {
			nodes[fe.Parent].AddPart(nodes[fe.PID])
		}
	}
	return nodes[f.Root], nil
}

func (s *Set) materializeFile(name, dir string) (string, error) {
	data, err := fs.ReadFile(s.files, name)
	if err != nil {
		return "", errors.Wrapf(err, "fixture data %s", name)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "failed to create fixture stream dir")
	}
	dst := filepath.Join(dir, path.Base(name))
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write fixture data %s", dst)
	}
	return dst, nil
}
