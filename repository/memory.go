package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/teranos/regalsync/entity"
	"github.com/teranos/regalsync/errors"
)

// Call records one operation against a MemoryStore
type Call struct {
	Op  string
	PID string
	Arg string
}

// MemoryStore is a concurrency-safe in-memory repository. It keeps the last
// written state per object and a log of every call.
type MemoryStore struct {
	mu          sync.Mutex
	resources   map[string]Resource
	streams     map[string]entity.Stream
	metadata    map[string]string
	sequences   map[string][]string
	urns        map[string]string
	oaiSets     map[string]bool
	identifiers map[string][]string
	calls       []Call
	failures    map[string]error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		resources:   make(map[string]Resource),
		streams:     make(map[string]entity.Stream),
		metadata:    make(map[string]string),
		sequences:   make(map[string][]string),
		urns:        make(map[string]string),
		oaiSets:     make(map[string]bool),
		identifiers: make(map[string][]string),
		failures:    make(map[string]error),
	}
}

// FailOn makes every later op on pid return err. op "" matches all operations.
func (m *MemoryStore) FailOn(op string, pid entity.PID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+"|"+pid.String()] = err
}

func (m *MemoryStore) record(op string, pid entity.PID, arg string) error {
	m.calls = append(m.calls, Call{Op: op, PID: pid.String(), Arg: arg})
	if err, ok := m.failures[op+"|"+pid.String()]; ok {
		return err
	}
	if err, ok := m.failures["|"+pid.String()]; ok {
		return err
	}
	return nil
}

func (m *MemoryStore) requireResource(pid entity.PID) error {
	if _, ok := m.resources[pid.String()]; !ok {
		return errors.NewNotFoundError("resource %s", pid)
	}
	return nil
}

func (m *MemoryStore) CreateOrUpdateResource(ctx context.Context, r Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("resource", r.PID, string(r.Type)); err != nil {
		return err
	}
	m.resources[r.PID.String()] = r
	return nil
}

func (m *MemoryStore) AttachDataStream(ctx context.Context, pid entity.PID, s entity.Stream) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("data", pid, s.MimeType); err != nil {
		return err
	}
	if err := m.requireResource(pid); err != nil {
		return err
	}
	m.streams[pid.String()] = s
	return nil
}

func (m *MemoryStore) SetMetadata(ctx context.Context, pid entity.PID, ntriples string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("metadata", pid, ntriples); err != nil {
		return err
	}
	if err := m.requireResource(pid); err != nil {
		return err
	}
	m.metadata[pid.String()] = ntriples
	return nil
}

func (m *MemoryStore) CreateOrderedSequence(ctx context.Context, pid entity.PID, children []entity.PID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := make([]string, len(children))
	for i, c := range children {
		seq[i] = c.String()
	}
	if err := m.record("parts", pid, joinPIDs(seq)); err != nil {
		return err
	}
	if err := m.requireResource(pid); err != nil {
		return err
	}
	m.sequences[pid.String()] = seq
	return nil
}

func (m *MemoryStore) AddCatalogIdentifier(ctx context.Context, pid entity.PID, subnamespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("urn", pid, subnamespace); err != nil {
		return err
	}
	if err := m.requireResource(pid); err != nil {
		return err
	}
	if _, ok := m.urns[pid.String()]; !ok {
		m.urns[pid.String()] = "urn:nbn:de:" + subnamespace + "-" + pid.ID
	}
	return nil
}

func (m *MemoryStore) CreateDiscoverySet(ctx context.Context, pid entity.PID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("oaisets", pid, ""); err != nil {
		return err
	}
	if err := m.requireResource(pid); err != nil {
		return err
	}
	m.oaiSets[pid.String()] = true
	return nil
}

func (m *MemoryStore) AutoGenerateMetadata(ctx context.Context, pid entity.PID, identifiers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("lobidify", pid, joinPIDs(identifiers)); err != nil {
		return err
	}
	if err := m.requireResource(pid); err != nil {
		return err
	}
	m.identifiers[pid.String()] = append([]string(nil), identifiers...)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, pid entity.PID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("delete", pid, ""); err != nil {
		return err
	}
	if err := m.requireResource(pid); err != nil {
		return err
	}
	key := pid.String()
	delete(m.resources, key)
	delete(m.streams, key)
	delete(m.metadata, key)
	delete(m.sequences, key)
	delete(m.urns, key)
	delete(m.oaiSets, key)
	delete(m.identifiers, key)
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, pid entity.PID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("exists", pid, ""); err != nil {
		return false, err
	}
	_, ok := m.resources[pid.String()]
	return ok, nil
}

func (m *MemoryStore) Read(ctx context.Context, pid entity.PID) (*Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("read", pid, ""); err != nil {
		return nil, err
	}
	r, ok := m.resources[pid.String()]
	if !ok {
		return nil, errors.NewNotFoundError("resource %s", pid)
	}
	return &r, nil
}

// Resource returns the stored resource for pid
func (m *MemoryStore) Resource(pid string) (Resource, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resources[pid]
	return r, ok
}

// PIDs returns every stored pid, sorted
func (m *MemoryStore) PIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	pids := make([]string, 0, len(m.resources))
	for pid := range m.resources {
		pids = append(pids, pid)
	}
	sort.Strings(pids)
	return pids
}

// Sequence returns the ordered parts of pid
func (m *MemoryStore) Sequence(pid string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sequences[pid]...)
}

// Metadata returns the N-Triples last set on pid
func (m *MemoryStore) Metadata(pid string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metadata[pid]
}

// DataStream returns the stream attached to pid
func (m *MemoryStore) DataStream(pid string) (entity.Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[pid]
	return s, ok
}

// URN returns the catalog identifier minted for pid
func (m *MemoryStore) URN(pid string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.urns[pid]
}

// InDiscoverySet reports whether pid was added to the OAI sets
func (m *MemoryStore) InDiscoverySet(pid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.oaiSets[pid]
}

// Calls returns a copy of the call log
func (m *MemoryStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsFor returns the operations issued for pid, in order
func (m *MemoryStore) CallsFor(pid string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ops []string
	for _, c := range m.calls {
		if c.PID == pid {
			ops = append(ops, c.Op)
		}
	}
	return ops
}

// Snapshot returns a comparable view of the stored state, used to check
// that re-running an ingest converges.
func (m *MemoryStore) Snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for pid, r := range m.resources {
		out[pid+"#type"] = string(r.Type)
		out[pid+"#parent"] = r.ParentPID.String()
	}
	for pid, md := range m.metadata {
		out[pid+"#metadata"] = md
	}
	for pid, seq := range m.sequences {
		out[pid+"#parts"] = joinPIDs(seq)
	}
	for pid, s := range m.streams {
		out[pid+"#data"] = s.Path
	}
	for pid, urn := range m.urns {
		out[pid+"#urn"] = urn
	}
	return out
}

func joinPIDs(pids []string) string {
	return strings.Join(pids, ",")
}
