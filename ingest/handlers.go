package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/regalsync/entity"
	"github.com/teranos/regalsync/errors"
	"github.com/teranos/regalsync/repository"
)

// Data stream types that get a synthetic file child on container roots
var syntheticLeafTypes = map[string]bool{
	"application/pdf": true,
	"application/zip": true,
}

// step is one repository operation on the node being materialized
type step struct {
	name string
	run  func(ctx context.Context, pid entity.PID) error
}

// walk carries the state of one tree traversal
type walk struct {
	d      *Dispatcher
	ctx    context.Context
	logger *zap.SugaredLogger
	report *Report
}

func (w *walk) repo() Repository {
	return w.d.sc.Repo
}

// dispatch runs the handler chosen for a root
func (w *walk) dispatch(e *entity.DigitalEntity, route Route) {
	switch route.Handler {
	case HandleJournal:
		w.journal(e)
	case HandleMonograph:
		w.monograph(e)
	case HandleWebsite:
		w.webpage(e, true)
	case HandleWebpageOnly:
		w.webpage(e, false)
	default:
		w.partRoute(e, route)
	}
}

// materialize runs steps in order on one node. The first failing step ends
// the node; its error is recorded and the caller moves on.
func (w *walk) materialize(pid entity.PID, typ entity.ObjectType, synthetic bool, steps ...step) bool {
	outcome := NodeOutcome{PID: pid, Type: typ, Synthetic: synthetic}
	for _, s := range steps {
		if err := w.ctx.Err(); err != nil {
			outcome.Err = errors.Wrap(err, "cancelled")
			break
		}
		if err := s.run(w.ctx, pid); err != nil {
			outcome.Err = errors.Wrap(err, s.name)
			break
		}
	}
	w.report.add(outcome)

	if outcome.Err != nil {
		w.logger.Errorw("Node failed",
			"pid", pid.String(),
			"object_type", string(typ),
			"error", outcome.Err,
		)
		return false
	}
	w.logger.Debugw("Node materialized", "pid", pid.String(), "object_type", string(typ))
	return true
}

func (w *walk) container(e *entity.DigitalEntity, typ entity.ObjectType, steps ...step) bool {
	return w.materialize(w.d.PID(e.PID), typ, false, steps...)
}

func (w *walk) createStep(e *entity.DigitalEntity, typ entity.ObjectType) step {
	return step{name: "create resource", run: func(ctx context.Context, pid entity.PID) error {
		return w.repo().CreateOrUpdateResource(ctx, w.resource(e, pid, typ))
	}}
}

func (w *walk) resource(e *entity.DigitalEntity, pid entity.PID, typ entity.ObjectType) repository.Resource {
	r := repository.Resource{
		PID:          pid,
		Type:         typ,
		CreatedBy:    e.CreatedBy,
		ImportedFrom: e.ImportedFrom,
		LegacyID:     e.LegacyID,
	}
	if r.CreatedBy == "" {
		r.CreatedBy = w.d.sc.CreatedBy
	}
	if r.ImportedFrom == "" {
		r.ImportedFrom = w.d.sc.ImportedFrom
	}
	if r.LegacyID == "" {
		r.LegacyID = e.PID
	}
	if e.ParentPID != "" {
		r.ParentPID = w.d.PID(e.ParentPID)
	}
	return r
}

func (w *walk) autoMetadataStep(e *entity.DigitalEntity) step {
	return step{name: "generate metadata", run: func(ctx context.Context, pid entity.PID) error {
		return w.repo().AutoGenerateMetadata(ctx, pid, e.Identifiers)
	}}
}

func (w *walk) discoveryStep() step {
	return step{name: "create discovery set", run: func(ctx context.Context, pid entity.PID) error {
		return w.repo().CreateDiscoverySet(ctx, pid)
	}}
}

func (w *walk) urnStep() step {
	return step{name: "add catalog identifier", run: func(ctx context.Context, pid entity.PID) error {
		return w.repo().AddCatalogIdentifier(ctx, pid, w.d.sc.URNSubnamespace)
	}}
}

func (w *walk) metadataStep(triples ...Triple) step {
	return step{name: "set metadata", run: func(ctx context.Context, pid entity.PID) error {
		return w.repo().SetMetadata(ctx, pid, NTriples(pid, triples...))
	}}
}

// sequenceStep writes the direct parts of e in order. A rootElement part
// keeps its own slot even though it is never materialized.
func (w *walk) sequenceStep(e *entity.DigitalEntity) step {
	return step{name: "create sequence", run: func(ctx context.Context, pid entity.PID) error {
		parts := e.Parts()
		children := make([]entity.PID, 0, len(parts))
		for _, p := range parts {
			children = append(children, w.d.PID(p.PID))
		}
		return w.repo().CreateOrderedSequence(ctx, pid, children)
	}}
}

func (w *walk) dataStep(e *entity.DigitalEntity) step {
	return step{name: "attach data", run: func(ctx context.Context, pid entity.PID) error {
		s, ok := e.Stream(entity.StreamData)
		if !ok {
			return nil
		}
		return w.repo().AttachDataStream(ctx, pid, s)
	}}
}

// refresh writes the container of a journal or webpage root and nothing
// below it
func (w *walk) refresh(e *entity.DigitalEntity, typ entity.ObjectType) bool {
	return w.container(e, typ,
		w.createStep(e, typ),
		w.autoMetadataStep(e),
		w.discoveryStep(),
	)
}

func (w *walk) journal(e *entity.DigitalEntity) {
	w.container(e, entity.TypeJournal,
		w.createStep(e, entity.TypeJournal),
		w.autoMetadataStep(e),
		w.discoveryStep(),
		w.sequenceStep(e),
	)
	w.parts(e)
}

func (w *walk) monograph(e *entity.DigitalEntity) {
	w.container(e, entity.TypeMonograph,
		w.createStep(e, entity.TypeMonograph),
		w.autoMetadataStep(e),
		w.urnStep(),
		w.discoveryStep(),
	)
	w.syntheticLeaf(e)
	w.parts(e)
}

// webpage materializes a website root. With versions, each part becomes a
// version leaf regardless of its own role.
func (w *walk) webpage(e *entity.DigitalEntity, versions bool) {
	w.refresh(e, entity.TypeWebpage)
	w.syntheticLeaf(e)
	if !versions {
		return
	}
	for _, p := range e.Parts() {
		w.leaf(p, entity.TypeVersion)
	}
}

func (w *walk) parts(e *entity.DigitalEntity) {
	for _, p := range e.Parts() {
		if w.ctx.Err() != nil {
			return
		}
		w.partRoute(p, ClassifyPart(p.UsageType))
	}
}

func (w *walk) partRoute(e *entity.DigitalEntity, route Route) {
	switch route.Handler {
	case HandleVolume:
		w.container(e, entity.TypeVolume,
			w.createStep(e, entity.TypeVolume),
			w.metadataStep(
				Triple{Predicate: PredicateVolume, Object: titleOf(e)},
				Triple{Predicate: PredicateTitle, Object: titleOf(e)},
			),
			w.discoveryStep(),
			w.sequenceStep(e),
		)
		w.parts(e)
	case HandleIssue:
		w.container(e, entity.TypeIssue,
			w.createStep(e, entity.TypeIssue),
			w.metadataStep(
				Triple{Predicate: PredicateIssue, Object: titleOf(e)},
				Triple{Predicate: PredicateTitle, Object: titleOf(e)},
			),
			w.discoveryStep(),
			w.sequenceStep(e),
		)
		w.parts(e)
	case HandleVersion:
		w.leaf(e, entity.TypeVersion)
	case HandleRootElement:
		w.rootElement(e)
	case HandleFallbackFile:
		w.logger.Debugw("Unknown usage type, treating as file", "pid", e.PID, "usage_type", e.UsageType)
		w.leaf(e, entity.TypeFile)
	default:
		w.leaf(e, entity.TypeFile)
	}
}

// rootElement is never materialized; its children move up to its parent
func (w *walk) rootElement(e *entity.DigitalEntity) {
	for _, p := range e.Parts() {
		if w.ctx.Err() != nil {
			return
		}
		moved := *p
		moved.ParentPID = e.ParentPID
		w.partRoute(&moved, ClassifyPart(moved.UsageType))
	}
}

func (w *walk) leaf(e *entity.DigitalEntity, typ entity.ObjectType) {
	w.container(e, typ,
		w.createStep(e, typ),
		w.dataStep(e),
		w.metadataStep(Triple{Predicate: PredicateTitle, Object: titleOf(e)}),
	)
}

// syntheticLeaf gives a root carrying a PDF or ZIP data stream a file child
// holding that stream, addressed as the root pid with "-1" appended.
func (w *walk) syntheticLeaf(e *entity.DigitalEntity) {
	s, ok := e.Stream(entity.StreamData)
	if !ok || !syntheticLeafTypes[s.MimeType] {
		return
	}
	pid := w.d.PID(e.PID).WithSuffix("-1")
	child := &entity.DigitalEntity{
		PID:          pid.ID,
		ParentPID:    e.PID,
		UsageType:    string(entity.TypeFile),
		Label:        titleOf(e),
		CreatedBy:    e.CreatedBy,
		ImportedFrom: e.ImportedFrom,
		LegacyID:     e.LegacyID,
		Streams:      map[entity.StreamKind]entity.Stream{entity.StreamData: s},
	}
	w.materialize(pid, entity.TypeFile, true,
		w.createStep(child, entity.TypeFile),
		w.dataStep(child),
		w.metadataStep(Triple{Predicate: PredicateTitle, Object: titleOf(child)}),
	)
}
