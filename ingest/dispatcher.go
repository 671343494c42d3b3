// Package ingest turns a built entity tree into repository objects.
//
// Classification picks a handler per root from a closed routing table;
// handlers walk the tree depth first and issue repository operations.
// A failing node is recorded in the Report and the walk continues with its
// siblings and children.
package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/regalsync/entity"
	"github.com/teranos/regalsync/errors"
	"github.com/teranos/regalsync/logger"
	"github.com/teranos/regalsync/repository"
)

// Repository is the set of target operations the handlers need.
// Implemented by repository.Client and repository.MemoryStore.
type Repository interface {
	CreateOrUpdateResource(ctx context.Context, r repository.Resource) error
	AttachDataStream(ctx context.Context, pid entity.PID, s entity.Stream) error
	SetMetadata(ctx context.Context, pid entity.PID, ntriples string) error
	CreateOrderedSequence(ctx context.Context, pid entity.PID, children []entity.PID) error
	AddCatalogIdentifier(ctx context.Context, pid entity.PID, subnamespace string) error
	CreateDiscoverySet(ctx context.Context, pid entity.PID) error
	AutoGenerateMetadata(ctx context.Context, pid entity.PID, identifiers []string) error
	Delete(ctx context.Context, pid entity.PID) error
}

// SyncContext is the immutable per-run configuration shared by every
// handler. Safe to use from several workers at once.
type SyncContext struct {
	Namespace       string
	URNSubnamespace string
	CreatedBy       string
	ImportedFrom    string
	Repo            Repository
	Logger          *zap.SugaredLogger
}

// Dispatcher routes entity trees to handlers
type Dispatcher struct {
	sc SyncContext
}

// NewDispatcher validates sc and returns a Dispatcher over it
func NewDispatcher(sc SyncContext) (*Dispatcher, error) {
	if sc.Repo == nil {
		return nil, errors.NewInvalidRequestError("sync context without repository")
	}
	if sc.Namespace == "" {
		return nil, errors.NewInvalidRequestError("sync context without namespace")
	}
	if sc.Logger == nil {
		sc.Logger = zap.NewNop().Sugar()
	}
	return &Dispatcher{sc: sc}, nil
}

// PID qualifies a bare source identifier with the run namespace
func (d *Dispatcher) PID(id string) entity.PID {
	return entity.NewPID(d.sc.Namespace, id)
}

// Ingest materializes root and everything below it. The returned error is
// nil, marked partial (some nodes failed) or marked item (nothing landed
// or the root could not be routed).
func (d *Dispatcher) Ingest(ctx context.Context, root *entity.DigitalEntity) (*Report, error) {
	route, err := Classify(KeyOf(root))
	if err != nil {
		return d.unroutable(root, err)
	}

	w := d.newWalk(ctx, root)
	d.sc.Logger.Debugw("Ingesting",
		"pid", w.report.Root.String(),
		"partition", root.Partition,
		"object_type", string(route.Type),
	)
	w.dispatch(root, route)
	return w.report, w.report.Err()
}

// Update refreshes an object already in the repository. Journal and
// website roots only get their container refreshed; a journal non-root is
// walked as a part. Everything else behaves like Ingest.
func (d *Dispatcher) Update(ctx context.Context, root *entity.DigitalEntity) (*Report, error) {
	route, err := Classify(KeyOf(root))
	if err != nil {
		return d.unroutable(root, err)
	}

	w := d.newWalk(ctx, root)
	switch route.Handler {
	case HandleJournal:
		w.refresh(root, entity.TypeJournal)
	case HandleWebsite:
		w.refresh(root, entity.TypeWebpage)
	default:
		w.dispatch(root, route)
	}
	return w.report, w.report.Err()
}

// Delete removes one object. No existence check is made first; an object
// the repository does not know is reported as an expected absence.
func (d *Dispatcher) Delete(ctx context.Context, id string) error {
	pid := d.PID(id)
	if err := d.sc.Repo.Delete(ctx, pid); err != nil {
		if errors.IsNotFoundError(err) {
			return errors.MarkAbsent(err)
		}
		return errors.MarkItem(err)
	}
	d.sc.Logger.Debugw("Deleted", "pid", pid.String())
	return nil
}

func (d *Dispatcher) unroutable(root *entity.DigitalEntity, err error) (*Report, error) {
	report := &Report{Root: d.PID(root.PID)}
	err = errors.WithDetailf(err, "partition %q usage %q", root.Partition, root.UsageType)
	return report, errors.MarkItem(errors.Wrapf(err, "cannot ingest %s", report.Root))
}

func (d *Dispatcher) newWalk(ctx context.Context, root *entity.DigitalEntity) *walk {
	return &walk{
		d:      d,
		ctx:    ctx,
		logger: logger.LoggerFromContext(ctx, d.sc.Logger).With("root", d.PID(root.PID).String()),
		report: &Report{Root: d.PID(root.PID)},
	}
}
