package selftest

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/teranos/regalsync/entity"
	"github.com/teranos/regalsync/errors"
	"github.com/teranos/regalsync/ingest"
	regallog "github.com/teranos/regalsync/logger"
	"github.com/teranos/regalsync/repository"
)

// Reader reads objects back for verification
type Reader interface {
	Read(ctx context.Context, pid entity.PID) (*repository.Resource, error)
}

// Result is the outcome of one fixture
type Result struct {
	Fixture string
	Root    string
	Checked int
	Err     error
}

// Runner executes a fixture set
type Runner struct {
	dispatcher *ingest.Dispatcher
	reader     Reader
	set        *Set
	logger     *zap.SugaredLogger
}

// NewRunner creates a runner. reader must see what the dispatcher writes.
func NewRunner(d *ingest.Dispatcher, reader Reader, set *Set, logger *zap.SugaredLogger) *Runner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{dispatcher: d, reader: reader, set: set, logger: logger}
}

// Run ingests, verifies and removes every fixture. A failing fixture is
// reported in its Result; Run itself only fails when no work can start.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	ctx = regallog.WithComponent(ctx, "selftest")
	streamDir, err := os.MkdirTemp("", "regalsync-selftest-")
	if err != nil {
		return nil, errors.MarkFatal(errors.Wrap(err, "failed to create selftest work dir"))
	}
	defer os.RemoveAll(streamDir)

	results := make([]Result, 0, len(r.set.Fixtures))
	for _, f := range r.set.Fixtures {
		if err := ctx.Err(); err != nil {
			return results, errors.Wrap(err, "selftest cancelled")
		}
		res := r.runFixture(ctx, f, streamDir)
		if res.Err != nil {
			r.logger.Errorw("Selftest fixture failed", "fixture", f.Name, "error", res.Err)
		} else {
			r.logger.Infow("Selftest fixture passed", "fixture", f.Name, "count", res.Checked)
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) runFixture(ctx context.Context, f Fixture, streamDir string) Result {
	res := Result{Fixture: f.Name, Root: f.Root}

	tree, err := r.set.Tree(f, streamDir)
	if err != nil {
		res.Err = errors.MarkItem(err)
		return res
	}

	if _, err := r.dispatcher.Ingest(ctx, tree); err != nil {
		res.Err = errors.MarkItem(errors.Wrap(err, "ingest"))
		r.cleanup(ctx, f)
		return res
	}

	var failures error
	for _, x := range f.Expect {
		if err := r.verify(ctx, x); err != nil {
			failures = errors.CombineErrors(failures, err)
			continue
		}
		res.Checked++
	}
	if failures != nil {
		res.Err = errors.MarkItem(errors.Wrap(failures, "verification"))
	}

	if err := r.cleanup(ctx, f); err != nil && res.Err == nil {
		res.Err = errors.MarkItem(err)
	}
	return res
}

func (r *Runner) verify(ctx context.Context, x Expectation) error {
	pid := r.dispatcher.PID(x.PID)
	got, err := r.reader.Read(ctx, pid)
	if err != nil {
		return errors.Wrapf(err, "expected %s", pid)
	}
	if string(got.Type) != x.Type {
		return errors.Newf("%s: type %q, want %q", pid, got.Type, x.Type)
	}
	want := entity.PID{}
	if x.Parent != "" {
		want = r.dispatcher.PID(x.Parent)
	}
	if got.ParentPID != want {
		return errors.Newf("%s: parent %q, want %q", pid, got.ParentPID, want)
	}
	return nil
}

// cleanup deletes the expected objects children first. Objects already
// gone are fine.
func (r *Runner) cleanup(ctx context.Context, f Fixture) error {
	var failures error
	for i := len(f.Expect) - 1; i >= 0; i-- {
		err := r.dispatcher.Delete(ctx, f.Expect[i].PID)
		if err != nil && !errors.IsAbsent(err) {
			failures = errors.CombineErrors(failures, err)
		}
	}
	if failures != nil {
		return errors.Wrap(failures, "cleanup")
	}
	return nil
}
