// Package engine runs one batch: it picks candidates for the chosen mode,
// pushes each through download, build and ingest, and keeps one item's
// failure from affecting the others.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/regalsync/download"
	"github.com/teranos/regalsync/entity"
	"github.com/teranos/regalsync/errors"
	"github.com/teranos/regalsync/harvest"
	"github.com/teranos/regalsync/ingest"
	"github.com/teranos/regalsync/logger"
	"github.com/teranos/regalsync/runlog"
	"github.com/teranos/regalsync/selftest"
)

// Harvester lists candidate identifiers
type Harvester interface {
	Harvest(ctx context.Context, req harvest.Request) ([]string, error)
}

// Downloader caches the source tree of one identifier
type Downloader interface {
	Download(ctx context.Context, pid string, force bool) (download.Result, error)
}

// Builder turns a cached tree into entities
type Builder interface {
	Build(cachePath, pid string) (*entity.DigitalEntity, error)
}

// Dispatcher writes entity trees to the repository
type Dispatcher interface {
	Ingest(ctx context.Context, root *entity.DigitalEntity) (*ingest.Report, error)
	Update(ctx context.Context, root *entity.DigitalEntity) (*ingest.Report, error)
	Delete(ctx context.Context, id string) error
}

// SelfTester runs the TEST mode fixtures
type SelfTester interface {
	Run(ctx context.Context) ([]selftest.Result, error)
}

// RunRecorder persists run and item outcomes
type RunRecorder interface {
	StartRun(ctx context.Context, run runlog.Run) error
	RecordItem(ctx context.Context, runID string, item runlog.Item) error
	FinishRun(ctx context.Context, run runlog.Run) error
}

// Config selects what one run does
type Config struct {
	Mode           Mode
	RunID          string // generated when empty
	Sets           []string
	Strategy       harvest.IDStrategy
	MetadataFormat string
	PIDList        string
	Workers        int // independent roots processed at once; < 1 means 1
}

// Deps are the collaborators of a run. Which ones are required depends on
// the mode; RunLog is always optional.
type Deps struct {
	Harvester  Harvester
	Downloader Downloader
	Builder    Builder
	Dispatcher Dispatcher
	SelfTest   SelfTester
	RunLog     RunRecorder
}

// ItemHook is called after every finished item
type ItemHook func(item Item, done, total int)

// Engine runs one mode over its candidates
type Engine struct {
	cfg    Config
	deps   Deps
	logger *zap.SugaredLogger
	hook   ItemHook
	now    func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithItemHook registers a callback for progress display
func WithItemHook(h ItemHook) Option {
	return func(e *Engine) { e.hook = h }
}

// New checks that deps cover cfg.Mode. Missing pieces are fatal
// configuration errors.
func New(cfg Config, deps Deps, log *zap.SugaredLogger, opts ...Option) (*Engine, error) {
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Strategy == nil {
		cfg.Strategy = harvest.DigitoolStrategy{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var missing []string
	plan := cfg.Mode.Plan()
	switch plan.Source {
	case SourceHarvest:
		if deps.Harvester == nil {
			missing = append(missing, "harvester")
		}
	case SourceList:
		if cfg.PIDList == "" {
			missing = append(missing, "identifier list")
		}
	case SourceFixtures:
		if deps.SelfTest == nil {
			missing = append(missing, "selftest")
		}
	}
	if cfg.Mode != ModeDelete && cfg.Mode != ModeTest {
		if deps.Downloader == nil {
			missing = append(missing, "downloader")
		}
		if cfg.Mode != ModeDownload && deps.Builder == nil {
			missing = append(missing, "builder")
		}
	}
	if cfg.Mode != ModeDownload && cfg.Mode != ModeTest && deps.Dispatcher == nil {
		missing = append(missing, "dispatcher")
	}
	if len(missing) > 0 {
		return nil, errors.MarkFatal(errors.Newf("mode %s needs %v", cfg.Mode, missing))
	}

	e := &Engine{
		cfg:    cfg,
		deps:   deps,
		logger: log.With(logger.FieldRunID, cfg.RunID, logger.FieldMode, string(cfg.Mode)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RunID returns the identifier of the run
func (e *Engine) RunID() string {
	return e.cfg.RunID
}

// Run executes the mode. Item failures are recorded in the returned state
// and never returned as an error; the error is non-nil only when the run
// was aborted (fatal) or cancelled. The state is nil when no candidates
// could be determined.
func (e *Engine) Run(ctx context.Context) (*RunState, error) {
	ctx = logger.WithRunID(ctx, e.cfg.RunID)
	if e.cfg.Mode == ModeTest {
		return e.runSelftest(ctx)
	}

	candidates, err := e.candidates(ctx)
	if err != nil {
		e.logger.Errorw("Run aborted before processing", logger.FieldError, err)
		return nil, err
	}

	state := newRunState(e.cfg.RunID, e.cfg.Mode, candidates, e.now())
	e.startRun(ctx, state)
	e.logger.Infow("Run started", logger.FieldTotal, len(candidates), "workers", e.cfg.Workers)

	runErr := e.runItems(ctx, state)
	e.finishRun(ctx, state, runErr)
	return state, runErr
}

func (e *Engine) candidates(ctx context.Context) ([]string, error) {
	plan := e.cfg.Mode.Plan()
	switch plan.Source {
	case SourceList:
		pids, err := ReadPIDList(e.cfg.PIDList)
		if err != nil {
			return nil, err
		}
		e.logger.Infow("Read identifier list", logger.FieldFile, e.cfg.PIDList, logger.FieldCount, len(pids))
		return pids, nil
	default:
		pids, err := e.deps.Harvester.Harvest(ctx, harvest.Request{
			Sets:           e.cfg.Sets,
			FromScratch:    plan.FromScratch,
			Strategy:       e.cfg.Strategy,
			MetadataFormat: e.cfg.MetadataFormat,
		})
		if err != nil {
			return nil, errors.MarkFatal(errors.Wrap(err, "harvest failed"))
		}
		e.logger.Infow("Harvest finished", "from_scratch", plan.FromScratch, logger.FieldCount, len(pids))
		return pids, nil
	}
}

func (e *Engine) runItems(ctx context.Context, state *RunState) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		fatalOnce sync.Once
		fatal     error
	)

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)

	total := state.Total()
	for i, pid := range state.Candidates() {
		if runCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if runCtx.Err() != nil {
				return nil
			}
			e.logger.Infow("Processing",
				logger.FieldIndex, i+1,
				logger.FieldTotal, total,
				logger.FieldPID, pid,
			)
			action, err := e.processItem(runCtx, pid)
			e.finishItem(ctx, state, i, action, err)
			if errors.IsFatal(err) {
				fatalOnce.Do(func() {
					fatal = err
					cancel()
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, it := range state.Items() {
		if it.Outcome == OutcomePending {
			e.finishItem(ctx, state, it.Position, ActionSkip, nil)
		}
	}

	if fatal != nil {
		return errors.MarkFatal(errors.Wrap(fatal, "run aborted"))
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "run cancelled")
	}
	return nil
}

// processItem handles one candidate. Panics are turned into item errors so
// a broken record cannot take the batch down.
func (e *Engine) processItem(ctx context.Context, pid string) (action Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.MarkItem(errors.Newf("panic while processing %s: %v", pid, r))
		}
	}()

	if e.cfg.Mode == ModeDelete {
		return ActionDelete, e.deps.Dispatcher.Delete(ctx, pid)
	}

	res, err := e.deps.Downloader.Download(ctx, pid, e.cfg.Mode.Plan().Force)
	if err != nil {
		return ActionDownload, errors.MarkItem(errors.Wrap(err, "download"))
	}

	action = Decide(e.cfg.Mode, res)
	e.logger.Debugw("Download signal",
		logger.FieldPID, pid,
		"downloaded", res.Downloaded,
		"updated", res.Updated,
		logger.FieldAction, string(action),
	)
	if action == ActionDownload || action == ActionSkip {
		return action, nil
	}

	root, err := e.deps.Builder.Build(res.Path, pid)
	if err != nil {
		return action, errors.MarkItem(errors.Wrap(err, "build"))
	}

	switch action {
	case ActionUpdate:
		_, err = e.deps.Dispatcher.Update(ctx, root)
	case ActionReingest:
		if derr := e.deps.Dispatcher.Delete(ctx, pid); derr != nil && !errors.IsAbsent(derr) {
			return action, derr
		}
		_, err = e.deps.Dispatcher.Ingest(ctx, root)
	default:
		_, err = e.deps.Dispatcher.Ingest(ctx, root)
	}
	return action, err
}

func (e *Engine) finishItem(ctx context.Context, state *RunState, pos int, action Action, err error) {
	outcome := OutcomeSucceeded
	switch {
	case err != nil && !errors.IsAbsent(err):
		outcome = OutcomeFailed
	case action == ActionSkip:
		outcome = OutcomeSkipped
	}
	var absent error
	if errors.IsAbsent(err) {
		absent, err = err, nil
	}

	item := state.finish(pos, action, outcome, err)
	log := logger.ChildLogger(e.logger, logger.FieldPID, item.PID, logger.FieldAction, string(action))
	if absent != nil {
		log.Debugw("Already absent", logger.FieldError, absent)
	}
	if outcome == OutcomeFailed {
		log.Errorw("Item failed",
			logger.FieldErrorKind, errors.KindOf(err).String(),
			logger.FieldError, err,
		)
	} else {
		log.Debugw("Item finished", logger.FieldOutcome, string(outcome))
	}

	if e.deps.RunLog != nil {
		rec := runlog.Item{Position: pos, PID: item.PID, Action: string(action), Outcome: string(outcome)}
		if err != nil {
			rec.Error = err.Error()
		}
		if lerr := e.deps.RunLog.RecordItem(context.WithoutCancel(ctx), e.cfg.RunID, rec); lerr != nil {
			log.Warnw("Failed to record item", logger.FieldError, lerr)
		}
	}
	if e.hook != nil {
		e.hook(item, state.Done(), state.Total())
	}
}

func (e *Engine) runSelftest(ctx context.Context) (*RunState, error) {
	results, err := e.deps.SelfTest.Run(ctx)
	roots := make([]string, len(results))
	for i, r := range results {
		roots[i] = r.Root
	}
	state := newRunState(e.cfg.RunID, e.cfg.Mode, roots, e.now())
	e.startRun(ctx, state)
	for i, r := range results {
		e.finishItem(ctx, state, i, ActionSelftest, r.Err)
	}
	if err != nil {
		err = errors.Wrap(err, "selftest")
	}
	e.finishRun(ctx, state, err)
	return state, err
}

func (e *Engine) startRun(ctx context.Context, state *RunState) {
	if e.deps.RunLog == nil {
		return
	}
	err := e.deps.RunLog.StartRun(context.WithoutCancel(ctx), runlog.Run{
		ID:        state.ID,
		Mode:      string(state.Mode),
		StartedAt: state.StartedAt,
		Total:     state.Total(),
	})
	if err != nil {
		e.logger.Warnw("Failed to record run start", logger.FieldError, err)
	}
}

func (e *Engine) finishRun(ctx context.Context, state *RunState, runErr error) {
	state.FinishedAt = e.now()
	sum := state.Summary()

	status := runlog.StatusCompleted
	switch {
	case errors.IsFatal(runErr):
		status = runlog.StatusAborted
	case runErr != nil:
		status = runlog.StatusCancelled
	}

	e.logger.Infow("Run finished",
		logger.FieldStatus, status,
		logger.FieldTotal, sum.Total,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		logger.FieldDurationMS, state.FinishedAt.Sub(state.StartedAt).Milliseconds(),
	)

	if e.deps.RunLog == nil {
		return
	}
	run := runlog.Run{
		ID:         state.ID,
		Mode:       string(state.Mode),
		StartedAt:  state.StartedAt,
		FinishedAt: &state.FinishedAt,
		Status:     status,
		Total:      sum.Total,
		Succeeded:  sum.Succeeded,
		Failed:     sum.Failed,
		Skipped:    sum.Skipped,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := e.deps.RunLog.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		e.logger.Warnw("Failed to record run end", logger.FieldError, err)
	}
}
