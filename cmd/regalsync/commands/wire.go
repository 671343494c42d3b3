package commands

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/teranos/regalsync/am"
	"github.com/teranos/regalsync/builder"
	"github.com/teranos/regalsync/download"
	"github.com/teranos/regalsync/engine"
	"github.com/teranos/regalsync/errors"
	"github.com/teranos/regalsync/harvest"
	"github.com/teranos/regalsync/ingest"
	"github.com/teranos/regalsync/internal/httpclient"
	"github.com/teranos/regalsync/logger"
	"github.com/teranos/regalsync/repository"
	"github.com/teranos/regalsync/runlog"
	"github.com/teranos/regalsync/selftest"
	"github.com/teranos/regalsync/source"
	"github.com/teranos/regalsync/version"
)

// backend is what the dispatcher writes to and selftest reads back from
type backend interface {
	ingest.Repository
	selftest.Reader
}

// wiring holds the collaborators of one sync run
type wiring struct {
	deps engine.Deps
	// memory is set on dry runs
	memory *repository.MemoryStore
}

// wire builds the collaborators mode needs from cfg. Every error here is
// fatal: nothing has been processed yet.
func wire(ctx context.Context, cfg *am.Config, mode engine.Mode, database *sql.DB) (*wiring, error) {
	w := &wiring{}
	plan := mode.Plan()

	if database != nil {
		w.deps.RunLog = runlog.NewStore(database)
	}

	if mode != engine.ModeDelete && mode != engine.ModeTest {
		src, err := sourceTransport(cfg)
		if err != nil {
			return nil, errors.MarkFatal(err)
		}
		w.deps.Downloader = download.New(cfg.Sync.CacheDir, source.NewClient(src), logger.ComponentLogger("download"))

		if plan.Source == engine.SourceHarvest {
			var checkpoints harvest.CheckpointStore
			if database != nil {
				checkpoints = harvest.NewSQLCheckpointStore(database)
				if cfg.Sync.DryRun {
					checkpoints = harvest.ReadOnly(checkpoints)
				}
			}
			w.deps.Harvester = harvest.NewOAIHarvester(src, cfg.Source.OAIEndpoint, checkpoints, logger.ComponentLogger("harvest"))
		}

		b, err := newBuilder(cfg)
		if err != nil {
			return nil, errors.MarkFatal(err)
		}
		w.deps.Builder = b
	}

	if mode == engine.ModeDownload {
		return w, nil
	}

	repo, err := w.target(ctx, cfg)
	if err != nil {
		return nil, errors.MarkFatal(err)
	}
	dispatcher, err := ingest.NewDispatcher(ingest.SyncContext{
		Namespace:       cfg.Sync.Namespace,
		URNSubnamespace: cfg.GetURNSubnamespace(),
		CreatedBy:       cfg.Repository.CreatedBy,
		ImportedFrom:    cfg.Repository.ImportedFrom,
		Repo:            repo,
		Logger:          logger.ComponentLogger("ingest"),
	})
	if err != nil {
		return nil, errors.MarkFatal(err)
	}
	w.deps.Dispatcher = dispatcher

	if mode == engine.ModeTest {
		set, err := fixtureSet(cfg)
		if err != nil {
			return nil, errors.MarkFatal(err)
		}
		w.deps.SelfTest = selftest.NewRunner(dispatcher, repo, set, logger.ComponentLogger("selftest"))
	}
	return w, nil
}

func sourceTransport(cfg *am.Config) (*httpclient.Client, error) {
	return httpclient.New(httpclient.Options{
		BaseURL:           cfg.Source.BaseURL,
		Timeout:           seconds(cfg.Source.TimeoutSeconds),
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
		MaxRetries:        cfg.Source.Retries,
		UserAgent:         cfg.Source.UserAgent,
		Logger:            logger.ComponentLogger("source"),
	})
}

func newBuilder(cfg *am.Config) (*builder.Builder, error) {
	var opts []builder.Option
	if cfg.Concordance.Path != "" {
		c, err := builder.LoadConcordance(cfg.Concordance.Path)
		if err != nil {
			return nil, err
		}
		logger.Logger.Infow("Loaded concordance", logger.FieldFile, cfg.Concordance.Path, logger.FieldCount, c.Len())
		opts = append(opts, builder.WithConcordance(c))
	}
	return builder.New(logger.ComponentLogger("builder"), opts...), nil
}

// target returns the repository backend. Dry runs write to memory; real
// runs check the server version and optionally seed the content models.
func (w *wiring) target(ctx context.Context, cfg *am.Config) (backend, error) {
	if cfg.Sync.DryRun {
		w.memory = repository.NewMemoryStore()
		logger.Logger.Infow("Dry run, writing to an in-memory repository")
		return w.memory, nil
	}

	log := logger.ComponentLogger("repository")
	transport, err := httpclient.New(httpclient.Options{
		BaseURL:           repositoryURL(cfg.Repository),
		Timeout:           seconds(cfg.Repository.TimeoutSeconds),
		RequestsPerSecond: cfg.Repository.RequestsPerSecond,
		MaxRetries:        cfg.Repository.Retries,
		UserAgent:         version.Get().UserAgent(),
		Username:          cfg.Repository.User,
		Password:          cfg.Repository.Password,
		Logger:            log,
	})
	if err != nil {
		return nil, err
	}
	client := repository.NewClient(transport, log)

	if err := client.CheckVersion(ctx, cfg.Repository.APIVersionConstraint); err != nil {
		return nil, err
	}
	if cfg.Repository.InitContentModels {
		if err := client.InitContentModels(ctx, cfg.Sync.Namespace); err != nil {
			return nil, errors.Wrap(err, "failed to initialize content models")
		}
	}
	return client, nil
}

func fixtureSet(cfg *am.Config) (*selftest.Set, error) {
	if cfg.Selftest.Fixtures != "" {
		return selftest.LoadDir(cfg.Selftest.Fixtures)
	}
	return selftest.DefaultSet()
}

// repositoryURL accepts a bare host or a full URL in repository.host
func repositoryURL(rc am.RepositoryConfig) string {
	if strings.Contains(rc.Host, "://") {
		return rc.Host
	}
	scheme := rc.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + rc.Host
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// engineConfig maps the sync section onto engine.Config
func engineConfig(cfg *am.Config, mode engine.Mode, runID string) engine.Config {
	return engine.Config{
		Mode:           mode,
		RunID:          runID,
		Sets:           harvest.ParseSets(cfg.Sync.Set),
		Strategy:       harvest.StrategyByName(cfg.Sync.IDStrategy),
		MetadataFormat: cfg.Sync.MetadataFormat,
		PIDList:        cfg.Sync.PIDList,
		Workers:        cfg.Sync.Workers,
	}
}
