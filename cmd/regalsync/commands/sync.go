package commands

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/regalsync/am"
	"github.com/teranos/regalsync/display"
	"github.com/teranos/regalsync/engine"
	"github.com/teranos/regalsync/errors"
	"github.com/teranos/regalsync/logger"
	"github.com/teranos/regalsync/runlog"
)

// SyncCmd runs one sync mode
var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync mode",
	Long: `Run one sync mode against the configured source and repository.

Modes:
  INIT  Harvest from scratch, download everything and ingest
  SYNC  Harvest changes since the last run; update changed objects, ingest new ones
  DWNL  Harvest changes and refresh the local cache only
  CONT  Harvest from scratch, ingest only what is not cached yet
  UPDT  Harvest changes, delete and re-ingest each object from the cache
  PIDL  Ingest every identifier of --list
  DELE  Delete every identifier of --list from the repository
  TEST  Ingest, verify and remove the built-in fixtures

A failing object is logged and the run continues. The command exits
non-zero only when the run is aborted (bad configuration, unreachable
OAI endpoint, unreadable identifier list) or interrupted.

Examples:
  regalsync sync --mode INIT --set ellinet --namespace edoweb
  regalsync sync --mode SYNC --workers 4
  regalsync sync --mode PIDL --list pids.txt --dry-run
  regalsync sync --mode TEST --json`,
	RunE: runSync,
}

// syncFlags maps flags onto the config keys they override
var syncFlags = map[string]string{
	"mode":      "sync.mode",
	"set":       "sync.set",
	"namespace": "sync.namespace",
	"cache":     "sync.cache_dir",
	"list":      "sync.pid_list",
	"workers":   "sync.workers",
	"dry-run":   "sync.dry_run",
}

func init() {
	f := SyncCmd.Flags()
	f.StringP("mode", "m", "", "Sync mode: "+engine.ModeNames())
	f.StringP("set", "s", "", "Comma-separated OAI sets to harvest")
	f.StringP("namespace", "n", "", "Repository namespace of created objects")
	f.String("cache", "", "Local cache directory")
	f.StringP("list", "l", "", "Identifier list for PIDL and DELE, one per line")
	f.IntP("workers", "w", 1, "Objects processed at once")
	f.Bool("dry-run", false, "Write to an in-memory repository instead of the server")
	f.BoolP("json", "j", false, "Print the run summary as JSON")

	v := am.GetViper()
	for flag, key := range syncFlags {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}
}

// syncSummary is the --json document of a finished run
type syncSummary struct {
	RunID      string         `json:"run_id"`
	Mode       string         `json:"mode"`
	Status     string         `json:"status"`
	DryRun     bool           `json:"dry_run,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Summary    engine.Summary `json:"summary"`
	Failures   []failure      `json:"failures,omitempty"`
	Objects    int            `json:"objects,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type failure struct {
	PID    string `json:"pid"`
	Action string `json:"action"`
	Error  string `json:"error"`
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.MarkFatal(errors.Wrap(err, "failed to load config"))
	}
	mode, err := engine.ParseMode(cfg.Sync.Mode)
	if err != nil {
		return err
	}
	if err := cfg.ValidateForMode(string(mode)); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()

	database, err := openDatabase(cfg, "")
	if err != nil {
		return errors.MarkFatal(err)
	}
	defer database.Close()

	w, err := wire(ctx, cfg, mode, database)
	if err != nil {
		return err
	}

	jsonOut := display.ShouldOutputJSON(cmd)
	e, err := engine.New(engineConfig(cfg, mode, runID), w.deps, logger.ComponentLogger("engine"),
		engine.WithItemHook(progressHook(jsonOut)))
	if err != nil {
		return err
	}

	if !jsonOut {
		pterm.DefaultHeader.Printf("regalsync %s", mode)
		pterm.Info.Printf("Run %s, output level %s\n", runID, logger.LevelName(logger.Verbosity))
		if cfg.Sync.DryRun {
			pterm.Warning.Println("Dry run: nothing is written to the repository")
		}
	}

	state, runErr := e.Run(ctx)
	summary := summarize(state, runErr, cfg.Sync.DryRun)
	summary.RunID = runID
	summary.Mode = string(mode)
	if w.memory != nil {
		summary.Objects = len(w.memory.PIDs())
	}

	if jsonOut {
		if err := display.OutputJSON(summary); err != nil {
			return err
		}
	} else {
		printSummary(summary)
	}
	return runErr
}

// progressHook prints failed items as they finish. Workers call it
// concurrently.
func progressHook(quiet bool) engine.ItemHook {
	var mu sync.Mutex
	return func(item engine.Item, done, total int) {
		if quiet {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		switch {
		case item.Outcome == engine.OutcomeFailed:
			pterm.Warning.Printf("[%d/%d] %s %s: %v\n", done, total, item.Action, item.PID, item.Err)
		case logger.ShouldOutput(logger.Verbosity, logger.OutputProgress):
			pterm.Printf("[%d/%d] %s %s %s\n", done, total, item.Action, item.PID, item.Outcome)
		}
	}
}

func summarize(state *engine.RunState, runErr error, dryRun bool) syncSummary {
	s := syncSummary{Status: runlog.StatusCompleted, DryRun: dryRun}
	switch {
	case errors.IsFatal(runErr):
		s.Status = runlog.StatusAborted
	case runErr != nil:
		s.Status = runlog.StatusCancelled
	}
	if runErr != nil {
		s.Error = runErr.Error()
	}
	if state == nil {
		return s
	}

	s.Summary = state.Summary()
	if !state.FinishedAt.IsZero() {
		s.DurationMS = state.FinishedAt.Sub(state.StartedAt).Milliseconds()
	}
	for _, item := range state.Items() {
		if item.Outcome != engine.OutcomeFailed {
			continue
		}
		f := failure{PID: item.PID, Action: string(item.Action)}
		if item.Err != nil {
			f.Error = item.Err.Error()
		}
		s.Failures = append(s.Failures, f)
	}
	return s
}

func printSummary(s syncSummary) {
	fmt.Println()
	fmt.Printf("%-12s %d\n", "Total", s.Summary.Total)
	fmt.Printf("%-12s %d\n", "Succeeded", s.Summary.Succeeded)
	fmt.Printf("%-12s %d\n", "Failed", s.Summary.Failed)
	fmt.Printf("%-12s %d\n", "Skipped", s.Summary.Skipped)
	fmt.Printf("%-12s %s\n", "Duration", (time.Duration(s.DurationMS) * time.Millisecond).String())
	if s.DryRun {
		fmt.Printf("%-12s %d\n", "Objects", s.Objects)
	}
	fmt.Println()

	switch {
	case s.Status == runlog.StatusAborted:
		pterm.Error.Printf("Run %s aborted\n", s.RunID)
	case s.Status == runlog.StatusCancelled:
		pterm.Warning.Printf("Run %s cancelled\n", s.RunID)
	case s.Summary.Failed > 0:
		pterm.Warning.Printf("Run %s finished with %d failed objects, see `regalsync runs show %s`\n", s.RunID, s.Summary.Failed, s.RunID)
	default:
		pterm.Success.Printf("Run %s finished\n", s.RunID)
	}
}
