package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/regalsync/am"
	"github.com/teranos/regalsync/display"
	"github.com/teranos/regalsync/engine"
	"github.com/teranos/regalsync/errors"
	"github.com/teranos/regalsync/runlog"
)

// RunsCmd inspects the run log
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect past sync runs",
	Long: `Inspect past sync runs recorded in the run log.

Every sync run records its candidates and their outcomes in the regalsync
database. The log is for operators only; no run reads it back.

Examples:
  regalsync runs ls                 # Show the 20 most recent runs
  regalsync runs ls --limit 0       # Show every run
  regalsync runs show <run-id>      # Show the items of a run
  regalsync runs show <id> --failed # Only failed items
  regalsync runs history 1750717    # Every recorded outcome of one object`,
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent runs",
	RunE:  runRunsLs,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and its items",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsHistoryCmd = &cobra.Command{
	Use:   "history <pid>",
	Short: "Show the recorded outcomes of one object, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsHistory,
}

var (
	runsLimit      int
	runsOnlyFailed bool
	runsDBPath     string
)

func init() {
	RunsCmd.PersistentFlags().StringVar(&runsDBPath, "db", "", "Database path (default from database.path)")
	RunsCmd.PersistentFlags().BoolP("json", "j", false, "Output as JSON")
	runsLsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs, 0 for all")
	runsShowCmd.Flags().BoolVar(&runsOnlyFailed, "failed", false, "Only show failed items")

	RunsCmd.AddCommand(runsLsCmd)
	RunsCmd.AddCommand(runsShowCmd)
	RunsCmd.AddCommand(runsHistoryCmd)
}

func openRunLog() (*runlog.Store, func(), error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load config")
	}
	database, err := openDatabase(cfg, runsDBPath)
	if err != nil {
		return nil, nil, err
	}
	return runlog.NewStore(database), func() { database.Close() }, nil
}

func runRunsLs(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openRunLog()
	if err != nil {
		return err
	}
	defer closeDB()

	runs, err := store.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	fmt.Printf("%-36s  %-4s  %-9s  %-19s  %6s  %6s  %6s  %6s\n",
		"ID", "MODE", "STATUS", "STARTED", "TOTAL", "OK", "FAILED", "SKIP")
	for _, r := range runs {
		fmt.Printf("%-36s  %-4s  %-9s  %-19s  %6d  %6d  %6d  %6d\n",
			r.ID, r.Mode, r.Status, r.StartedAt.Local().Format(time.DateTime),
			r.Total, r.Succeeded, r.Failed, r.Skipped)
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openRunLog()
	if err != nil {
		return err
	}
	defer closeDB()

	run, err := store.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	items, err := store.Items(cmd.Context(), run.ID)
	if err != nil {
		return err
	}
	if runsOnlyFailed {
		items = failedItems(items)
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(struct {
			Run   *runlog.Run   `json:"run"`
			Items []runlog.Item `json:"items"`
		}{run, items})
	}

	fmt.Printf("Run:      %s\n", run.ID)
	fmt.Printf("Mode:     %s\n", run.Mode)
	fmt.Printf("Status:   %s\n", run.Status)
	fmt.Printf("Started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.FinishedAt != nil {
		fmt.Printf("Finished: %s (%s)\n", run.FinishedAt.Local().Format(time.DateTime), run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}
	fmt.Printf("Counts:   %d total, %d succeeded, %d failed, %d skipped\n", run.Total, run.Succeeded, run.Failed, run.Skipped)
	if run.Error != "" {
		fmt.Printf("Error:    %s\n", run.Error)
	}
	fmt.Println()
	printItems(items)
	return nil
}

func runRunsHistory(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openRunLog()
	if err != nil {
		return err
	}
	defer closeDB()

	items, err := store.History(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(items)
	}
	if len(items) == 0 {
		fmt.Printf("No recorded outcomes for %s\n", args[0])
		return nil
	}
	printItems(items)
	return nil
}

func printItems(items []runlog.Item) {
	fmt.Printf("%5s  %-24s  %-13s  %-9s  %s\n", "#", "PID", "ACTION", "OUTCOME", "ERROR")
	for _, it := range items {
		fmt.Printf("%5d  %-24s  %-13s  %-9s  %s\n", it.Position+1, it.PID, it.Action, it.Outcome, it.Error)
	}
}

func failedItems(items []runlog.Item) []runlog.Item {
	var out []runlog.Item
	for _, it := range items {
		if it.Outcome == string(engine.OutcomeFailed) {
			out = append(out, it)
		}
	}
	return out
}
