package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/regalsync/am"
	"github.com/teranos/regalsync/cmd/regalsync/commands"
	"github.com/teranos/regalsync/logger"
)

var rootCmd = &cobra.Command{
	Use:   "regalsync",
	Short: "regalsync - migrate legacy digital objects into the repository",
	Long: `regalsync - migrate legacy digital objects into the repository.

regalsync harvests identifiers from the legacy source system, mirrors each
object tree into a local cache, builds it and ingests it into the target
repository according to the selected mode.

Available commands:
  sync    - Run one sync mode (INIT, SYNC, DWNL, CONT, UPDT, PIDL, DELE, TEST)
  runs    - Inspect past runs recorded in the run log
  am      - Manage regalsync configuration ("I am")
  version - Show version information

Examples:
  regalsync sync --mode INIT --set ellinet  # Harvest and ingest a set from scratch
  regalsync sync --mode PIDL --list pids.txt
  regalsync runs ls                         # Show recent runs
  regalsync am show                         # Show current configuration`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			return am.UseConfigFile(path)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines to stderr")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Additional config file, merged over the discovered ones")

	rootCmd.AddCommand(commands.SyncCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		commands.PrintError(err)
		logger.Cleanup()
		os.Exit(commands.ExitCode(err))
	}
}
