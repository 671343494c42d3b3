package logger

// OutputCategory defines a category of output that can be enabled/disabled.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed.
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults    OutputCategory = iota // Run summary, command output
	OutputErrors                           // Errors with hints
	OutputUserStatus                       // Final success/failure status

	// Level 1 (-v)
	OutputProgress // "(i+1)/total" per item
	OutputStartup  // Config summary, harvest counts

	// Level 2 (-vv)
	OutputHTTPCalls // Requests against source and repository
	OutputConfig    // Config values loaded/applied
	OutputTiming    // Per-item durations

	// Level 3 (-vvv)
	OutputSQLQueries // Checkpoint and run log statements
	OutputIngestTree // Node-by-node ingest steps
)

var categoryLevels = map[OutputCategory]int{
	OutputResults:    VerbosityUser,
	OutputErrors:     VerbosityUser,
	OutputUserStatus: VerbosityUser,

	OutputProgress: VerbosityInfo,
	OutputStartup:  VerbosityInfo,

	OutputHTTPCalls: VerbosityDebug,
	OutputConfig:    VerbosityDebug,
	OutputTiming:    VerbosityDebug,

	OutputSQLQueries: VerbosityTrace,
	OutputIngestTree: VerbosityTrace,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		return verbosity >= VerbosityTrace
	}
	return verbosity >= minLevel
}
