package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mdforge/mdforge/internal/queryapi"
)

func (a *app) runPrime(args []string) int {
	format := "text"
	quiet := false
	verbose := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--format":
			i++
			if i >= len(args) {
				return exitUsage
			}
			format = args[i]
		case "--quiet":
			quiet = true
		case "--verbose":
			verbose = true
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			return exitUsage
		}
	}

	summary, err := queryapi.BuildPrimeSummary(a.docs, a.execs, a.runs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFail
	}

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitFail
		}
		return exitOK
	}

	if quiet {
		fmt.Printf("running=%d failed=%d\n", summary.RunningCount, summary.RecentFailures)
		return exitOK
	}

	fmt.Println("ready documents by stage:")
	for stage, count := range summary.ReadyByStage {
		fmt.Printf("  %-10s %d\n", stage, count)
	}
	fmt.Printf("running executions: %d\n", summary.RunningCount)
	fmt.Printf("recent failures:    %d\n", summary.RecentFailures)
	if summary.MostRecentRun != nil {
		fmt.Printf("most recent cascade run: #%d (%s, stage %s)\n", summary.MostRecentRun.ID, summary.MostRecentRun.Status, summary.MostRecentRun.CurrentStage)
	}
	if verbose {
		fmt.Printf("database: %s\n", a.cfg.DatabasePath)
		fmt.Printf("logs root: %s\n", a.cfg.LogsRoot)
	}
	return exitOK
}
