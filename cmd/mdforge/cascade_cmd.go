package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mdforge/mdforge/internal/storage"
)

func (a *app) runCascade(args []string) int {
	if len(args) < 1 {
		usage()
		return exitUsage
	}
	switch args[0] {
	case "add":
		return a.cascadeAdd(args[1:])
	case "process":
		return a.cascadeProcess(args[1:])
	case "status":
		return a.cascadeStatus(args[1:])
	case "show":
		return a.cascadeShow(args[1:])
	case "advance":
		return a.cascadeAdvance(args[1:])
	case "remove":
		return a.cascadeRemove(args[1:])
	case "synthesize":
		return a.cascadeSynthesize(args[1:])
	default:
		usage()
		return exitUsage
	}
}

func (a *app) cascadeAdd(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "cascade add requires <text>")
		return exitUsage
	}
	content := args[0]
	title := ""
	stage := storage.StageIdea
	stop := storage.StageDone
	auto, sync := false, false

	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--title":
			i++
			if i >= len(args) {
				return exitUsage
			}
			title = args[i]
		case "--stage":
			i++
			if i >= len(args) {
				return exitUsage
			}
			st, err := storage.ParseStage(args[i])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return exitUsage
			}
			stage = st
		case "--stop":
			i++
			if i >= len(args) {
				return exitUsage
			}
			st, err := storage.ParseStage(args[i])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return exitUsage
			}
			stop = st
		case "--auto":
			auto = true
		case "--sync":
			sync = true
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			return exitUsage
		}
	}

	// --auto drives the document through the cascade and tracks the run in
	// a Cascade Run row so `cascade status`/`prime` can group its Execution
	// Records together; a plain add just files the document at a stage.
	if auto {
		runID, docID, err := a.cascade.StartRun(content, title, stage, stop, sync)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitFail
		}
		fmt.Printf("cascade_run_id=%d doc_id=%d\n", runID, docID)
		return exitOK
	}

	docID, err := a.cascade.Add(content, title, stage, false, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFail
	}
	fmt.Println(docID)
	return exitOK
}

func (a *app) cascadeProcess(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "cascade process requires <stage>")
		return exitUsage
	}
	stage, err := storage.ParseStage(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	var docID *int64
	sync := false
	dryRun := false

	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--doc":
			i++
			if i >= len(args) {
				return exitUsage
			}
			id, err := strconv.ParseInt(args[i], 10, 64)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return exitUsage
			}
			docID = &id
		case "--sync":
			sync = true
		case "--dry-run":
			dryRun = true
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			return exitUsage
		}
	}

	if dryRun {
		fmt.Printf("would process stage=%s doc=%v sync=%v\n", stage, docID, sync)
		return exitOK
	}

	res, err := a.cascade.Process(stage, docID, sync)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFail
	}
	fmt.Printf("execution_id=%d doc_id=%d\n", res.ExecutionID, res.DocID)
	return exitOK
}

func (a *app) cascadeStatus(args []string) int {
	statuses, err := a.cascade.Status()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFail
	}
	for _, s := range statuses {
		fmt.Printf("%-10s %d\n", s.Stage, s.Count)
	}
	return exitOK
}

func (a *app) cascadeShow(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "cascade show requires <stage>")
		return exitUsage
	}
	stage, err := storage.ParseStage(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	docs, err := a.cascade.Show(stage)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFail
	}
	for _, d := range docs {
		fmt.Printf("#%d\t%s\n", d.ID, d.Title)
	}
	return exitOK
}

func (a *app) cascadeAdvance(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "cascade advance requires <id>")
		return exitUsage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	var to *storage.Stage
	for i := 1; i < len(args); i++ {
		if args[i] == "--to" {
			i++
			if i >= len(args) {
				return exitUsage
			}
			st, err := storage.ParseStage(args[i])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return exitUsage
			}
			to = &st
		}
	}
	if err := a.cascade.Advance(id, to); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFail
	}
	return exitOK
}

func (a *app) cascadeRemove(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "cascade remove requires <id>")
		return exitUsage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	if err := a.cascade.Remove(id); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFail
	}
	return exitOK
}

func (a *app) cascadeSynthesize(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "cascade synthesize requires <stage>")
		return exitUsage
	}
	stage, err := storage.ParseStage(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	keep := false
	var sourceIDs []int64
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--keep":
			keep = true
		case "--doc":
			i++
			if i >= len(args) {
				return exitUsage
			}
			id, err := strconv.ParseInt(args[i], 10, 64)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return exitUsage
			}
			sourceIDs = append(sourceIDs, id)
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			return exitUsage
		}
	}

	newID, err := a.cascade.Synthesize(stage, sourceIDs, keep)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFail
	}
	fmt.Println(newID)
	return exitOK
}

// parseKV parses "k=v" flag values repeated via --var, used by agent run.
func parseKV(pairs []string) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		parts := strings.SplitN(p, "=", 2)
		if len(parts) != 2 {
			continue
		}
		out[parts[0]] = parts[1]
	}
	return out
}
