package main

import (
	"fmt"
	"os"

	"github.com/mdforge/mdforge/internal/queryapi"
	"github.com/mdforge/mdforge/internal/zombie"
)

func (a *app) runServe(args []string) int {
	addr := "127.0.0.1:8080"
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--addr":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--addr requires a value")
				return exitUsage
			}
			addr = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			return exitUsage
		}
	}

	ctx, cancel := signalCancelContext()
	defer cancel()

	reconciler := zombie.New(a.execs, a.cfg.ReconcilerInterval, a.cfg.ZombieGrace, a.log)
	go reconciler.Run(ctx)

	srv := queryapi.New(queryapi.Config{Addr: addr}, a.docs, a.execs, a.runs, a.cascade, a.streams, a.log)
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFail
	}
	return exitOK
}
