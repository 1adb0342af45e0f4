package main

import (
	"fmt"
	"os"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  mdforge agent run <name|id> [--doc <id>|--query <text>] [--var k=v]... [--background]")
	fmt.Fprintln(os.Stderr, "  mdforge agent <prompt> [--tags t1,t2] [--title t] [--pr] [-v]")
	fmt.Fprintln(os.Stderr, "  mdforge cascade add <text> [--title t] [--stage idea] [--auto] [--sync]")
	fmt.Fprintln(os.Stderr, "  mdforge cascade process <stage> [--doc <id>] [--sync] [--dry-run]")
	fmt.Fprintln(os.Stderr, "  mdforge cascade status")
	fmt.Fprintln(os.Stderr, "  mdforge cascade show <stage>")
	fmt.Fprintln(os.Stderr, "  mdforge cascade advance <id> [--to <stage>]")
	fmt.Fprintln(os.Stderr, "  mdforge cascade remove <id>")
	fmt.Fprintln(os.Stderr, "  mdforge cascade synthesize <stage> [--keep] [--doc <id>]...")
	fmt.Fprintln(os.Stderr, "  mdforge prime [--format text|json] [--quiet] [--verbose]")
	fmt.Fprintln(os.Stderr, "  mdforge serve [--addr host:port]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "global flags (precede the subcommand): --config <file>")
}

// exit codes: 0 success, 1 operational failure, 2 usage error.
const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	args := os.Args[1:]
	configPath := ""
	for len(args) > 0 && args[0] == "--config" {
		if len(args) < 2 {
			usage()
			os.Exit(exitUsage)
		}
		configPath = args[1]
		args = args[2:]
	}

	if len(args) < 1 {
		usage()
		os.Exit(exitUsage)
	}

	app, err := newApp(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFail)
	}
	defer app.log.Sync()

	switch args[0] {
	case "agent":
		os.Exit(app.runAgent(args[1:]))
	case "cascade":
		os.Exit(app.runCascade(args[1:]))
	case "prime":
		os.Exit(app.runPrime(args[1:]))
	case "serve":
		os.Exit(app.runServe(args[1:]))
	case "--version", "-v", "version":
		fmt.Println("mdforge (dev)")
		os.Exit(exitOK)
	default:
		usage()
		os.Exit(exitUsage)
	}
}
