// Command mdforge-wrapper is the resident parent of every spawned assistant
// process. It exists so the execution log always gets an unambiguous start
// and stop marker even if the mdforge process that requested the spawn is
// itself killed — grounded on the wrapper-script indirection in
// original_source/emdx/services/claude_executor.py.
//
// Usage: mdforge-wrapper <execution-id> <log-file> -- <real-cmd> [args...]
//
// stdout and stderr are expected to already be redirected to <log-file> by
// the caller (internal/supervisor); the wrapper writes its lifecycle lines
// to the same fds so they interleave correctly with the child's own output.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"time"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	execID, logFile, cmdArgs, err := parseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mdforge-wrapper:", err)
		return 2
	}

	writeLifecycle(execID, "process_started", map[string]string{
		"pid": fmt.Sprintf("%d", os.Getpid()),
	})

	cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	startErr := cmd.Start()
	if startErr != nil {
		writeLifecycle(execID, "process_stopped", map[string]string{
			"exit_code": "-1",
			"error":     startErr.Error(),
		})
		return 1
	}

	waitErr := cmd.Wait()
	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	fields := map[string]string{"exit_code": fmt.Sprintf("%d", exitCode)}
	writeLifecycle(execID, "process_stopped", fields)

	_ = logFile // path is only needed by the caller; the fds are already wired.
	return 0
}

func parseArgs(args []string) (execID, logFile string, cmdArgs []string, err error) {
	if len(args) < 3 {
		return "", "", nil, fmt.Errorf("usage: mdforge-wrapper <execution-id> <log-file> -- <cmd...>")
	}
	execID, logFile = args[0], args[1]
	rest := args[2:]
	if rest[0] != "--" {
		return "", "", nil, fmt.Errorf("expected -- separator before command")
	}
	cmdArgs = rest[1:]
	if len(cmdArgs) == 0 {
		return "", "", nil, fmt.Errorf("missing real command after --")
	}
	return execID, logFile, cmdArgs, nil
}

// writeLifecycle writes a single-line, greppable lifecycle marker. It is
// deliberately not JSON: the assistant's own stdout may itself contain
// multi-line JSON, and a fixed "[mdforge-wrapper]" prefix keeps the two
// trivially distinguishable for both the log stream and a human tailing it.
func writeLifecycle(execID, event string, fields map[string]string) {
	line := fmt.Sprintf("[mdforge-wrapper] %s execution_id=%s at=%s", event, execID, time.Now().UTC().Format(time.RFC3339Nano))
	for k, v := range fields {
		line += fmt.Sprintf(" %s=%s", k, v)
	}
	fmt.Fprintln(os.Stdout, line)
}
