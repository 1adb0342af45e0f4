// Package mdferrors defines the error kinds that may cross a component
// boundary, per the error handling design: callers use errors.Is against
// these sentinels, and every wrapped error carries %w so the sentinel
// survives.
package mdferrors

import "errors"

var (
	// ErrEnvironmentInvalid means pre-spawn validation found the external
	// binary (or a required sub-binary) missing from PATH. No execution
	// record is created for this error.
	ErrEnvironmentInvalid = errors.New("environment invalid")

	// ErrSpawnFailed means the OS refused to start the wrapper process.
	ErrSpawnFailed = errors.New("spawn failed")

	// ErrTimeout means a sync wait or a stage deadline elapsed.
	ErrTimeout = errors.New("timeout")

	// ErrZombie means the reconciler found a stale running record.
	ErrZombie = errors.New("zombie process")

	// ErrChildError means the terminal JSON line reported is_error=true.
	ErrChildError = errors.New("child reported error")

	// ErrNotFound means a requested row does not exist in a store.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState means an operation was attempted against a record in
	// a state that does not permit it (e.g. advancing a document to an
	// earlier stage, processing a document that is not at the requested
	// stage, synthesizing from a single source).
	ErrInvalidState = errors.New("invalid state")
)
