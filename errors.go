package rerun

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-rerun/exitcodes"
	"github.com/ethereum-optimism/infra/op-rerun/types"
)

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include an unreadable plan, a missing test directory, a broken sink.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// CheckFailureError reports a run whose checks still failed after every
// allowed rerun (exit code 1).
type CheckFailureError struct {
	RunID string
	Stats types.Stats
}

func (e *CheckFailureError) Error() string {
	return fmt.Sprintf("check failure in run %s: %s", e.RunID, e.Stats.String())
}

// NewCheckFailureError creates a new CheckFailureError
func NewCheckFailureError(runID string, stats types.Stats) *CheckFailureError {
	return &CheckFailureError{RunID: runID, Stats: stats}
}

// IsCheckFailureError checks if the error is or wraps a CheckFailureError
func IsCheckFailureError(err error) bool {
	var checkErr *CheckFailureError
	return err != nil && errors.As(err, &checkErr)
}

// ExitCode maps an error returned by the service to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case IsRuntimeError(err):
		return exitcodes.RuntimeErr
	default:
		return exitcodes.CheckFailure
	}
}
