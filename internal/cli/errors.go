package cli

import (
	"errors"
	"fmt"

	"shipyard/internal/api"
)

// SyncFailedError reports a run that finished without reaching Succeeded.
type SyncFailedError struct {
	RunID  string
	Status api.SyncStatus
	// Reason is the run error, empty for partial failures.
	Reason string
}

// Error returns the run outcome with guidance to inspect it.
func (e *SyncFailedError) Error() string {
	msg := fmt.Sprintf("sync %s finished %s", e.RunID, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg + fmt.Sprintf("\n\nTo see every action of this run:\n  shipyard status %s", e.RunID)
}

// Partial reports whether some actions succeeded.
func (e *SyncFailedError) Partial() bool {
	return e.Status == api.SyncStatusPartiallyFailed
}

// Is allows errors.Is() to work with wrapped errors.
func (e *SyncFailedError) Is(target error) bool {
	_, ok := target.(*SyncFailedError)
	return ok
}

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeSyncFailed indicates the run ended Failed.
	ExitCodeSyncFailed = 2
	// ExitCodePartiallyFailed indicates the run ended PartiallyFailed.
	ExitCodePartiallyFailed = 3
	// ExitCodeLocked indicates another run holds the instance lease.
	ExitCodeLocked = 4
)

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var syncErr *SyncFailedError
	if errors.As(err, &syncErr) {
		if syncErr.Partial() {
			return ExitCodePartiallyFailed
		}
		return ExitCodeSyncFailed
	}

	if api.IsLockError(err) {
		return ExitCodeLocked
	}

	return ExitCodeError
}
