// Package cli runs one-shot shipyard commands against the local sync engine.
//
// Executor bootstraps the application services for the duration of one
// command, calls the registered api.SyncService and renders the result with
// the formatting package. Long operations show a spinner on stderr unless
// quiet mode is set, so that stdout carries only the formatted result.
//
// Failed or partially failed runs are returned as *SyncFailedError, and a
// lease held by another run as *api.LockError. The cmd package maps both to
// dedicated exit codes.
//
// # Example
//
//	executor, err := cli.NewExecutor(options)
//	if err != nil {
//	    return err
//	}
//	defer executor.Close()
//	return executor.Sync(ctx, instanceUUID)
package cli
