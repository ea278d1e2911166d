// Package mcpserver exposes the sync engine as Model Context Protocol tools.
//
// The server resolves the engine through the api handler registry, so it can
// be started before or after the orchestrator registers itself. Tools:
//
//   - instance_list: instances known to the instance store
//   - sync_start: start a sync, optionally waiting for its terminal state
//   - sync_status: one sync run with per-component outcomes
//   - sync_list: past runs of an instance, newest first
//   - sync_cancel: cancel an active run
//   - sync_plan: dry-run of what a sync would change right now
//
// Every tool answers with indented JSON. Engine errors are reported as tool
// errors, never as protocol errors, so assistants can read the message.
//
// Transports are streamable HTTP (default) and stdio, chosen by
// config.ServerConfig.Transport.
package mcpserver
