// Package daemon coordinates the long-running quorum process.
//
// It wires configuration, the task store, the approval engine, and the
// fan-out service into a single lifecycle with flock-based locking to prevent
// multiple instances, and exposes the HTTP API that remote clients use to
// create tasks, vote, and read notifications.
//
// Keep orchestration logic here: approval semantics live in their own
// packages while the daemon focuses on startup, shutdown, and transport.
package daemon
