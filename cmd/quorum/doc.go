// Package main hosts the Quorum CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into approval
// engine calls against the local task store: task creation and voting,
// notification acknowledgement and dismissal, group announcement listing,
// status reporting, and configuration scaffolding. It centralizes
// configuration resolution and store wiring so subcommands can focus on user
// experience instead of plumbing.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
