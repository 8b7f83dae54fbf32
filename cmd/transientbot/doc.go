// Package main hosts the transientbot CLI entrypoint and command graph.
//
// The Cobra command tree performs single scheduled runs (`run`), keeps a
// long-lived daily scheduler with live vote tracking (`watch`), records a
// backlog without posting (`baseline`), inspects pending work and
// processed-state (`pending`, `status`), renders thumbnails without posting
// (`preview`), manages vote tallies (`votes`), reads the log file (`logs`),
// and scaffolds configuration (`config`). Configuration and logging are resolved once per
// invocation through the shared command context so subcommands only wire
// internal packages together.
package main
