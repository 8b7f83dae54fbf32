// Package preflight provides readiness checks for the paths and remote
// services transientbot depends on.
//
// Local checks (working directories and the source list) always run. Remote
// checks are gated by their config toggle and only run when the caller asks
// for them, so "transientbot status" stays offline by default.
package preflight
