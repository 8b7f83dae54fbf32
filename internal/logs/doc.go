// Package logs reads transientbot's log file for the "transientbot logs"
// command.
//
// Last returns the final N lines matching a filter with bounded memory, and
// Follow streams appended lines until its context is cancelled. A file that
// shrinks (rotation or retention pruning) is re-read from the start.
package logs
