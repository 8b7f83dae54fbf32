// Package monitor performs one notification run: it reads the source list,
// selects the transients that have not been handled before, fetches and
// composes their imagery, posts them, and records each outcome in the
// processed-state store.
//
// Identifiers are processed one at a time. A store entry is written only
// after the identifier's post succeeds, so a transient failure leaves the
// identifier pending for the next scheduled run. An OS file lock keeps cron
// and watch mode from overlapping.
package monitor
