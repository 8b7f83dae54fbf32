// Package transients reads the candidate list produced by the upstream
// detection pipeline.
//
// Two formats are understood. The pipeline's native tab-separated table has a
// header row naming its columns (source, observation, ra[deg], ...); each row
// becomes a Transient whose identifier is "<source>_<observation>". A plain
// list holds one identifier per line, optionally followed by RA and Dec in
// degrees. Parse failures are reported as ErrMalformed with the offending line
// number; callers treat them as fatal for the run.
package transients
