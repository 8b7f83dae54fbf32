// Package imagery retrieves survey cutouts around a transient position.
//
// Each survey is a Fetcher. A fetcher returns ErrNoImagery when the survey has
// nothing at the requested position; that is an expected outcome and callers
// simply leave the panel out. Any other error (network failure, HTTP 5xx,
// undecodable payload) is treated as transient and the identifier is retried
// on the next run.
//
// Supported sources:
//   - CASDA: RACS radio images located through the TAP obscore table and cut
//     out with SODA
//   - unWISE: W1/W2 infrared cutouts delivered as a gzip'd tarball
//   - Legacy Surveys: optical FITS cutouts from the sky viewer
//   - TSMapDir: local significance maps used for contour overlays
//
// All cutouts are decoded from FITS with github.com/astrogo/fitsio.
package imagery
