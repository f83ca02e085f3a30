// Package guard decides whether a route renders, redirects, or waits.
//
// Evaluate is a pure function of the session, the loading flag and the
// route's role allow-list. It never returns an error: missing sessions and
// role mismatches are ordinary outcomes.
//
// # Architecture boundaries
//
//   - Reads session values; never mutates a session.Store.
//   - Knows paths, not HTTP. The middleware package maps outcomes to
//     status codes.
//
// # What this package must NOT do
//
//   - Perform I/O or consult the clock.
//   - Define the role taxonomy. Roles are opaque uppercase strings.
package guard
