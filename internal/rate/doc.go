// Package rate provides the Redis-backed fixed-window counters that throttle
// sign-in attempts.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - hs:  failed sign-ins per email
//   - hsi: failed sign-ins per client IP
//
// # What this package must NOT do
//
//   - Decide whether credentials are valid.
//   - Be imported outside the hrdesk module.
package rate
