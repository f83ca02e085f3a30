// Package web is the portal's HTTP surface: sign-in and sign-out, the
// session API used by the browser for countdowns and activity beacons, and
// the guarded HR views.
//
// # Architecture boundaries
//
// Handlers call the Portal for every session change and rely on the
// middleware package for route guarding. Views render from the session
// bound to the request; they never read storage.
package web
