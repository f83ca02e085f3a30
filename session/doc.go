// Package session owns the authenticated principal of one client: the
// [Session] record, login and logout, persistence of remembered sessions, and
// automatic logout after a period of inactivity.
//
// # Lifecycle
//
// A [Store] starts uninitialized. [Store.Init] reads the persisted record (if
// any) and moves the store to logged-in or logged-out. Login and Logout cycle
// the store between those two states for the lifetime of the process; idle
// expiry is a Logout fired by the store's own timer.
//
// # Architecture boundaries
//
// This package records the outcome of authentication. It does NOT verify
// credentials, evaluate route access, or speak HTTP. Durable storage is
// reached only through the [Storage] interface.
//
// # What this package must NOT do
//
//   - Return runtime storage failures to callers (they are logged and reported
//     as [Event] values).
//   - Run more than one idle timer per store.
//   - Process activity while no session exists.
package session
