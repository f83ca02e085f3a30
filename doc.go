// Package hrdesk is the session core of the HR portal back end.
//
// A [Portal] keeps one session.Store per browser client, identified by an
// opaque client ID (the middleware package issues it as a cookie). Each store
// owns that client's login state, its optional persisted "remember me" record,
// and its idle timer. Navigations are authorized through the guard package
// against a role matrix built from [RoutesConfig].
//
// Portal methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// hrdesk wires the building blocks together: session (state), guard
// (decisions), identity (credential checks), storage (durable records) and
// internal/rate (sign-in throttling). HTTP concerns live in middleware and
// internal/web.
//
// # What this package must NOT do
//
//   - Mutate a session.Store except through its public operations.
//   - Write HTTP responses.
//   - Log passwords or raw ID tokens.
package hrdesk
