// Package middleware adapts a [hrdesk.Portal] to net/http.
//
// # Middleware
//
//   - [ClientID] issues and reads the browser client cookie.
//   - [GuardRoutes] authorizes each request against the portal's role matrix.
//   - [Guard] authorizes against a fixed allow-list.
//
// Rendered requests carry the client's session store in their context;
// handlers read it with [SessionFromContext] or session.FromContext.
//
// # Architecture boundaries
//
// This package translates guard decisions into HTTP responses. Every
// decision itself comes from Portal.Evaluate.
//
// # What this package must NOT do
//
//   - Read or write session storage directly.
//   - Decide access beyond what Portal.Evaluate returns.
package middleware
