// Package identity verifies who a user is before a session is recorded.
//
// The session store never checks credentials. Callers authenticate through a
// [Provider] (password directory) or a [TokenVerifier] (ID tokens minted by an
// external identity service) and hand the resulting session.Session to
// Store.Login.
//
// # Password hashes
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// # What this package must NOT do
//
//   - Persist sessions or touch session storage.
//   - Log plaintext passwords, hashes, or raw tokens.
package identity
