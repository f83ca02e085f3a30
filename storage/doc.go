// Package storage provides durable backends for persisted session records.
//
// Every backend implements session.Storage: a string key-value store where a
// missing key is reported as ok=false rather than an error.
//
//   - [Memory] keeps records in process memory (tests, single-node dev).
//   - [Redis] keeps records in Redis, optionally with a lifetime.
//   - [SQLite] keeps records in a local SQLite file.
//
// # What this package must NOT do
//
//   - Interpret record contents.
//   - Import the session package (backends stay format-agnostic).
package storage
