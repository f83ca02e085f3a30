// Package config loads the hrdesk server configuration.
//
// Values are layered: built-in defaults, then an optional TOML file, then
// HRDESK_* environment variables. Command-line flags are applied by the
// binary on top of the result. [Config.Portal] converts the loaded file
// into an [hrdesk.Config].
//
// Supported environment variables:
//   - HRDESK_ADDR: server.addr
//   - HRDESK_LOG_LEVEL, HRDESK_LOG_FORMAT: log.level, log.format
//   - HRDESK_STORAGE: storage.backend
//   - HRDESK_REDIS_ADDR, HRDESK_REDIS_PASSWORD: storage.redis_addr, storage.redis_password
//   - HRDESK_SQLITE_PATH: storage.sqlite_path
//   - HRDESK_IDLE_TIMEOUT: session.idle_timeout
//   - HRDESK_TOKEN_SECRET: identity.secret
//   - HRDESK_COOKIE_SECURE: cookie.secure
//   - HRDESK_THROTTLE: throttle.enabled
package config
