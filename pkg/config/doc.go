// Package config loads application configuration from environment variables.
//
// All variables use the FIELDVINE_ prefix and have sensible defaults, so a
// bare `fieldvine` with only FIELDVINE_POSTGRES_URL set is a working server.
//
// # Example
//
//	FIELDVINE_POSTGRES_URL=postgres://localhost/fieldvine?sslmode=disable \
//	FIELDVINE_REDIS_URL=localhost:6379 \
//	FIELDVINE_LOG_LEVEL=debug \
//	fieldvine
//
// Validation happens at load time; an invalid configuration fails fast with
// a descriptive error rather than surfacing later as a runtime failure.
package config
