// Package sqlstore implements the otpgate store interfaces on database/sql.
//
// Two dialects are supported: SQLite through modernc.org/sqlite (driver name
// "sqlite") and PostgreSQL through pgx's stdlib adapter (driver name "pgx").
// The schema is managed with embedded goose migrations.
//
// Timestamps are stored as Unix nanoseconds so ordering is exact and
// identical across dialects. Conditional writes use INSERT ... ON CONFLICT,
// which both dialects execute atomically.
package sqlstore
