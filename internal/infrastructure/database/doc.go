// Package database provides SQLite connection management and schema
// migrations for Nexus Core.
//
// The database is the single store of record for principals (users and
// tenants), active sessions, and revocation entries. Migrations are
// embedded into the binary via go:embed and applied on startup, each in
// its own transaction.
//
// Thread Safety: the wrapped *sql.DB is safe for concurrent use; the
// connection pool is pinned to one connection to match SQLite's
// single-writer model.
package database
