// Package database owns the SQL connection pool used by the task store. It
// opens the pool for the configured driver (MySQL, PostgreSQL through pgx, or
// SQLite), bounds every statement with a timeout, rewrites placeholders for the
// active dialect and reports each statement to the metrics collector.
package database
