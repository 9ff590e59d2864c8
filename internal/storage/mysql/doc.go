// Package mysql provides the MySQL-backed association store. It
// encapsulates connection pooling and the embedded schema migrations that
// keep the agent_bindings table current.
package mysql
