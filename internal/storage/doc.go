// Package storage provides the interval store: the canonical table of
// scheduled occurrences, keyed by event id and scoped to an organization.
//
// It currently supports:
//   - sqlite: embedded database file (default)
//   - postgres: shared server via pgx
//   - memory: in-process map, reference semantics for tests
package storage
