// Package store provides SQLite-backed durable storage for access codes and
// the distribution ledger.
//
// The store owns two tables:
//   - access_codes: one row per code ever issued, active or retired
//   - ledger_records: append-only distribution entries
//
// # Invariants
//
// Code uniqueness spans the full history:
//   - UNIQUE(code) on access_codes, rows are never deleted (trigger)
//   - InsertCode maps a unique violation to ErrCodeConflict
//
// Retirement is a single conditional statement:
//   - UPDATE ... WHERE code = ? AND active = 1
//   - A retired row cannot be reactivated (trigger)
//
// The ledger is append-only:
//   - UPDATE and DELETE on ledger_records abort (triggers)
//
// No application-level locking is used; every write is one atomic statement.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are assigned by the store clock and stored as RFC 3339 UTC text.
package store
