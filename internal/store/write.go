package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/cloister/internal/model"
)

// InsertCode inserts a new active access code and returns the stored row.
//
// The UNIQUE(code) constraint is the authoritative uniqueness guarantee: a
// collision with any existing row, active or retired, returns ErrCodeConflict.
// Callers must not retry automatically.
func (s *Store) InsertCode(ctx context.Context, code, owner string, createdBy model.ActorID) (model.AccessCode, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO access_codes (code, owner, created_at, created_by, active)
		VALUES (?, ?, ?, ?, 1)
		RETURNING `+codeColumns,
		code,
		owner,
		s.timestamp(),
		int64(createdBy),
	)

	ac, err := scanCode(row)
	if err != nil {
		if isUniqueViolation(err) {
			return model.AccessCode{}, fmt.Errorf("insert code %s: %w", code, ErrCodeConflict)
		}
		return model.AccessCode{}, fmt.Errorf("insert code %s: %w", code, err)
	}
	return ac, nil
}

// RetireCode flips an active code to retired in a single conditional
// statement and returns the updated row.
//
// Returns ErrAlreadyRetired if the code exists but is no longer active and
// ErrNotFound if it never existed. Neither case modifies the store, so
// retiring twice never double-applies.
func (s *Store) RetireCode(ctx context.Context, code string, retiredBy model.ActorID) (model.AccessCode, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE access_codes
		SET active = 0, retired_at = ?, retired_by = ?
		WHERE code = ? AND active = 1
		RETURNING `+codeColumns,
		s.timestamp(),
		int64(retiredBy),
		code,
	)

	ac, err := scanCode(row)
	if err == nil {
		return ac, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.AccessCode{}, fmt.Errorf("retire code %s: %w", code, err)
	}

	// Nothing updated: tell "retired concurrently" apart from "never existed".
	exists, err := s.CodeExists(ctx, code)
	if err != nil {
		return model.AccessCode{}, fmt.Errorf("retire code %s: %w", code, err)
	}
	if exists {
		return model.AccessCode{}, fmt.Errorf("retire code %s: %w", code, ErrAlreadyRetired)
	}
	return model.AccessCode{}, fmt.Errorf("retire code %s: %w", code, ErrNotFound)
}

// AppendLedger appends a distribution record and returns it with the
// store-assigned id and timestamp. There is no uniqueness gate: repeated
// distributions are legitimate.
func (s *Store) AppendLedger(ctx context.Context, rec model.LedgerRecord) (model.LedgerRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO ledger_records (nickname, quantity, recorded_by, recorded_by_name, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING `+ledgerColumns,
		rec.Nickname,
		rec.Quantity,
		int64(rec.RecordedBy),
		rec.RecordedByName,
		s.timestamp(),
	)

	stored, err := scanLedger(row)
	if err != nil {
		return model.LedgerRecord{}, fmt.Errorf("append ledger: %w", err)
	}
	return stored, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
