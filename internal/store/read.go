package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/cloister/internal/model"
)

const codeColumns = `id, code, owner, created_at, created_by, active, retired_at, retired_by`

const ledgerColumns = `id, nickname, quantity, recorded_by, recorded_by_name, recorded_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// GetCode retrieves a code by its digits regardless of lifecycle state.
// Returns ErrNotFound if no row matches.
func (s *Store) GetCode(ctx context.Context, code string) (model.AccessCode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+codeColumns+`
		FROM access_codes
		WHERE code = ?
	`, code)

	ac, err := scanCode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AccessCode{}, fmt.Errorf("get code %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return model.AccessCode{}, fmt.Errorf("get code %s: %w", code, err)
	}
	return ac, nil
}

// CodeExists reports whether a code has ever been issued, active or retired.
func (s *Store) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM access_codes WHERE code = ?
	`, code).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return count > 0, nil
}

// ListCodes returns codes ordered by id. With activeOnly set, retired codes
// are omitted.
//
// Returns an empty slice (not nil) if no codes exist.
func (s *Store) ListCodes(ctx context.Context, activeOnly bool) ([]model.AccessCode, error) {
	query := `SELECT ` + codeColumns + ` FROM access_codes`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query codes: %w", err)
	}
	defer rows.Close()

	codes := []model.AccessCode{}
	for rows.Next() {
		ac, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate codes: %w", err)
	}
	return codes, nil
}

// ListLedger returns the most recent ledger records, newest first.
// A limit <= 0 returns every record.
//
// Returns an empty slice (not nil) if the ledger is empty.
func (s *Store) ListLedger(ctx context.Context, limit int) ([]model.LedgerRecord, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_records ORDER BY recorded_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	records := []model.LedgerRecord{}
	for rows.Next() {
		rec, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}
	return records, nil
}

// scanCode scans a row selected with codeColumns.
// sql.ErrNoRows is returned unwrapped so callers can match it.
func scanCode(row rowScanner) (model.AccessCode, error) {
	var (
		ac        model.AccessCode
		createdAt string
		createdBy int64
		retiredAt sql.NullString
		retiredBy sql.NullInt64
	)
	err := row.Scan(&ac.ID, &ac.Code, &ac.Owner, &createdAt, &createdBy, &ac.Active, &retiredAt, &retiredBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AccessCode{}, err
		}
		return model.AccessCode{}, fmt.Errorf("scan code: %w", err)
	}

	ac.CreatedBy = model.ActorID(createdBy)
	if ac.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.AccessCode{}, err
	}
	if retiredAt.Valid {
		t, err := parseTime(retiredAt.String)
		if err != nil {
			return model.AccessCode{}, err
		}
		ac.RetiredAt = &t
	}
	if retiredBy.Valid {
		ac.RetiredBy = model.ActorID(retiredBy.Int64)
	}
	return ac, nil
}

// scanLedger scans a row selected with ledgerColumns.
func scanLedger(row rowScanner) (model.LedgerRecord, error) {
	var (
		rec        model.LedgerRecord
		recordedBy int64
		recordedAt string
	)
	err := row.Scan(&rec.ID, &rec.Nickname, &rec.Quantity, &recordedBy, &rec.RecordedByName, &recordedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LedgerRecord{}, err
		}
		return model.LedgerRecord{}, fmt.Errorf("scan ledger: %w", err)
	}
	rec.RecordedBy = model.ActorID(recordedBy)
	if rec.RecordedAt, err = parseTime(recordedAt); err != nil {
		return model.LedgerRecord{}, err
	}
	return rec, nil
}
