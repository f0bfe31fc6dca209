package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

func (w *world) check(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertCodeState:
		return w.assertCodeState(ctx, a)
	case AssertCodeAbsent:
		return w.assertCodeAbsent(ctx, a)
	case AssertCodeCount:
		codes, err := w.store.ListCodes(ctx, a.Active != nil && *a.Active)
		if err != nil {
			return err
		}
		return assertCount(a, len(codes))
	case AssertLedgerContains:
		return w.assertLedgerContains(ctx, a)
	case AssertLedgerCount:
		records, err := w.store.ListLedger(ctx, 0)
		if err != nil {
			return err
		}
		return assertCount(a, len(records))
	case AssertSessionCount:
		return assertCount(a, w.engine.Sessions().Len())
	case AssertAuditCount:
		sent := 0
		for _, c := range w.messenger.CallsTo(w.auditChat) {
			if c.Err == nil {
				sent++
			}
		}
		return assertCount(a, sent)
	case AssertMessageContains:
		return w.assertMessageContains(a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertCount(a Assertion, got int) error {
	if got == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d", *a.Count),
		Actual:   fmt.Sprintf("%d", got),
	}
}

func (w *world) assertCodeState(ctx context.Context, a Assertion) error {
	ac, err := w.store.GetCode(ctx, a.Code)
	if errors.Is(err, store.ErrNotFound) {
		return &AssertionError{Type: a.Type, Expected: "code " + a.Code, Actual: "no such code"}
	}
	if err != nil {
		return err
	}
	if a.Owner != "" && ac.Owner != a.Owner {
		return &AssertionError{Type: a.Type, Expected: "owner " + a.Owner, Actual: "owner " + ac.Owner}
	}
	if a.Active != nil && ac.Active != *a.Active {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("active=%t", *a.Active),
			Actual:   fmt.Sprintf("active=%t", ac.Active),
		}
	}
	return nil
}

func (w *world) assertCodeAbsent(ctx context.Context, a Assertion) error {
	exists, err := w.store.CodeExists(ctx, a.Code)
	if err != nil {
		return err
	}
	if exists {
		return &AssertionError{Type: a.Type, Expected: "no code " + a.Code, Actual: "code stored"}
	}
	return nil
}

func (w *world) assertLedgerContains(ctx context.Context, a Assertion) error {
	records, err := w.store.ListLedger(ctx, 0)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.Nickname == a.Nickname && (a.Quantity == "" || rec.Quantity == a.Quantity) {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("record for %s %s", a.Nickname, a.Quantity),
		Actual:   fmt.Sprintf("%d records without a match", len(records)),
	}
}

func (w *world) assertMessageContains(a Assertion) error {
	for _, m := range w.messenger.Chat(model.ChatID(a.Chat)) {
		if m.FromBot && strings.Contains(m.Text, a.Contains) {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("a message in chat %d containing %q", a.Chat, a.Contains),
		Actual:   "none",
	}
}
