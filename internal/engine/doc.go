// Package engine implements the conversation workflow engine.
//
// The engine turns inbound updates (commands, text messages, button presses)
// into steps of three fixed workflows:
//
//	CodeIssue    /newcode    Hermit     draw code, stage owner, confirm, insert
//	CodeLookup   /checkcode  Hermit     resolve code, optionally retire it
//	LedgerEntry  /ledger     any role   stage nickname and quantity, append
//
// Each workflow keeps a typed session (see package session) keyed by the
// acting operator and rewrites a single prompt message as it advances. The
// only durable effect happens at the explicit confirmation step and is
// guarded by the store (UNIQUE insert, conditional retire). After a commit
// the Notifier mirrors a summary to the audit chat; that broadcast can fail
// without affecting the commit.
//
// Failure handling:
//
// Every failure is scoped to one turn of one operator. Expected outcomes are
// reported to the operator and returned as *WorkflowError; transport
// failures are logged, counted and swallowed.
package engine
