package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/transport"
)

// Operator-facing texts.
const (
	msgNotAuthorized = "You are not authorized to use this bot."
	msgInternal      = "Something went wrong. Please try again."
	msgClosed        = "Operation closed."
	msgNothingToStop = "Nothing to cancel."
	msgUnknownAction = "This action is no longer available."

	msgIssueLost      = "Something went wrong, please retry /newcode."
	msgIssueMissing   = "Missing data, please retry /newcode."
	msgIssueCancelled = "Request cancelled."
	msgIssueExhausted = "No free code is available right now. Please try again later."

	msgLookupPrompt = "Enter the code (4 digits) to check."

	msgLedgerAskNickname = "Enter the nickname of the faithful:"
	msgLedgerAskQuantity = "Enter the quantity of food distributed:"
	msgLedgerRecorded    = "Distribution recorded."
	msgLedgerCancelled   = "Registration cancelled."
	msgLedgerMissing     = "Missing data, please retry /ledger."
)

const (
	labelConfirm       = "✅ Confirm"
	labelCancel        = "❌ Cancel"
	labelRetire        = "🔥 Retire code"
	labelDismiss       = "Dismiss"
	labelClose         = "Close"
	labelConfirmRetire = "✅ Yes, retire"
)

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05") + " UTC"
}

func actorLabel(a model.Actor) string {
	if a.DisplayName == "" {
		return fmt.Sprintf("id %d", a.ID)
	}
	return fmt.Sprintf("%s (id %d)", a.DisplayName, a.ID)
}

func startText(role model.Role) string {
	var b strings.Builder
	switch role {
	case model.RoleHermit:
		b.WriteString("Welcome, hermit.\n\nAvailable commands:\n")
		b.WriteString("/newcode - issue a new access code\n")
		b.WriteString("/checkcode - check or retire an access code\n")
		b.WriteString("/ledger - record a food distribution\n")
	case model.RoleInitiate:
		b.WriteString("Welcome, initiate.\n\nAvailable commands:\n")
		b.WriteString("/ledger - record a food distribution\n")
	default:
		return msgNotAuthorized
	}
	b.WriteString("/cancel - abandon the current operation")
	return b.String()
}

func issuePromptText(code string) string {
	return fmt.Sprintf("Generated code: %s\n\nSend the nickname of the player who will own it.", code)
}

func issueRepromptText(code string) string {
	return fmt.Sprintf("Generated code: %s\n\nThe nickname cannot be empty. Send the nickname of the player.", code)
}

func issueSummaryText(code, owner string) string {
	return fmt.Sprintf("New code summary:\n\nPlayer: %s\nCode: %s\n\nConfirm to register it.", owner, code)
}

func issueSummaryKeyboard() *transport.Keyboard {
	return transport.NewKeyboard(transport.Row(
		transport.Button{Label: labelConfirm, Tag: tagIssueConfirm},
		transport.Button{Label: labelCancel, Tag: tagIssueCancel},
	))
}

func issueCommittedText(ac model.AccessCode) string {
	return fmt.Sprintf("Code registered.\n\nID: %d\nPlayer: %s\nCode: %s\nCreated at: %s",
		ac.ID, ac.Owner, ac.Code, formatTime(ac.CreatedAt))
}

func issueConflictText(code string) string {
	return fmt.Sprintf("Code %s already exists. Nothing was registered, please retry /newcode.", code)
}

func issueAuditText(ac model.AccessCode, by model.Actor) string {
	return fmt.Sprintf("📜 New code issued\n\nID: %d\nPlayer: %s\nCode: %s\nIssued by: %s\nAt: %s",
		ac.ID, ac.Owner, ac.Code, actorLabel(by), formatTime(ac.CreatedAt))
}

func lookupNotFoundText(code string) string {
	return fmt.Sprintf("Code %s not found.", code)
}

func lookupDetailText(ac model.AccessCode) string {
	return fmt.Sprintf("Code %s\n\nID: %d\nPlayer: %s\nCreated at: %s\nStatus: %s",
		ac.Code, ac.ID, ac.Owner, formatTime(ac.CreatedAt), ac.Status())
}

func closeKeyboard() *transport.Keyboard {
	return transport.NewKeyboard(transport.Row(
		transport.Button{Label: labelClose, Tag: tagLookupClose},
	))
}

func lookupActiveKeyboard(code string) *transport.Keyboard {
	return transport.NewKeyboard(transport.Row(
		transport.Button{Label: labelRetire, Tag: tagLookupRetire + code},
		transport.Button{Label: labelDismiss, Tag: tagLookupClose},
	))
}

func retireConfirmText(code string) string {
	return fmt.Sprintf("Retire code %s? A retired code can never be used or issued again.", code)
}

func retireConfirmKeyboard(code string) *transport.Keyboard {
	return transport.NewKeyboard(transport.Row(
		transport.Button{Label: labelConfirmRetire, Tag: tagLookupRetireConfirm + code},
		transport.Button{Label: labelCancel, Tag: tagLookupClose},
	))
}

func retiredText(ac model.AccessCode) string {
	return fmt.Sprintf("Code %s retired.\n\nID: %d\nPlayer: %s\nCreated at: %s\nStatus: %s",
		ac.Code, ac.ID, ac.Owner, formatTime(ac.CreatedAt), ac.Status())
}

func notActiveText(code string) string {
	return fmt.Sprintf("Code %s is no longer active.", code)
}

func lookupDesyncText(code string) string {
	return fmt.Sprintf("This prompt is out of date, code %s was left untouched. Please retry /checkcode.", code)
}

func retireAuditText(ac model.AccessCode, by model.Actor) string {
	at := ""
	if ac.RetiredAt != nil {
		at = formatTime(*ac.RetiredAt)
	}
	return fmt.Sprintf("⚠️ Code retired\n\nID: %d\nPlayer: %s\nCode: %s\nRetired by: %s\nAt: %s",
		ac.ID, ac.Owner, ac.Code, actorLabel(by), at)
}

func ledgerSummaryText(nickname, quantity string) string {
	return fmt.Sprintf("Distribution summary:\n- Faithful: %s\n- Quantity: %s\n\nConfirm the registration?", nickname, quantity)
}

func ledgerSummaryKeyboard() *transport.Keyboard {
	return transport.NewKeyboard(
		transport.Row(transport.Button{Label: labelConfirm, Tag: tagLedgerConfirm}),
		transport.Row(transport.Button{Label: labelCancel, Tag: tagLedgerCancel}),
	)
}

func ledgerAuditText(rec model.LedgerRecord) string {
	by := model.Actor{ID: rec.RecordedBy, DisplayName: rec.RecordedByName}
	return fmt.Sprintf("📜 New distribution recorded\n- Faithful: %s\n- Quantity: %s\n- Recorded by: %s\n- At: %s",
		rec.Nickname, rec.Quantity, actorLabel(by), formatTime(rec.RecordedAt))
}
