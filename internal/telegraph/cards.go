package telegraph

import (
	"fmt"
	"strings"

	"github.com/zulandar/signoff/internal/filename"
	"github.com/zulandar/signoff/internal/models"
)

// Color constants for card severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// maxListed caps the documents itemized on a summary card.
const maxListed = 10

// maxSelectButtons caps the per-document buttons on a summary card.
const maxSelectButtons = 5

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "info":
		return ColorInfo
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// stateSeverity returns the severity used to render a workflow state.
func stateSeverity(state string) string {
	switch models.NormalizeState(state) {
	case models.StateApproved:
		return "success"
	case models.StateRejected:
		return "error"
	default:
		return "warning"
	}
}

// stateLabel returns a human-friendly label for a workflow state.
func stateLabel(state string) string {
	switch models.NormalizeState(state) {
	case models.StateApproved:
		return "Approved"
	case models.StateRejected:
		return "Rejected"
	case models.StatePendingApproval:
		return "Pending approval"
	default:
		return state
	}
}

// TextMessage is a plain-text reply.
func TextMessage(format string, args ...any) OutboundMessage {
	return OutboundMessage{Text: fmt.Sprintf(format, args...)}
}

// PendingSummaryCard lists the documents awaiting approval.
func PendingSummaryCard(pending []models.Document) OutboundMessage {
	if len(pending) == 0 {
		return OutboundMessage{
			Text: "Nothing is waiting for your approval.",
			Card: &Card{
				Title:   "You're all caught up",
				Body:    "Nothing is waiting for your approval.",
				Color:   ColorSuccess,
				Actions: []Button{{Label: "Refresh", Verb: ActionList}},
			},
		}
	}

	title := fmt.Sprintf("%d document%s awaiting approval", len(pending), plural(len(pending)))
	var lines []string
	for i, d := range pending {
		if i == maxListed {
			lines = append(lines, fmt.Sprintf("…and %d more", len(pending)-maxListed))
			break
		}
		line := "• " + d.DisplayName()
		if id := d.Identifier(); id != "" {
			line += " (" + id + ")"
		}
		lines = append(lines, line)
	}

	var actions []Button
	for i, d := range pending {
		if i == maxSelectButtons {
			break
		}
		actions = append(actions, Button{Label: d.ID, Verb: ActionSelect, Value: d.ID})
	}
	actions = append(actions, Button{Label: "Refresh", Verb: ActionList})

	return OutboundMessage{
		Text: title,
		Card: &Card{
			Title:   title,
			Body:    strings.Join(lines, "\n"),
			Color:   ColorWarning,
			Actions: actions,
		},
	}
}

// NewDocumentCard announces a newly injected document. more is the number
// of other notifications delivered alongside it.
func NewDocumentCard(doc models.DocumentSnapshot, more int) OutboundMessage {
	name := doc.ID
	if doc.Title != "" {
		name += " · " + doc.Title
	}
	body := name
	if more > 0 {
		body += fmt.Sprintf("\n+%d more new document%s. Say \"list\" to see everything pending.", more, plural(more))
	}

	var fields []Field
	if id := (&models.Document{DocClass: doc.DocClass, DocNumber: doc.DocNumber, Revision: doc.Revision}).Identifier(); id != "" {
		fields = append(fields, Field{Name: "Identifier", Value: id, Short: true})
	}
	if doc.DocType != "" {
		fields = append(fields, Field{Name: "Type", Value: doc.DocType, Short: true})
	}
	if doc.Responsible != "" {
		fields = append(fields, Field{Name: "Responsible", Value: doc.Responsible, Short: true})
	}

	return OutboundMessage{
		Text: "New document for approval: " + name,
		Card: &Card{
			Title:  "New document for approval",
			Body:   body,
			Color:  ColorInfo,
			Fields: fields,
			Actions: []Button{
				{Label: "Summarize", Verb: ActionSelect, Value: doc.ID},
				{Label: "Approve", Verb: ActionApprove, Value: doc.ID, Style: StylePrimary},
				{Label: "Reject", Verb: ActionReject, Value: doc.ID, Style: StyleDanger},
			},
		},
	}
}

// DocumentCard shows one document with its summary and the actions that
// apply to its state.
func DocumentCard(doc *models.Document, summary string) OutboundMessage {
	fields := documentFields(doc)
	var actions []Button
	var input *TextInput
	if models.IsPending(doc.State) {
		actions = append(actions,
			Button{Label: "Approve", Verb: ActionApprove, Value: doc.ID, Style: StylePrimary},
			Button{Label: "Reject", Verb: ActionReject, Value: doc.ID, Style: StyleDanger},
		)
	}
	actions = append(actions,
		Button{Label: "Ask a question", Verb: ActionAsk, Value: doc.ID},
		Button{Label: "Back to list", Verb: ActionList},
		Button{Label: "Dismiss", Verb: ActionDismiss, Value: doc.ID},
	)
	input = &TextInput{
		Label:       "Ask a question about " + doc.ID,
		Placeholder: "e.g. Which load cases were checked?",
		Verb:        ActionAsk,
		DocID:       doc.ID,
	}

	return OutboundMessage{
		Text: doc.DisplayName(),
		Card: &Card{
			Title:   doc.DisplayName(),
			Body:    summary,
			Color:   severityColor(stateSeverity(doc.State)),
			Fields:  fields,
			Actions: actions,
			Input:   input,
		},
	}
}

// AnswerCard shows the answer to a question about doc.
func AnswerCard(doc *models.Document, question, answer string) OutboundMessage {
	return OutboundMessage{
		Text: answer,
		Card: &Card{
			Title: "Q: " + truncate(question, 120),
			Body:  answer,
			Color: ColorInfo,
			Fields: []Field{
				{Name: "Document", Value: doc.DisplayName()},
			},
			Actions: []Button{
				{Label: "Ask another", Verb: ActionAsk, Value: doc.ID},
				{Label: "Back to document", Verb: ActionSelect, Value: doc.ID},
			},
			Input: &TextInput{
				Label:       "Ask another question about " + doc.ID,
				Placeholder: "Type your question",
				Verb:        ActionAsk,
				DocID:       doc.ID,
			},
		},
	}
}

// DecisionCard confirms an approve or reject transition.
func DecisionCard(doc *models.Document, actor string) OutboundMessage {
	label := stateLabel(doc.State)
	body := doc.DisplayName() + " is now " + strings.ToLower(label) + "."
	if actor != "" {
		body = fmt.Sprintf("%s %s %s.", actor, strings.ToLower(label), doc.DisplayName())
	}
	return OutboundMessage{
		Text: body,
		Card: &Card{
			Title:   label + ": " + doc.ID,
			Body:    body,
			Color:   severityColor(stateSeverity(doc.State)),
			Fields:  documentFields(doc),
			Actions: []Button{{Label: "Next pending", Verb: ActionList}},
		},
	}
}

// LoadingCard is the placeholder shown while work runs.
func LoadingCard(text string) OutboundMessage {
	return OutboundMessage{
		Text: text,
		Card: &Card{Title: "Working on it…", Body: text, Color: ColorInfo},
	}
}

// ErrorCard is the generic failure card. Raw errors are never shown.
func ErrorCard() OutboundMessage {
	return OutboundMessage{
		Text: "Something went wrong. Please try again.",
		Card: &Card{
			Title:   "Something went wrong",
			Body:    "I couldn't finish that. Please try again in a moment.",
			Color:   ColorError,
			Actions: []Button{{Label: "Show pending documents", Verb: ActionList}},
		},
	}
}

// FileCard shows how an uploaded filename was classified.
func FileCard(name string, p filename.Parsed) OutboundMessage {
	if !p.IsStructuredFormat {
		body := fmt.Sprintf("I couldn't find document metadata in %q.\n"+
			"Expected a name like: Title (CLASS - NUMBER - SHEET - REV).ext", name)
		return OutboundMessage{
			Text: body,
			Card: &Card{
				Title: "Unrecognized file name",
				Body:  body,
				Color: ColorWarning,
				Fields: []Field{
					{Name: "Title", Value: orDash(p.Title), Short: true},
					{Name: "Type", Value: orDash(filename.DocTypeFor(p.FileExtension)), Short: true},
				},
			},
		}
	}

	fields := []Field{
		{Name: "Title", Value: orDash(p.Title)},
		{Name: "Class", Value: p.DocClass, Short: true},
		{Name: "Number", Value: p.DocNumber, Short: true},
		{Name: "Sheet", Value: p.DocSheet, Short: true},
		{Name: "Revision", Value: p.DocRevision, Short: true},
		{Name: "Type", Value: orDash(filename.DocTypeFor(p.FileExtension)), Short: true},
	}
	if p.IsCopyMarker {
		fields = append(fields, Field{Name: "Note", Value: "Marked as a copy", Short: true})
	}
	return OutboundMessage{
		Text: "Is this " + identifierOf(p) + "?",
		Card: &Card{
			Title:  "Is this " + identifierOf(p) + "?",
			Body:   name,
			Color:  ColorInfo,
			Fields: fields,
			Actions: []Button{
				{Label: "Yes, that's right", Verb: ActionConfirmFile, Value: name, Style: StylePrimary},
				{Label: "No", Verb: ActionRejectFile, Value: name},
			},
		},
	}
}

// FileConfirmedCard acknowledges a confirmed file identification.
func FileConfirmedCard(name string, p filename.Parsed) OutboundMessage {
	body := fmt.Sprintf("Thanks. %q is noted as %s.", name, identifierOf(p))
	if !p.IsStructuredFormat {
		body = fmt.Sprintf("Thanks. %q is noted.", name)
	}
	return OutboundMessage{
		Text: body,
		Card: &Card{Title: "File identified", Body: body, Color: ColorSuccess},
	}
}

// FileRejectedCard explains how to name a file so it is recognized.
func FileRejectedCard(name string) OutboundMessage {
	body := fmt.Sprintf("OK, I won't use that identification for %q.\n"+
		"Rename it to Title (CLASS - NUMBER - SHEET - REV).ext and upload it again.", name)
	return OutboundMessage{
		Text: body,
		Card: &Card{Title: "Identification discarded", Body: body, Color: ColorWarning},
	}
}

// ChangeRequestCard opens a change request, optionally for one document.
func ChangeRequestCard(doc *models.Document) OutboundMessage {
	body := "Do you want to request a change to a document?"
	value := ""
	var fields []Field
	if doc != nil {
		body = "Do you want to request a change to " + doc.DisplayName() + "?"
		value = doc.ID
		fields = documentFields(doc)
	}
	return OutboundMessage{
		Text: body,
		Card: &Card{
			Title:  "Change request",
			Body:   body,
			Color:  ColorWarning,
			Fields: fields,
			Actions: []Button{
				{Label: "Acknowledge", Verb: ActionAckChange, Value: value, Style: StylePrimary},
				{Label: "What do you need?", Verb: ActionChangeDetails, Value: value},
				{Label: "Cancel", Verb: ActionDismiss, Value: value},
			},
		},
	}
}

// ChangeDetailsCard describes what a change request must contain.
func ChangeDetailsCard(doc *models.Document) OutboundMessage {
	target := "the document"
	value := ""
	if doc != nil {
		target = doc.DisplayName()
		value = doc.ID
	}
	body := "To request a change to " + target + ", reply with:\n" +
		"• the section or sheet affected\n" +
		"• what should change and why\n" +
		"• the revision you reviewed"
	return OutboundMessage{
		Text: body,
		Card: &Card{
			Title:   "Change request details",
			Body:    body,
			Color:   ColorInfo,
			Actions: []Button{{Label: "Acknowledge", Verb: ActionAckChange, Value: value, Style: StylePrimary}},
		},
	}
}

// ChangeAckCard confirms a change request was recorded.
func ChangeAckCard(doc *models.Document) OutboundMessage {
	body := "Change request acknowledged."
	if doc != nil {
		body = "Change request for " + doc.DisplayName() + " acknowledged."
	}
	return OutboundMessage{
		Text: body,
		Card: &Card{Title: "Change request acknowledged", Body: body, Color: ColorSuccess},
	}
}

// ReminderCard is the periodic digest of pending documents.
func ReminderCard(pending []models.Document) OutboundMessage {
	msg := PendingSummaryCard(pending)
	msg.Card.Title = "Reminder: " + msg.Card.Title
	msg.Text = "Reminder: " + msg.Text
	return msg
}

func documentFields(doc *models.Document) []Field {
	fields := []Field{
		{Name: "State", Value: stateLabel(doc.State), Short: true},
	}
	if doc.DocType != "" {
		fields = append(fields, Field{Name: "Type", Value: doc.DocType, Short: true})
	}
	if id := doc.Identifier(); id != "" {
		fields = append(fields, Field{Name: "Identifier", Value: id, Short: true})
	}
	if doc.Responsible != "" {
		fields = append(fields, Field{Name: "Responsible", Value: doc.Responsible, Short: true})
	}
	if doc.Status != "" {
		fields = append(fields, Field{Name: "Status", Value: doc.Status, Short: true})
	}
	return fields
}

func identifierOf(p filename.Parsed) string {
	return strings.Join([]string{p.DocClass, p.DocNumber, p.DocSheet, p.DocRevision}, " - ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
