// Package models defines the persisted shapes shared across Signoff: the
// JSON collections (documents, notifications, conversation references) and
// the GORM tables (key/value flags, approval audit).
package models

import (
	"strings"
	"time"
)

// Workflow states for a Document.
const (
	StatePendingApproval = "pendingApproval"
	StateApproved        = "approved"
	StateRejected        = "rejected"
)

// pendingSynonyms are the on-disk spellings that mean pendingApproval.
// "pendingAproval" was written by early releases.
var pendingSynonyms = map[string]bool{
	"pendingapproval": true,
	"pendingaproval":  true,
	"pending":         true,
	"":                true,
}

// NormalizeState maps any known spelling of a workflow state to its
// canonical constant. Unknown states are returned unchanged.
func NormalizeState(state string) string {
	key := strings.ToLower(strings.TrimSpace(state))
	switch {
	case pendingSynonyms[key]:
		return StatePendingApproval
	case key == "approved":
		return StateApproved
	case key == "rejected":
		return StateRejected
	default:
		return state
	}
}

// IsPending reports whether state is pendingApproval or one of its synonyms.
func IsPending(state string) bool {
	return NormalizeState(state) == StatePendingApproval
}

// ValidState reports whether state is one of the three canonical states.
func ValidState(state string) bool {
	switch state {
	case StatePendingApproval, StateApproved, StateRejected:
		return true
	}
	return false
}

// Document is a record awaiting (or past) approval. It is persisted as one
// element of the documents collection and never deleted.
type Document struct {
	ID               string    `json:"id"`
	State            string    `json:"state"`
	LocalPath        string    `json:"localPath,omitempty"`
	DocType          string    `json:"docType,omitempty"`
	Title            string    `json:"title"`
	DocNumber        string    `json:"docNumber,omitempty"`
	DocClass         string    `json:"docClass,omitempty"`
	Revision         string    `json:"revision,omitempty"`
	Sheet            string    `json:"sheet,omitempty"`
	Responsible      string    `json:"responsible,omitempty"`
	Status           string    `json:"status,omitempty"`
	FileStatus       string    `json:"fileStatus,omitempty"`
	Language         string    `json:"language,omitempty"`
	DocumentType     string    `json:"documentType,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	ModifiedAt       time.Time `json:"modifiedAt"`
	CreatedBy        string    `json:"createdBy,omitempty"`
	ModifiedBy       string    `json:"modifiedBy,omitempty"`
	OriginalFilename string    `json:"originalFilename,omitempty"`
}

// DisplayName returns "DOC-001 · Title" style text for cards and logs.
func (d *Document) DisplayName() string {
	if d.Title == "" {
		return d.ID
	}
	return d.ID + " · " + d.Title
}

// Identifier returns the structured "CLASS - NUMBER - SHEET - REV" form
// when the document carries a number, or "" otherwise.
func (d *Document) Identifier() string {
	if d.DocNumber == "" {
		return ""
	}
	parts := []string{}
	for _, p := range []string{d.DocClass, d.DocNumber, d.Sheet, d.Revision} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " - ")
}
