package models

import "time"

// NotificationTarget names the user a notification is meant for. Either
// field may be empty; a nil target means broadcast.
type NotificationTarget struct {
	Identity string `json:"identity,omitempty"`
	Email    string `json:"email,omitempty"`
}

// IsZero reports whether neither identity nor email is set.
func (t *NotificationTarget) IsZero() bool {
	return t == nil || (t.Identity == "" && t.Email == "")
}

// DocumentSnapshot is the copy of a document's display fields kept on a
// notification, so the queue does not depend on the live record.
type DocumentSnapshot struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	DocNumber   string `json:"docNumber,omitempty"`
	DocClass    string `json:"docClass,omitempty"`
	Revision    string `json:"revision,omitempty"`
	DocType     string `json:"docType,omitempty"`
	Responsible string `json:"responsible,omitempty"`
}

// SnapshotOf copies the display fields of d.
func SnapshotOf(d *Document) DocumentSnapshot {
	return DocumentSnapshot{
		ID:          d.ID,
		Title:       d.Title,
		DocNumber:   d.DocNumber,
		DocClass:    d.DocClass,
		Revision:    d.Revision,
		DocType:     d.DocType,
		Responsible: d.Responsible,
	}
}

// Notification is a queued "new document" event.
type Notification struct {
	ID        string              `json:"id"`
	CreatedAt time.Time           `json:"createdAt"`
	Target    *NotificationTarget `json:"target,omitempty"`
	Document  DocumentSnapshot    `json:"document"`
}
