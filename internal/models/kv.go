package models

import "time"

// KVEntry is a single row of the generic key/value table. The orchestrator
// stores its one-shot per-conversation flags here.
type KVEntry struct {
	Key       string `gorm:"primaryKey;size:191"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName implements the GORM tabler interface.
func (KVEntry) TableName() string { return "kv_entries" }

// ApprovalEvent records one approve/reject decision taken in chat.
type ApprovalEvent struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	DocumentID     string `gorm:"size:32;not null;index"`
	State          string `gorm:"size:16;not null"`
	ActorIdentity  string `gorm:"size:128"`
	ActorName      string `gorm:"size:128"`
	ConversationID string `gorm:"size:128"`
	CreatedAt      time.Time
}
