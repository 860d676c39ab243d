package db

import (
	"fmt"
	"time"

	"github.com/zulandar/signoff/internal/models"
	"gorm.io/gorm"
)

// RecordApproval appends an approve/reject decision to the audit table.
func RecordApproval(db *gorm.DB, ev *models.ApprovalEvent) error {
	if ev.DocumentID == "" {
		return fmt.Errorf("db: record approval: document id is required")
	}
	if !models.ValidState(ev.State) {
		return fmt.Errorf("db: record approval: invalid state %q", ev.State)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if err := db.Create(ev).Error; err != nil {
		return fmt.Errorf("db: record approval %s: %w", ev.DocumentID, err)
	}
	return nil
}

// ApprovalHistory returns the decisions recorded for a document, oldest
// first.
func ApprovalHistory(db *gorm.DB, documentID string) ([]models.ApprovalEvent, error) {
	var events []models.ApprovalEvent
	if err := db.Where("document_id = ?", documentID).
		Order("created_at ASC, id ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("db: approval history %s: %w", documentID, err)
	}
	return events, nil
}
