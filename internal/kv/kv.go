// Package kv is a small gorm-backed key/value store for per-conversation
// session flags.
package kv

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zulandar/signoff/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store reads and writes KVEntry rows.
type Store struct {
	db *gorm.DB
}

// New returns a Store on db. The kv_entries table must already exist.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("kv: db is required")
	}
	return &Store{db: db}, nil
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(key string) (string, bool, error) {
	var e models.KVEntry
	err := s.db.Where("`key` = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv: get %s: %w", key, err)
	}
	return e.Value, true, nil
}

// Set upserts key.
func (s *Store) Set(key, value string) error {
	if key == "" {
		return fmt.Errorf("kv: key is required")
	}
	e := models.KVEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e)
	if result.Error != nil {
		return fmt.Errorf("kv: set %s: %w", key, result.Error)
	}
	return nil
}

// GetBool returns the boolean stored under key; absent or unparsable
// values read as false.
func (s *Store) GetBool(key string) (bool, error) {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	b, _ := strconv.ParseBool(v)
	return b, nil
}

// SetBool stores a boolean under key.
func (s *Store) SetBool(key string, v bool) error {
	return s.Set(key, strconv.FormatBool(v))
}

// WelcomedKey is the key of the one-shot welcome flag for a conversation.
func WelcomedKey(conversationID string) string {
	return "welcomed:" + conversationID
}
