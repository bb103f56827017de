package domain

import "time"

// KVEntry stores one JSON encoded value under a unique name. Revision grows
// by one on every effective write, in whichever process made it.
type KVEntry struct {
	Name      string    `gorm:"primaryKey;size:128"`
	Value     string    `gorm:"type:text;not null"`
	Revision  int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}
