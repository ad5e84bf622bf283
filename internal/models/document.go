package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document is one keyed JSON document inside a logical collection path such as
// "notification_events" or "users/alice/notifications".
type Document struct {
	ID         string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Collection string            `gorm:"type:varchar(255);not null;uniqueIndex:idx_documents_collection_doc,priority:1" json:"collection"`
	DocID      string            `gorm:"column:doc_id;type:varchar(255);not null;uniqueIndex:idx_documents_collection_doc,priority:2" json:"doc_id"`
	Data       datatypes.JSONMap `json:"data"`
	CreatedAt  time.Time         `gorm:"autoCreateTime:false;index" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// BeforeCreate ensures row identifiers are generated automatically.
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
