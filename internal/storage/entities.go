// Package storage persists operator-saved message references in Postgres
// through gorm, with an optional pgvector embedding per record.
package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// EmbeddingDimension is the width of the vector column.
const EmbeddingDimension = 1536

// MessageRecord is one observed message. Records are created by explicit
// operator command and never updated or deleted afterward.
type MessageRecord struct {
	PK        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	MemberID  int64 `gorm:"not null"`
	ChannelID int64 `gorm:"not null"`
	MessageID int64 `gorm:"column:msg_id;not null"`

	Embedding *pgvector.Vector `gorm:"type:vector(1536)"`
}

// TableName pins the singular table name.
func (MessageRecord) TableName() string { return "message" }

// BeforeCreate assigns the surrogate key.
func (m *MessageRecord) BeforeCreate(*gorm.DB) error {
	if m.PK == uuid.Nil {
		m.PK = uuid.New()
	}
	return nil
}

// NewMessageRecord builds a record from message coordinates. The creation
// timestamp is stored as naive UTC; a nil or empty embedding stays NULL.
func NewMessageRecord(memberID, channelID, messageID int64, createdAt time.Time, embedding []float32) *MessageRecord {
	rec := &MessageRecord{
		MemberID:  memberID,
		ChannelID: channelID,
		MessageID: messageID,
		CreatedAt: createdAt.UTC(),
	}
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		rec.Embedding = &v
	}
	return rec
}
