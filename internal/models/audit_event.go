package models

import (
	"time"

	"github.com/google/uuid"
)

// SlotAuditEvent is one row of the append-only slot mutation log. Sequence
// numbers are assigned by the database and allow "everything since N" reads.
type SlotAuditEvent struct {
	ID             uuid.UUID `json:"id"`
	ExperienceID   uuid.UUID `json:"experience_id"`
	SlotID         uuid.UUID `json:"slot_id"`
	EventType      string    `json:"event_type"` // slot.created, slot.updated, ...
	SequenceNumber int64     `json:"sequence_number"`
	Payload        []byte    `json:"payload"`
	CreatedAt      time.Time `json:"created_at"`
}
