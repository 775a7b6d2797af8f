package models

import (
	"time"

	"github.com/google/uuid"
)

// LowAvailabilityThreshold is the largest available count still shown as
// "only a few left" by the presentation layer.
const LowAvailabilityThreshold = 3

// Slot is one bookable time window for one experience on one date.
// The service mirrors slot rows into per-view caches; identity is the ID
// alone and stays stable across updates.
type Slot struct {
	ID                  uuid.UUID  `json:"id"`
	ExperienceID        uuid.UUID  `json:"experience_id"`
	SlotDate            string     `json:"slot_date"` // YYYY-MM-DD
	SlotTime            string     `json:"slot_time"` // HH:MM:SS, zero-padded
	TotalCapacity       int        `json:"total_capacity"`
	AvailableCount      int        `json:"available_count"`
	IsBlocked           bool       `json:"is_blocked"`
	PriceOverrideAmount *int64     `json:"price_override_amount,omitempty"` // minor units
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`
}

type SlotStatus string

const (
	StatusAvailable       SlotStatus = "available"
	StatusLowAvailability SlotStatus = "low_availability"
	StatusSoldOut         SlotStatus = "sold_out"
	StatusBlocked         SlotStatus = "blocked"
)

// SoldOut reports whether the slot has no remaining availability. A blocked
// slot is not sold out; the block takes precedence for display.
func (s *Slot) SoldOut() bool {
	return s.AvailableCount == 0 && !s.IsBlocked
}

// LowAvailability reports whether the slot is nearly full.
func (s *Slot) LowAvailability() bool {
	return s.AvailableCount > 0 && s.AvailableCount <= LowAvailabilityThreshold
}

// EffectivePrice returns the price override when set, otherwise the
// experience base price supplied by the caller. Both are in minor units.
func (s *Slot) EffectivePrice(basePrice int64) int64 {
	if s.PriceOverrideAmount != nil {
		return *s.PriceOverrideAmount
	}
	return basePrice
}

// DisplayStatus collapses the derived flags into a single badge state.
// Blocked wins over sold-out.
func (s *Slot) DisplayStatus() SlotStatus {
	switch {
	case s.IsBlocked:
		return StatusBlocked
	case s.AvailableCount == 0:
		return StatusSoldOut
	case s.LowAvailability():
		return StatusLowAvailability
	default:
		return StatusAvailable
	}
}
