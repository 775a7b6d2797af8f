package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/trailbook/slotsync/internal/models"
	"github.com/trailbook/slotsync/internal/notify"
	"github.com/trailbook/slotsync/internal/realtime"
	"github.com/trailbook/slotsync/internal/repositories"
)

var (
	ErrInvalidDate     = errors.New("slot date must be YYYY-MM-DD")
	ErrInvalidTime     = errors.New("slot time must be HH:MM or HH:MM:SS")
	ErrInvalidCapacity = errors.New("capacity and availability must be non-negative")
	ErrInvalidRange    = errors.New("end date must not be before start date")
)

// SoldOutNotifier is the broker-side fan-out for sold-out transitions. Nil
// disables notifications entirely.
type SoldOutNotifier interface {
	PublishSoldOut(ctx context.Context, event notify.SlotSoldOutEvent) error
}

// SlotService owns vendor-side slot mutations. Every mutation lands in
// Postgres first, then the audit log, then the change event stream that live
// caches reconcile against. Audit or publish failures are logged, not
// propagated: the row is already committed and subscribers will converge on
// the next fetch.
type SlotService struct {
	slotRepo  repositories.SlotRepository
	auditRepo repositories.SlotAuditRepository
	events    realtime.Publisher
	notifier  SoldOutNotifier
}

func NewSlotService(
	slotRepo repositories.SlotRepository,
	auditRepo repositories.SlotAuditRepository,
	events realtime.Publisher,
	notifier SoldOutNotifier,
) *SlotService {
	return &SlotService{
		slotRepo:  slotRepo,
		auditRepo: auditRepo,
		events:    events,
		notifier:  notifier,
	}
}

type SlotCreateInput struct {
	ExperienceID        uuid.UUID `json:"experience_id"`
	SlotDate            string    `json:"slot_date"` // YYYY-MM-DD
	SlotTime            string    `json:"slot_time"` // HH:MM or HH:MM:SS
	TotalCapacity       int       `json:"total_capacity"`
	PriceOverrideAmount *int64    `json:"price_override_amount,omitempty"`
}

type SlotUpdateInput struct {
	TotalCapacity       *int   `json:"total_capacity,omitempty"`
	AvailableCount      *int   `json:"available_count,omitempty"`
	IsBlocked           *bool  `json:"is_blocked,omitempty"`
	PriceOverrideAmount *int64 `json:"price_override_amount,omitempty"`
	ClearPriceOverride  bool   `json:"clear_price_override,omitempty"`
}

// CreateSlot creates a fully-available slot for the experience.
func (s *SlotService) CreateSlot(ctx context.Context, input SlotCreateInput) (*models.Slot, error) {
	if err := validateDate(input.SlotDate); err != nil {
		return nil, err
	}
	slotTime, err := normalizeTime(input.SlotTime)
	if err != nil {
		return nil, err
	}
	if input.TotalCapacity < 0 {
		return nil, ErrInvalidCapacity
	}

	slot := &models.Slot{
		ExperienceID:        input.ExperienceID,
		SlotDate:            input.SlotDate,
		SlotTime:            slotTime,
		TotalCapacity:       input.TotalCapacity,
		AvailableCount:      input.TotalCapacity, // initially fully available
		IsBlocked:           false,
		PriceOverrideAmount: input.PriceOverrideAmount,
	}

	if err := s.slotRepo.Create(ctx, slot); err != nil {
		if errors.Is(err, repositories.ErrDuplicateSlot) {
			return nil, fmt.Errorf("a slot already exists for %s at %s: %w", input.SlotDate, slotTime, err)
		}
		return nil, fmt.Errorf("failed to create slot: %w", err)
	}

	s.audit(ctx, "slot.created", slot)
	s.publish(ctx, models.ChangeEvent{EventType: models.EventInsert, New: slot})

	return slot, nil
}

// GetAvailableSlots is the bulk fetch behind initial cache population and the
// plain listing endpoint.
func (s *SlotService) GetAvailableSlots(ctx context.Context, experienceID uuid.UUID, startDate, endDate string) ([]models.Slot, error) {
	if err := validateDate(startDate); err != nil {
		return nil, err
	}
	if err := validateDate(endDate); err != nil {
		return nil, err
	}
	if endDate < startDate {
		return nil, ErrInvalidRange
	}
	return s.slotRepo.GetByExperienceAndDateRange(ctx, experienceID, startDate, endDate)
}

// UpdateSlot applies a patch to the slot and pushes the resulting UPDATE
// change event carrying both old and new rows. A transition of availability
// to zero additionally notifies the vendor over the broker.
func (s *SlotService) UpdateSlot(ctx context.Context, id uuid.UUID, input SlotUpdateInput) (*models.Slot, error) {
	old, err := s.slotRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *old
	if input.TotalCapacity != nil {
		updated.TotalCapacity = *input.TotalCapacity
	}
	if input.AvailableCount != nil {
		updated.AvailableCount = *input.AvailableCount
	}
	if input.IsBlocked != nil {
		updated.IsBlocked = *input.IsBlocked
	}
	if input.ClearPriceOverride {
		updated.PriceOverrideAmount = nil
	} else if input.PriceOverrideAmount != nil {
		updated.PriceOverrideAmount = input.PriceOverrideAmount
	}

	if updated.TotalCapacity < 0 || updated.AvailableCount < 0 {
		return nil, ErrInvalidCapacity
	}

	if err := s.slotRepo.Update(ctx, &updated); err != nil {
		return nil, err
	}

	s.audit(ctx, "slot.updated", &updated)
	s.publish(ctx, models.ChangeEvent{EventType: models.EventUpdate, New: &updated, Old: old})

	if old.AvailableCount > 0 && updated.AvailableCount == 0 && s.notifier != nil {
		event := notify.SlotSoldOutEvent{
			SlotID:        updated.ID.String(),
			ExperienceID:  updated.ExperienceID.String(),
			SlotDate:      updated.SlotDate,
			SlotTime:      updated.SlotTime,
			TotalCapacity: updated.TotalCapacity,
			SoldOutAt:     time.Now().UTC().Format(time.RFC3339),
		}
		if err := s.notifier.PublishSoldOut(ctx, event); err != nil {
			log.Printf("slot service: sold-out notification failed for slot %s: %v", updated.ID, err)
		}
	}

	return &updated, nil
}

// DeleteSlot removes the slot and pushes the DELETE change event with the
// removed row as its old record.
func (s *SlotService) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	old, err := s.slotRepo.Delete(ctx, id)
	if err != nil {
		return err
	}

	s.audit(ctx, "slot.deleted", old)
	s.publish(ctx, models.ChangeEvent{EventType: models.EventDelete, Old: old})

	return nil
}

// BlockSlot places a vendor hold on the slot, independent of capacity.
func (s *SlotService) BlockSlot(ctx context.Context, id uuid.UUID) (*models.Slot, error) {
	blocked := true
	return s.UpdateSlot(ctx, id, SlotUpdateInput{IsBlocked: &blocked})
}

// UnblockSlot releases a vendor hold.
func (s *SlotService) UnblockSlot(ctx context.Context, id uuid.UUID) (*models.Slot, error) {
	blocked := false
	return s.UpdateSlot(ctx, id, SlotUpdateInput{IsBlocked: &blocked})
}

// GetAuditTrail returns the mutation log for an experience, optionally only
// entries after the given sequence number.
func (s *SlotService) GetAuditTrail(ctx context.Context, experienceID uuid.UUID, sinceSequence int64) ([]*models.SlotAuditEvent, error) {
	if sinceSequence > 0 {
		return s.auditRepo.GetSinceSequence(ctx, experienceID, sinceSequence)
	}
	return s.auditRepo.GetByExperienceID(ctx, experienceID)
}

func (s *SlotService) audit(ctx context.Context, eventType string, slot *models.Slot) {
	payload, err := json.Marshal(slot)
	if err != nil {
		log.Printf("slot service: failed to marshal audit payload: %v", err)
		return
	}

	event := &models.SlotAuditEvent{
		ExperienceID: slot.ExperienceID,
		SlotID:       slot.ID,
		EventType:    eventType,
		Payload:      payload,
	}
	if err := s.auditRepo.Append(ctx, event); err != nil {
		log.Printf("slot service: failed to append audit event %s for slot %s: %v", eventType, slot.ID, err)
	}
}

func (s *SlotService) publish(ctx context.Context, event models.ChangeEvent) {
	if err := s.events.PublishSlotChange(ctx, event); err != nil {
		log.Printf("slot service: failed to publish %s change event: %v", event.EventType, err)
	}
}

func validateDate(date string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// normalizeTime returns the canonical zero-padded HH:MM:SS form the cache
// sort order depends on.
func normalizeTime(value string) (string, error) {
	if t, err := time.Parse("15:04:05", value); err == nil {
		return t.Format("15:04:05"), nil
	}
	if t, err := time.Parse("15:04", value); err == nil {
		return t.Format("15:04:05"), nil
	}
	return "", ErrInvalidTime
}
