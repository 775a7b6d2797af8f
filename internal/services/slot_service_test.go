package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trailbook/slotsync/internal/models"
	"github.com/trailbook/slotsync/internal/notify"
	"github.com/trailbook/slotsync/internal/repositories"
)

// In-memory fakes for the service's collaborators.

type fakeSlotRepo struct {
	slots map[uuid.UUID]*models.Slot
}

func newFakeSlotRepo() *fakeSlotRepo {
	return &fakeSlotRepo{slots: make(map[uuid.UUID]*models.Slot)}
}

func (r *fakeSlotRepo) Create(ctx context.Context, slot *models.Slot) error {
	for _, existing := range r.slots {
		if existing.ExperienceID == slot.ExperienceID &&
			existing.SlotDate == slot.SlotDate &&
			existing.SlotTime == slot.SlotTime {
			return repositories.ErrDuplicateSlot
		}
	}
	slot.ID = uuid.New()
	stored := *slot
	r.slots[slot.ID] = &stored
	return nil
}

func (r *fakeSlotRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Slot, error) {
	slot, ok := r.slots[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := *slot
	return &out, nil
}

func (r *fakeSlotRepo) GetByExperienceAndDateRange(ctx context.Context, experienceID uuid.UUID, startDate, endDate string) ([]models.Slot, error) {
	out := make([]models.Slot, 0)
	for _, slot := range r.slots {
		if slot.ExperienceID == experienceID && slot.SlotDate >= startDate && slot.SlotDate <= endDate {
			out = append(out, *slot)
		}
	}
	return out, nil
}

func (r *fakeSlotRepo) Update(ctx context.Context, slot *models.Slot) error {
	if _, ok := r.slots[slot.ID]; !ok {
		return repositories.ErrNotFound
	}
	stored := *slot
	r.slots[slot.ID] = &stored
	return nil
}

func (r *fakeSlotRepo) Delete(ctx context.Context, id uuid.UUID) (*models.Slot, error) {
	slot, ok := r.slots[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	delete(r.slots, id)
	return slot, nil
}

type fakeAuditRepo struct {
	appended []*models.SlotAuditEvent
}

func (r *fakeAuditRepo) Append(ctx context.Context, event *models.SlotAuditEvent) error {
	event.SequenceNumber = int64(len(r.appended) + 1)
	r.appended = append(r.appended, event)
	return nil
}

func (r *fakeAuditRepo) GetByExperienceID(ctx context.Context, experienceID uuid.UUID) ([]*models.SlotAuditEvent, error) {
	var out []*models.SlotAuditEvent
	for _, event := range r.appended {
		if event.ExperienceID == experienceID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) GetSinceSequence(ctx context.Context, experienceID uuid.UUID, sequenceNumber int64) ([]*models.SlotAuditEvent, error) {
	var out []*models.SlotAuditEvent
	for _, event := range r.appended {
		if event.ExperienceID == experienceID && event.SequenceNumber > sequenceNumber {
			out = append(out, event)
		}
	}
	return out, nil
}

type fakeEventPublisher struct {
	published []models.ChangeEvent
}

func (p *fakeEventPublisher) PublishSlotChange(ctx context.Context, event models.ChangeEvent) error {
	p.published = append(p.published, event)
	return nil
}

type fakeNotifier struct {
	notified []notify.SlotSoldOutEvent
}

func (n *fakeNotifier) PublishSoldOut(ctx context.Context, event notify.SlotSoldOutEvent) error {
	n.notified = append(n.notified, event)
	return nil
}

func newTestService() (*SlotService, *fakeSlotRepo, *fakeAuditRepo, *fakeEventPublisher, *fakeNotifier) {
	slotRepo := newFakeSlotRepo()
	auditRepo := &fakeAuditRepo{}
	publisher := &fakeEventPublisher{}
	notifier := &fakeNotifier{}
	return NewSlotService(slotRepo, auditRepo, publisher, notifier), slotRepo, auditRepo, publisher, notifier
}

func TestSlotService_CreateSlot(t *testing.T) {
	service, _, auditRepo, publisher, _ := newTestService()
	ctx := context.Background()

	slot, err := service.CreateSlot(ctx, SlotCreateInput{
		ExperienceID:  uuid.New(),
		SlotDate:      "2026-09-01",
		SlotTime:      "10:00", // HH:MM gets normalized
		TotalCapacity: 8,
	})

	require.NoError(t, err)
	assert.Equal(t, "10:00:00", slot.SlotTime)
	assert.Equal(t, 8, slot.AvailableCount, "new slot starts fully available")
	assert.False(t, slot.IsBlocked)

	require.Len(t, auditRepo.appended, 1)
	assert.Equal(t, "slot.created", auditRepo.appended[0].EventType)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, models.EventInsert, publisher.published[0].EventType)
	assert.Equal(t, slot.ID, publisher.published[0].New.ID)
}

func TestSlotService_CreateSlot_Validation(t *testing.T) {
	service, _, _, publisher, _ := newTestService()
	ctx := context.Background()

	_, err := service.CreateSlot(ctx, SlotCreateInput{SlotDate: "01-09-2026", SlotTime: "10:00", TotalCapacity: 5})
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = service.CreateSlot(ctx, SlotCreateInput{SlotDate: "2026-09-01", SlotTime: "25:99", TotalCapacity: 5})
	assert.ErrorIs(t, err, ErrInvalidTime)

	_, err = service.CreateSlot(ctx, SlotCreateInput{SlotDate: "2026-09-01", SlotTime: "10:00", TotalCapacity: -1})
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	assert.Empty(t, publisher.published, "failed creates publish nothing")
}

func TestSlotService_CreateSlot_Duplicate(t *testing.T) {
	service, _, _, _, _ := newTestService()
	ctx := context.Background()

	input := SlotCreateInput{
		ExperienceID:  uuid.New(),
		SlotDate:      "2026-09-01",
		SlotTime:      "10:00:00",
		TotalCapacity: 5,
	}

	_, err := service.CreateSlot(ctx, input)
	require.NoError(t, err)

	_, err = service.CreateSlot(ctx, input)
	assert.ErrorIs(t, err, repositories.ErrDuplicateSlot)
}

func TestSlotService_UpdateSlot_NotifiesOnSoldOutTransition(t *testing.T) {
	service, _, _, publisher, notifier := newTestService()
	ctx := context.Background()

	slot, err := service.CreateSlot(ctx, SlotCreateInput{
		ExperienceID:  uuid.New(),
		SlotDate:      "2026-09-01",
		SlotTime:      "10:00:00",
		TotalCapacity: 5,
	})
	require.NoError(t, err)

	// 5 -> 2: no notification yet
	two := 2
	updated, err := service.UpdateSlot(ctx, slot.ID, SlotUpdateInput{AvailableCount: &two})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.AvailableCount)
	assert.Empty(t, notifier.notified)

	// 2 -> 0: sold out, vendor notified once
	zero := 0
	updated, err = service.UpdateSlot(ctx, slot.ID, SlotUpdateInput{AvailableCount: &zero})
	require.NoError(t, err)
	assert.True(t, updated.SoldOut())
	require.Len(t, notifier.notified, 1)
	assert.Equal(t, slot.ID.String(), notifier.notified[0].SlotID)

	// 0 -> 0: already sold out, no duplicate notification
	_, err = service.UpdateSlot(ctx, slot.ID, SlotUpdateInput{AvailableCount: &zero})
	require.NoError(t, err)
	assert.Len(t, notifier.notified, 1)

	// The UPDATE events carry old and new records for the reconciler.
	last := publisher.published[len(publisher.published)-1]
	assert.Equal(t, models.EventUpdate, last.EventType)
	require.NotNil(t, last.Old)
	require.NotNil(t, last.New)
}

func TestSlotService_UpdateSlot_PriceOverride(t *testing.T) {
	service, _, _, _, _ := newTestService()
	ctx := context.Background()

	slot, err := service.CreateSlot(ctx, SlotCreateInput{
		ExperienceID:  uuid.New(),
		SlotDate:      "2026-09-01",
		SlotTime:      "10:00:00",
		TotalCapacity: 5,
	})
	require.NoError(t, err)

	override := int64(12000)
	updated, err := service.UpdateSlot(ctx, slot.ID, SlotUpdateInput{PriceOverrideAmount: &override})
	require.NoError(t, err)
	require.NotNil(t, updated.PriceOverrideAmount)
	assert.Equal(t, int64(12000), *updated.PriceOverrideAmount)

	updated, err = service.UpdateSlot(ctx, slot.ID, SlotUpdateInput{ClearPriceOverride: true})
	require.NoError(t, err)
	assert.Nil(t, updated.PriceOverrideAmount)
}

func TestSlotService_UpdateSlot_UnknownID(t *testing.T) {
	service, _, _, _, _ := newTestService()

	two := 2
	_, err := service.UpdateSlot(context.Background(), uuid.New(), SlotUpdateInput{AvailableCount: &two})
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestSlotService_DeleteSlot_PublishesOldRecord(t *testing.T) {
	service, slotRepo, auditRepo, publisher, _ := newTestService()
	ctx := context.Background()

	slot, err := service.CreateSlot(ctx, SlotCreateInput{
		ExperienceID:  uuid.New(),
		SlotDate:      "2026-09-01",
		SlotTime:      "10:00:00",
		TotalCapacity: 5,
	})
	require.NoError(t, err)

	require.NoError(t, service.DeleteSlot(ctx, slot.ID))
	assert.Empty(t, slotRepo.slots)

	last := publisher.published[len(publisher.published)-1]
	assert.Equal(t, models.EventDelete, last.EventType)
	require.NotNil(t, last.Old)
	assert.Equal(t, slot.ID, last.Old.ID)

	assert.Equal(t, "slot.deleted", auditRepo.appended[len(auditRepo.appended)-1].EventType)
}

func TestSlotService_BlockUnblock(t *testing.T) {
	service, _, _, _, notifier := newTestService()
	ctx := context.Background()

	slot, err := service.CreateSlot(ctx, SlotCreateInput{
		ExperienceID:  uuid.New(),
		SlotDate:      "2026-09-01",
		SlotTime:      "10:00:00",
		TotalCapacity: 5,
	})
	require.NoError(t, err)

	blocked, err := service.BlockSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, blocked.IsBlocked)
	assert.Equal(t, models.StatusBlocked, blocked.DisplayStatus())
	assert.Empty(t, notifier.notified, "blocking is not a sold-out transition")

	unblocked, err := service.UnblockSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, unblocked.IsBlocked)
}

func TestSlotService_GetAvailableSlots_Validation(t *testing.T) {
	service, _, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := service.GetAvailableSlots(ctx, uuid.New(), "not-a-date", "2026-09-01")
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = service.GetAvailableSlots(ctx, uuid.New(), "2026-09-02", "2026-09-01")
	assert.ErrorIs(t, err, ErrInvalidRange)

	slots, err := service.GetAvailableSlots(ctx, uuid.New(), "2026-09-01", "2026-09-01")
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.NotNil(t, slots, "empty range returns an empty slice, not nil")
}

func TestSlotService_AuditTrail(t *testing.T) {
	service, _, _, _, _ := newTestService()
	ctx := context.Background()

	experienceID := uuid.New()
	slot, err := service.CreateSlot(ctx, SlotCreateInput{
		ExperienceID:  experienceID,
		SlotDate:      "2026-09-01",
		SlotTime:      "10:00:00",
		TotalCapacity: 5,
	})
	require.NoError(t, err)

	blocked := true
	_, err = service.UpdateSlot(ctx, slot.ID, SlotUpdateInput{IsBlocked: &blocked})
	require.NoError(t, err)

	all, err := service.GetAuditTrail(ctx, experienceID, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "slot.created", all[0].EventType)
	assert.Equal(t, "slot.updated", all[1].EventType)

	since, err := service.GetAuditTrail(ctx, experienceID, all[0].SequenceNumber)
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "slot.updated", since[0].EventType)
}
