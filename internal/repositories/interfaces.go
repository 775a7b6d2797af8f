package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/trailbook/slotsync/internal/models"
)

type SlotRepository interface {
	Create(ctx context.Context, slot *models.Slot) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Slot, error)
	GetByExperienceAndDateRange(ctx context.Context, experienceID uuid.UUID, startDate, endDate string) ([]models.Slot, error)
	Update(ctx context.Context, slot *models.Slot) error
	Delete(ctx context.Context, id uuid.UUID) (*models.Slot, error)
}

type SlotAuditRepository interface {
	Append(ctx context.Context, event *models.SlotAuditEvent) error
	GetByExperienceID(ctx context.Context, experienceID uuid.UUID) ([]*models.SlotAuditEvent, error)
	GetSinceSequence(ctx context.Context, experienceID uuid.UUID, sequenceNumber int64) ([]*models.SlotAuditEvent, error)
}
