package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trailbook/slotsync/internal/models"
)

// PostgresSlotAuditRepository is the append-only mutation log behind the
// vendor audit feed. Sequence numbers come from the database so "everything
// since N" reads are gapless per experience.
type PostgresSlotAuditRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSlotAuditRepository(pool *pgxpool.Pool) *PostgresSlotAuditRepository {
	return &PostgresSlotAuditRepository{pool: pool}
}

func (r *PostgresSlotAuditRepository) Append(ctx context.Context, event *models.SlotAuditEvent) error {
	query := `INSERT INTO slot_audit_events (experience_id, slot_id, event_type, payload)
	          VALUES ($1, $2, $3, $4)
	          RETURNING id, sequence_number, created_at`

	err := r.pool.QueryRow(ctx, query,
		event.ExperienceID,
		event.SlotID,
		event.EventType,
		event.Payload,
	).Scan(&event.ID, &event.SequenceNumber, &event.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

func (r *PostgresSlotAuditRepository) GetByExperienceID(ctx context.Context, experienceID uuid.UUID) ([]*models.SlotAuditEvent, error) {
	query := `SELECT id, experience_id, slot_id, event_type, sequence_number, payload, created_at
	          FROM slot_audit_events
	          WHERE experience_id = $1
	          ORDER BY sequence_number ASC`

	return r.queryEvents(ctx, query, experienceID)
}

func (r *PostgresSlotAuditRepository) GetSinceSequence(ctx context.Context, experienceID uuid.UUID, sequenceNumber int64) ([]*models.SlotAuditEvent, error) {
	query := `SELECT id, experience_id, slot_id, event_type, sequence_number, payload, created_at
	          FROM slot_audit_events
	          WHERE experience_id = $1 AND sequence_number > $2
	          ORDER BY sequence_number ASC`

	return r.queryEvents(ctx, query, experienceID, sequenceNumber)
}

func (r *PostgresSlotAuditRepository) queryEvents(ctx context.Context, query string, args ...any) ([]*models.SlotAuditEvent, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.SlotAuditEvent
	for rows.Next() {
		var event models.SlotAuditEvent
		err := rows.Scan(
			&event.ID,
			&event.ExperienceID,
			&event.SlotID,
			&event.EventType,
			&event.SequenceNumber,
			&event.Payload,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}
