package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trailbook/slotsync/internal/models"
)

var ErrNotFound = errors.New("not found")

// ErrDuplicateSlot is returned when a slot already exists for the same
// experience, date and time.
var ErrDuplicateSlot = errors.New("slot already exists for this date and time")

// ErrConcurrentUpdate is returned when optimistic locking fails: the slot row
// was modified since it was read.
var ErrConcurrentUpdate = errors.New("concurrent update: slot was modified by another writer")

type PostgresSlotRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSlotRepository(pool *pgxpool.Pool) *PostgresSlotRepository {
	return &PostgresSlotRepository{pool: pool}
}

// Dates and times travel as canonical strings (YYYY-MM-DD, HH:MM:SS); the
// queries cast on the way in and format on the way out so the Go side never
// deals in timezone-laden values.
const slotColumns = `id, experience_id, to_char(slot_date, 'YYYY-MM-DD'), to_char(slot_time, 'HH24:MI:SS'),
	       total_capacity, available_count, is_blocked, price_override_amount, created_at, updated_at`

func (r *PostgresSlotRepository) Create(ctx context.Context, slot *models.Slot) error {
	query := `INSERT INTO experience_slots (experience_id, slot_date, slot_time, total_capacity, available_count, is_blocked, price_override_amount)
	          VALUES ($1, $2::date, $3::time, $4, $5, $6, $7)
	          RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		slot.ExperienceID,
		slot.SlotDate,
		slot.SlotTime,
		slot.TotalCapacity,
		slot.AvailableCount,
		slot.IsBlocked,
		slot.PriceOverrideAmount,
	).Scan(&slot.ID, &slot.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateSlot
	}
	if err != nil {
		return fmt.Errorf("failed to create slot: %w", err)
	}
	return nil
}

func (r *PostgresSlotRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Slot, error) {
	query := `SELECT ` + slotColumns + `
	          FROM experience_slots
	          WHERE id = $1`

	slot, err := scanSlot(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot by ID: %w", err)
	}
	return slot, nil
}

// GetByExperienceAndDateRange is the bulk-fetch collaborator for cache
// priming. An empty range returns an empty slice, never nil.
func (r *PostgresSlotRepository) GetByExperienceAndDateRange(ctx context.Context, experienceID uuid.UUID, startDate, endDate string) ([]models.Slot, error) {
	query := `SELECT ` + slotColumns + `
	          FROM experience_slots
	          WHERE experience_id = $1 AND slot_date >= $2::date AND slot_date <= $3::date
	          ORDER BY slot_date ASC, slot_time ASC`

	rows, err := r.pool.Query(ctx, query, experienceID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()

	slots := make([]models.Slot, 0)
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, *slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slots: %w", err)
	}

	return slots, nil
}

// Update writes the full row with optimistic locking on updated_at: the write
// only lands if the row still carries the updated_at the caller read.
func (r *PostgresSlotRepository) Update(ctx context.Context, slot *models.Slot) error {
	query := `UPDATE experience_slots
	          SET total_capacity = $1,
	              available_count = $2,
	              is_blocked = $3,
	              price_override_amount = $4,
	              updated_at = NOW()
	          WHERE id = $5 AND updated_at IS NOT DISTINCT FROM $6
	          RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		slot.TotalCapacity,
		slot.AvailableCount,
		slot.IsBlocked,
		slot.PriceOverrideAmount,
		slot.ID,
		slot.UpdatedAt,
	).Scan(&slot.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// No row matched: either the slot is gone or someone got there first.
		if _, getErr := r.GetByID(ctx, slot.ID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConcurrentUpdate
	}
	if err != nil {
		return fmt.Errorf("failed to update slot: %w", err)
	}
	return nil
}

// Delete removes the slot and returns the deleted row, which the mutation
// service needs for the DELETE change event's old record.
func (r *PostgresSlotRepository) Delete(ctx context.Context, id uuid.UUID) (*models.Slot, error) {
	query := `DELETE FROM experience_slots
	          WHERE id = $1
	          RETURNING ` + slotColumns

	slot, err := scanSlot(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete slot: %w", err)
	}
	return slot, nil
}

func scanSlot(row pgx.Row) (*models.Slot, error) {
	var slot models.Slot
	err := row.Scan(
		&slot.ID,
		&slot.ExperienceID,
		&slot.SlotDate,
		&slot.SlotTime,
		&slot.TotalCapacity,
		&slot.AvailableCount,
		&slot.IsBlocked,
		&slot.PriceOverrideAmount,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}
