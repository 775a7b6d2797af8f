package realtime

import (
	"context"

	"github.com/google/uuid"
	"github.com/trailbook/slotsync/internal/models"
)

// Handle identifies one active subscription. It is opaque to callers and is
// used only to request teardown.
type Handle string

// EventCallback receives change events for a subscribed experience. Callbacks
// are invoked from the source's delivery goroutine, one event at a time, in
// receipt order.
type EventCallback func(event models.ChangeEvent)

// Source is the change event transport. Subscribe must fail synchronously
// when the underlying channel cannot be created; connection-level failures
// after a successful Subscribe are a separate concern reported through the
// subscription manager's state. Unsubscribe is idempotent and unknown handles
// are not an error.
type Source interface {
	Subscribe(experienceID uuid.UUID, callback EventCallback) (Handle, error)
	Unsubscribe(ctx context.Context, handle Handle) error
}

// Publisher is the mutation-side counterpart of Source: server-side slot
// changes are pushed through it to every subscriber of the slot's experience.
type Publisher interface {
	PublishSlotChange(ctx context.Context, event models.ChangeEvent) error
}
