package models

import (
	"errors"
	"fmt"
)

type ChangeEventType string

const (
	EventInsert ChangeEventType = "INSERT"
	EventUpdate ChangeEventType = "UPDATE"
	EventDelete ChangeEventType = "DELETE"
)

var ErrInvalidEvent = errors.New("invalid change event")

// ChangeEvent is a server-pushed notification that a slot row changed.
// INSERT and UPDATE carry the new row; UPDATE and DELETE carry the old one.
// Events are consumed synchronously by the reconciler and discarded, never
// stored.
type ChangeEvent struct {
	EventType ChangeEventType `json:"event_type"`
	New       *Slot           `json:"new,omitempty"`
	Old       *Slot           `json:"old,omitempty"`
}

// Validate enforces the per-variant required fields. Payloads arrive over the
// wire from the event source and are checked here at the boundary rather than
// trusted downstream.
func (e *ChangeEvent) Validate() error {
	switch e.EventType {
	case EventInsert:
		if e.New == nil {
			return fmt.Errorf("%w: INSERT without new record", ErrInvalidEvent)
		}
	case EventUpdate:
		if e.New == nil {
			return fmt.Errorf("%w: UPDATE without new record", ErrInvalidEvent)
		}
	case EventDelete:
		if e.Old == nil {
			return fmt.Errorf("%w: DELETE without old record", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, e.EventType)
	}
	return nil
}
