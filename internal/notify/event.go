// Package notify publishes vendor-facing notifications over the message
// broker. Notification delivery is best-effort: failures are logged by
// callers and never block the mutation that triggered them.
package notify

// SlotSoldOutEvent is published when a slot's availability reaches zero. It
// carries enough for downstream consumers to alert the vendor or trigger
// analytics without querying the primary database.
type SlotSoldOutEvent struct {
	SlotID        string `json:"slot_id"`
	ExperienceID  string `json:"experience_id"`
	SlotDate      string `json:"slot_date"`
	SlotTime      string `json:"slot_time"`
	TotalCapacity int    `json:"total_capacity"`
	SoldOutAt     string `json:"sold_out_at"`
}
