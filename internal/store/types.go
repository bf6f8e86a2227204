package store

import (
	"errors"
	"math"
	"time"

	"github.com/freightdesk/convoy/internal/bus"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrStaleFencing is returned by Drain when the caller's fencing token no
// longer matches the stored one, meaning a later message re-armed the timer
// and this wakeup must not process the batch.
var ErrStaleFencing = errors.New("store: stale fencing token")

// fencingTolerance absorbs precision loss from decimal round-trips of the
// float token.
const fencingTolerance = 0.1

// FencingMatch reports whether two fencing tokens identify the same timer
// arming.
func FencingMatch(a, b float64) bool {
	return math.Abs(a-b) < fencingTolerance
}

// BatchRecord is the per-contact accumulation row the debounce coordinator
// works against. FencingToken is epoch seconds with sub-second precision,
// minted when the timer was last armed.
type BatchRecord struct {
	Contact       string               `json:"contact"`
	Pending       []bus.InboundMessage `json:"pending"`
	FencingToken  float64              `json:"fencing_token"`
	TimerActive   bool                 `json:"timer_active"`
	LastMessageAt int64                `json:"last_message_at"`
	LastText      string               `json:"last_text,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Facts holds the negotiation fields that survive session renewal. Only
// these fields are carried forward; everything else a session accumulated
// dies with it.
type Facts struct {
	CargoID            string   `json:"cargo_id,omitempty"`
	TractorVehicle     string   `json:"tractor_vehicle,omitempty"`
	TractorVehicleID   string   `json:"tractor_vehicle_id,omitempty"`
	VehicleEquipmentID string   `json:"vehicle_equipment_id,omitempty"`
	EquipmentIDs       []string `json:"equipment_ids,omitempty"`
	VehicleTypeID      string   `json:"vehicle_type_id,omitempty"`
	EquipmentTypeID    string   `json:"equipment_type_id,omitempty"`
	TractorPlate       string   `json:"tractor_plate,omitempty"`
	EquipmentPlate     string   `json:"equipment_plate,omitempty"`
}

// NegotiationRecord is one (contact, hour bucket) row of the negotiation
// ledger. SessionPointer and MemoryStamp are the two independently aging
// identifiers; SessionStartedAt anchors reply-to offer matching.
type NegotiationRecord struct {
	Contact          string    `json:"contact"`
	SessionBucket    string    `json:"session_bucket"`
	SessionPointer   string    `json:"session_pointer"`
	SessionStartedAt string    `json:"session_started_at,omitempty"`
	MemoryStamp      string    `json:"memory_stamp,omitempty"`
	Facts            Facts     `json:"facts"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HistoryEntry is one line of the per-driver conversation log.
type HistoryEntry struct {
	Contact string    `json:"contact"`
	Role    string    `json:"role"`
	Kind    string    `json:"kind,omitempty"`
	Text    string    `json:"text"`
	SentAt  time.Time `json:"sent_at"`
}

// History roles.
const (
	RoleDriver    = "driver"
	RoleAssistant = "assistant"
)
