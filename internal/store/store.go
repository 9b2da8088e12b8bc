package store

import "time"

// FacilityStatus is the last known scan outcome of one facility.
//
// It is the JSON shape served by the status API, decoupled from the root
// package's ScanResult.
type FacilityStatus struct {
	// FacilityID identifies the facility and keys the store.
	FacilityID int `json:"facility_id"`

	// Name is the facility's display name.
	Name string `json:"name"`

	// Kind is the scan classification ("slots", "empty", ...).
	Kind string `json:"kind"`

	// Earliest is the earliest offered date as YYYY-MM-DD, empty when none.
	Earliest string `json:"earliest,omitempty"`

	// Offered is how many usable dates the feed listed.
	Offered int `json:"offered"`

	// BeforeThreshold reports whether Earliest triggered a notification.
	BeforeThreshold bool `json:"before_threshold"`

	// Cycle is the poll cycle number that produced this status.
	Cycle int `json:"cycle"`

	// CheckedAt is when the scan completed.
	CheckedAt time.Time `json:"checked_at"`

	// Error holds the failure message, nil when the scan parsed.
	Error *string `json:"error"`
}

// Store holds facility statuses and publishes every update.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Update replaces the status for result.FacilityID and notifies subscribers.
	Update(status FacilityStatus)

	// GetAll returns a snapshot ordered by facility id.
	GetAll() []FacilityStatus

	// Subscribe returns a buffered channel of updates. Callers must
	// Unsubscribe when done.
	Subscribe() <-chan FacilityStatus

	// Unsubscribe removes a subscription and closes its channel. Unknown or
	// already removed channels are ignored.
	Unsubscribe(ch <-chan FacilityStatus)
}
