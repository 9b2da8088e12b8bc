package visaslot

import "time"

// ScanKind classifies the outcome of scanning one facility.
//
// Every scan resolves to exactly one kind, so callers switch on the kind
// rather than inspecting errors to tell an expired session from an empty
// calendar.
type ScanKind string

const (
	// ScanSlots means the feed listed at least one usable date.
	ScanSlots ScanKind = "slots"

	// ScanEmpty means the feed was an empty list: nothing offered.
	ScanEmpty ScanKind = "empty"

	// ScanUnauthenticated means the body was not a list of dates, which is
	// what the site serves once the session has expired. The session is
	// invalidated when this is observed.
	ScanUnauthenticated ScanKind = "unauthenticated"

	// ScanMalformed means the body was a list but none of its records held
	// a parseable date.
	ScanMalformed ScanKind = "malformed"

	// ScanFetchFailed means the request itself failed (network error,
	// timeout, or a 5xx from the site). A 5xx is classified here whatever
	// its body, so a gateway error page does not sign the session out;
	// only a non-list body on a non-5xx response counts as expiry.
	ScanFetchFailed ScanKind = "fetch_failed"
)

// String returns the string representation of the kind.
func (k ScanKind) String() string {
	return string(k)
}

// ScanResult holds the outcome of scanning a single facility.
type ScanResult struct {
	// FacilityID is the scanned facility.
	FacilityID int

	// FacilityName is the display name of the facility.
	FacilityName string

	// Kind classifies the outcome.
	Kind ScanKind

	// Earliest is the minimum offered date. Zero unless Kind is ScanSlots.
	Earliest time.Time

	// Dates lists every usable offered date in ascending order.
	Dates []time.Time

	// StatusCode is the HTTP status of the feed response, zero when the
	// request failed before a response.
	StatusCode int

	// CheckedAt is the time the scan completed.
	CheckedAt time.Time

	// Err describes why the scan produced no slot, if it failed.
	Err error
}

// Found reports whether the scan produced an appointment slot.
func (r ScanResult) Found() bool {
	return r.Kind == ScanSlots
}
