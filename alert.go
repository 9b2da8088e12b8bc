package visaslot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpalmerr/visaslot/notify"
)

// alertDateLayout is the day-first date format used in notifications.
const alertDateLayout = "02-01-2006"

// AlertMessage builds the notification for a slot found at a facility.
func AlertMessage(earliest time.Time, facilityName string) notify.Message {
	date := earliest.Format(alertDateLayout)
	return notify.Message{
		Subject: fmt.Sprintf("We found an earlier date %s (%s)", date, facilityName),
		Body:    fmt.Sprintf("Hurry and schedule for %s before it is taken. (%s)", date, facilityName),
	}
}

// alerter decides whether a scan result beats the threshold and, if so,
// hands a message to the notifier.
type alerter struct {
	threshold time.Time
	notifier  notify.Notifier
	logger    *slog.Logger
}

// qualifies reports whether r offered a date strictly before the threshold.
func (a *alerter) qualifies(r ScanResult) bool {
	return r.Found() && calendarDate(r.Earliest).Before(a.threshold)
}

// alert notifies for r if it qualifies. sent is true when the notifier was
// called, err carries its failure. Failures are logged, never fatal.
func (a *alerter) alert(ctx context.Context, r ScanResult) (sent bool, err error) {
	if !a.qualifies(r) {
		return false, nil
	}

	msg := AlertMessage(r.Earliest, r.FacilityName)
	a.logger.Info("earlier date found, notifying",
		"facility_id", r.FacilityID,
		"facility", r.FacilityName,
		"earliest", r.Earliest.Format(DateLayout),
		"threshold", a.threshold.Format(DateLayout),
	)

	if err := a.notifier.Notify(ctx, msg); err != nil {
		a.logger.Error("notification failed",
			"facility_id", r.FacilityID,
			"error", err.Error(),
		)
		return true, err
	}
	return true, nil
}
