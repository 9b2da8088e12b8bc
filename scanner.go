package visaslot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const (
	// maxLoggedBody caps how much of an unexpected body is logged.
	maxLoggedBody = 256

	daysPathTemplate = "%s/%s/niv/schedule/%s/appointment/days/%d.json?appointments%%5Bexpedite%%5D=false"
)

// scheduleHeaders are the XHR headers the site's own calendar widget sends.
var scheduleHeaders = map[string]string{
	"Accept":           "application/json, text/javascript, */*; q=0.01",
	"X-Requested-With": "XMLHttpRequest",
}

// dayRecord is one entry of the schedule-days feed.
type dayRecord struct {
	Date        string `json:"date"`
	BusinessDay bool   `json:"business_day"`
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Site locates the booking site and the schedule being watched.
type Site struct {
	// BaseURL is the scheme and host, e.g. https://ais.usvisa-info.com.
	BaseURL string

	// CountryCode is the locale path segment, e.g. en-ca.
	CountryCode string

	// ScheduleID is the applicant's schedule number.
	ScheduleID string
}

// LoginURL returns the sign-in page address.
func (s Site) LoginURL() string {
	return strings.TrimRight(s.BaseURL, "/") + fmt.Sprintf(signInPathTemplate, s.CountryCode)
}

// DaysURL returns the schedule-days feed address for a facility.
func (s Site) DaysURL(facilityID int) string {
	return fmt.Sprintf(daysPathTemplate, strings.TrimRight(s.BaseURL, "/"), s.CountryCode, s.ScheduleID, facilityID)
}

// Scanner fetches a facility's schedule-days feed and picks the earliest
// offered date.
type Scanner struct {
	site    Site
	session *Session
	names   map[int]string
	pause   time.Duration
	sleep   SleepFunc
	now     func() time.Time
	logger  *slog.Logger
}

// NewScanner creates a [Scanner]. pause is applied after every feed that
// parsed, to keep the request rate low.
func NewScanner(site Site, session *Session, names map[int]string, pause time.Duration, sleep SleepFunc, logger *slog.Logger) *Scanner {
	if sleep == nil {
		sleep = sleepContext
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		site:    site,
		session: session,
		names:   names,
		pause:   pause,
		sleep:   sleep,
		now:     time.Now,
		logger:  logger,
	}
}

// FacilityName returns the configured display name for id.
func (s *Scanner) FacilityName(id int) string {
	if name, ok := s.names[id]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("facility %d", id)
}

// Scan fetches the feed for facilityID through page and classifies it.
//
// Scan never returns an error: every failure is folded into the result
// kind. An unauthenticated body invalidates the session.
func (s *Scanner) Scan(ctx context.Context, page Page, facilityID int) (result ScanResult) {
	result = ScanResult{
		FacilityID:   facilityID,
		FacilityName: s.FacilityName(facilityID),
	}
	defer func() { result.CheckedAt = s.now() }()

	s.logger.Info("checking for schedules", "facility_id", facilityID, "facility", result.FacilityName)

	page.SetExtraHTTPHeaders(scheduleHeaders)
	if err := page.Goto(ctx, s.site.DaysURL(facilityID)); err != nil {
		result.Kind = ScanFetchFailed
		result.Err = err
		s.logger.Warn("schedule fetch failed", "facility_id", facilityID, "error", err.Error())
		return result
	}
	result.StatusCode = page.Status()

	if result.StatusCode >= http.StatusInternalServerError {
		result.Kind = ScanFetchFailed
		result.Err = fmt.Errorf("schedule feed returned status %d", result.StatusCode)
		s.logger.Warn("schedule fetch failed", "facility_id", facilityID, "status", result.StatusCode)
		return result
	}

	body, err := page.Text()
	if err != nil {
		result.Kind = ScanFetchFailed
		result.Err = err
		s.logger.Warn("schedule body unreadable", "facility_id", facilityID, "error", err.Error())
		return result
	}

	classifyBody(&result, body)

	switch result.Kind {
	case ScanUnauthenticated:
		s.logger.Warn("unable to parse schedule feed, probably not logged in",
			"facility_id", facilityID,
			"status", result.StatusCode,
			"body", truncate(body, maxLoggedBody),
		)
		s.session.Invalidate()
		return result
	case ScanMalformed:
		s.logger.Warn("schedule feed held no usable dates",
			"facility_id", facilityID,
			"body", truncate(body, maxLoggedBody),
		)
	case ScanSlots:
		s.logger.Debug("schedule parsed",
			"facility_id", facilityID,
			"earliest", result.Earliest.Format(DateLayout),
			"offered", len(result.Dates),
		)
	default:
		s.logger.Debug("schedule parsed", "facility_id", facilityID, "offered", 0)
	}

	if err := s.sleep(ctx, s.pause); err != nil {
		s.logger.Debug("scan pause interrupted", "error", err.Error())
	}
	return result
}

// classifyBody decodes a feed body into result.Kind, Dates and Earliest.
//
// Anything other than a JSON array, null included, is the site's signed-out
// response. Array elements that are not date records are skipped.
func classifyBody(result *ScanResult, body string) {
	var elems *[]any
	if err := sonic.UnmarshalString(strings.TrimSpace(body), &elems); err != nil {
		result.Kind = ScanUnauthenticated
		result.Err = fmt.Errorf("schedule feed is not a list of dates: %w", err)
		return
	}
	if elems == nil {
		result.Kind = ScanUnauthenticated
		result.Err = errors.New("schedule feed is not a list of dates: null body")
		return
	}

	if len(*elems) == 0 {
		result.Kind = ScanEmpty
		return
	}

	var records []dayRecord
	var skipped []error
	for i, el := range *elems {
		rec, err := toDayRecord(el)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		records = append(records, rec)
	}

	dates := make([]time.Time, 0, len(records))
	for _, rec := range records {
		d, err := ParseDate(rec.Date)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		dates = append(dates, d)
	}

	if len(dates) == 0 {
		result.Kind = ScanMalformed
		result.Err = errors.Join(skipped...)
		return
	}

	earliest, _ := earliestDate(dates)
	sort.SliceStable(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	result.Kind = ScanSlots
	result.Dates = dates
	result.Earliest = earliest
}

// toDayRecord converts one decoded feed element into a dayRecord.
func toDayRecord(el any) (dayRecord, error) {
	obj, ok := el.(map[string]any)
	if !ok {
		return dayRecord{}, fmt.Errorf("expected an object, got %T", el)
	}
	date, ok := obj["date"].(string)
	if !ok {
		return dayRecord{}, errors.New("missing date")
	}
	businessDay, _ := obj["business_day"].(bool)
	return dayRecord{Date: date, BusinessDay: businessDay}, nil
}

// earliestDate returns the minimum of dates by calendar order. On ties the
// first minimal element wins. ok is false for an empty slice.
func earliestDate(dates []time.Time) (earliest time.Time, ok bool) {
	for i, d := range dates {
		if i == 0 || d.Before(earliest) {
			earliest = d
		}
	}
	return earliest, len(dates) > 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
