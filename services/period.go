package services

import (
	"strings"
	"time"

	"github.com/Dosada05/erg-leaderboard/models"
)

const dateOnlyLayout = "2006-01-02"

// ParsePeriod validates the period query value. An empty value means week.
func ParsePeriod(raw string) (models.Period, error) {
	switch p := models.Period(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return models.PeriodWeek, nil
	case models.PeriodWeek, models.PeriodMonth, models.PeriodYear, models.PeriodCustom:
		return p, nil
	default:
		return "", newValidationError("period", "must be one of week, month, year, custom")
	}
}

// ParseRangeBounds parses custom range bounds given as dates or RFC 3339
// timestamps. A bare date for to covers that whole day. Empty input yields nil.
func ParseRangeBounds(fromRaw, toRaw string, loc *time.Location) (from, to *time.Time, err error) {
	if from, err = parseBound("from", fromRaw, false, loc); err != nil {
		return nil, nil, err
	}
	if to, err = parseBound("to", toRaw, true, loc); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func parseBound(field, raw string, endOfDay bool, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation(dateOnlyLayout, raw, loc); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1).Add(-time.Millisecond)
		}
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.In(loc)
		return &t, nil
	}
	return nil, newValidationError(field, "expected YYYY-MM-DD or RFC 3339 timestamp, got %q", raw)
}

// ResolveDateRange turns a period into concrete bounds relative to now.
// Weeks run Monday through Sunday. The year range ends at now.
func ResolveDateRange(period models.Period, from, to *time.Time, now time.Time, loc *time.Location) (models.DateRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)

	switch period {
	case models.PeriodWeek:
		return weekRange(now, loc), nil
	case models.PeriodMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return models.DateRange{From: start, To: start.AddDate(0, 1, 0).Add(-time.Millisecond)}, nil
	case models.PeriodYear:
		return models.DateRange{From: time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc), To: now}, nil
	case models.PeriodCustom:
		if from == nil {
			return models.DateRange{}, newValidationError("from", "required for a custom period")
		}
		if to == nil {
			return models.DateRange{}, newValidationError("to", "required for a custom period")
		}
		if from.After(*to) {
			return models.DateRange{}, newValidationError("from", "must not be after to")
		}
		return models.DateRange{From: *from, To: *to}, nil
	default:
		return models.DateRange{}, newValidationError("period", "unknown period %q", period)
	}
}

// PreviousWeek is the Monday to Sunday week before the one containing now.
func PreviousWeek(now time.Time, loc *time.Location) models.DateRange {
	if loc == nil {
		loc = time.UTC
	}
	return weekRange(now.In(loc).AddDate(0, 0, -7), loc)
}

func weekRange(now time.Time, loc *time.Location) models.DateRange {
	sinceMonday := (int(now.Weekday()) + 6) % 7
	start := time.Date(now.Year(), now.Month(), now.Day()-sinceMonday, 0, 0, 0, 0, loc)
	return models.DateRange{From: start, To: start.AddDate(0, 0, 7).Add(-time.Millisecond)}
}
