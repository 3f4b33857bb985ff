package schedule

import (
	"fmt"
	"log"
	"time"
)

// TimeLayout is the canonical wire format for all timestamps: ISO 8601 in
// UTC, second precision, literal Z suffix.
const TimeLayout = "2006-01-02T15:04:05Z"

// naiveLayout matches datetimes with no zone designator.
const naiveLayout = "2006-01-02T15:04:05"

// FormatUTC renders t in the canonical wire format.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseUTC parses an ISO 8601 datetime. Zone-suffixed values (Z or a
// numeric offset) are converted to UTC; naive values are assumed to
// already be UTC.
func ParseUTC(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(naiveLayout, value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", value)
}

// ConvertToUTC converts a user-supplied local datetime to the canonical UTC
// wire format. Naive datetimes are interpreted in the given IANA timezone,
// using the offset in effect on that date (DST-correct for the given
// instant, not for "now"). Zone-suffixed datetimes keep their own offset
// and the timezone argument is ignored.
func ConvertToUTC(localTime, timezone string) (string, error) {
	if t, err := time.Parse(time.RFC3339, localTime); err == nil {
		return FormatUTC(t), nil
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return "", fmt.Errorf("unknown timezone %q: %w", timezone, err)
	}

	t, err := time.ParseInLocation(naiveLayout, localTime, loc)
	if err != nil {
		return "", fmt.Errorf("invalid datetime %q: %w", localTime, err)
	}

	return FormatUTC(t), nil
}

// NextExecution computes the next occurrence of a schedule after the given
// one, per its recurrence pattern. Monthly recurrence clamps the day of
// month to the last valid day of the target month (Jan 31 -> Feb 28, or
// Feb 29 in leap years). For "none", unrecognized patterns, or unparseable
// input the scheduled time is returned unchanged.
func NextExecution(scheduledTime string, recurrence Recurrence) string {
	t, err := ParseUTC(scheduledTime)
	if err != nil {
		log.Printf("Error parsing scheduled time %q: %v", scheduledTime, err)
		return scheduledTime
	}

	var next time.Time
	switch recurrence {
	case RecurrenceDaily:
		next = t.AddDate(0, 0, 1)
	case RecurrenceWeekly:
		next = t.AddDate(0, 0, 7)
	case RecurrenceMonthly:
		next = nextMonth(t)
	default:
		return scheduledTime
	}

	return FormatUTC(next)
}

// nextMonth advances t by one calendar month, clamping the day of month so
// the result never spills into the month after next.
func nextMonth(t time.Time) time.Time {
	year, month, day := t.Date()
	month++
	if month > time.December {
		month = time.January
		year++
	}

	if last := daysInMonth(year, month); day > last {
		day = last
	}

	hour, min, sec := t.Clock()
	return time.Date(year, month, day, hour, min, sec, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	// Day zero of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
