package schedule

import (
	"log"
	"time"
)

// Due-detection defaults. The overdue ceiling is the authoritative bound:
// a schedule is due from its scheduled time until the ceiling elapses, so a
// scheduler outage shorter than the ceiling is caught up and anything older
// is abandoned. ToleranceMinutes is kept for compatibility with earlier
// deployments that used a strict one-minute window; it does not affect the
// decision here.
const (
	DefaultToleranceMinutes  = 1
	DefaultMaxOverdueMinutes = 60
)

// IsDue reports whether a schedule stored at scheduledTime (UTC wire
// format) should fire at now. Due means the scheduled time has passed, but
// by no more than maxOverdueMinutes. A schedule is never due early, and an
// unparseable scheduled time is never due.
func IsDue(scheduledTime string, now time.Time, toleranceMinutes, maxOverdueMinutes int) bool {
	_ = toleranceMinutes // see note above; the overdue ceiling governs

	t, err := ParseUTC(scheduledTime)
	if err != nil {
		log.Printf("Error parsing schedule time %q: %v", scheduledTime, err)
		return false
	}

	overdue := now.UTC().Sub(t).Minutes()
	return overdue >= 0 && overdue <= float64(maxOverdueMinutes)
}
