package notify

import "fmt"

// FeedOutcome carries the fields of a feed event a notification mentions.
type FeedOutcome struct {
	FeedID      string
	Mode        string
	RequestedBy string
	Timestamp   string
}

// SuccessSubject and FailureSubject are the email subjects for the two
// notified outcomes.
const (
	SuccessSubject = "Pet Feeder: Feed Successful"
	FailureSubject = "Pet Feeder: Feed Failed"
)

// SuccessMessage formats the body for a completed feed.
func SuccessMessage(o FeedOutcome) string {
	return fmt.Sprintf(`Your pet feeder successfully dispensed food.

Feed ID: %s
Mode: %s
Requested by: %s
Time: %s

Your pet has been fed!
`, o.FeedID, o.Mode, o.RequestedBy, o.Timestamp)
}

// FailureMessage formats the body for a failed feed.
func FailureMessage(o FeedOutcome) string {
	return fmt.Sprintf(`WARNING: Your pet feeder failed to dispense food.

Feed ID: %s
Mode: %s
Requested by: %s
Time: %s

Please check your device.
`, o.FeedID, o.Mode, o.RequestedBy, o.Timestamp)
}

// ShouldNotify reports whether a feed event with the given type and status
// warrants an email. Only terminal feed outcomes notify: initiated feeds
// and consumption events never do.
func ShouldNotify(eventType, status string) bool {
	if eventType == "consumption" {
		return false
	}
	return status == "completed" || status == "failed"
}
