package feed

// Mode distinguishes who initiated a feed.
type Mode string

const (
	ModeManual    Mode = "manual"
	ModeScheduled Mode = "scheduled"
)

// EventType recorded on feed events, derived from the mode.
func (m Mode) EventType() string {
	if m == ModeScheduled {
		return "scheduled_feed"
	}
	return "manual_feed"
}

// Status is the trigger result reported by the feed gateway.
type Status string

const (
	StatusSent      Status = "sent"
	StatusCompleted Status = "completed"
	StatusSimulated Status = "simulated"
	StatusFailed    Status = "failed"

	// StatusDeniedWeightExceeded means the weight-safety gate refused the
	// feed before any device command was issued. A business rule, not a
	// fault, but still a non-affirmative outcome for the caller.
	StatusDeniedWeightExceeded Status = "denied_weight_exceeded"

	// StatusInitiated is the state a feed event is created in; the device
	// reports completion or failure afterwards.
	StatusInitiated Status = "initiated"
)

// Success reports whether the status counts as an affirmative trigger
// outcome. Anything else is treated as failure by callers.
func (s Status) Success() bool {
	switch s {
	case StatusSent, StatusCompleted, StatusSimulated:
		return true
	}
	return false
}

// Request asks the gateway to dispense food.
type Request struct {
	Mode        Mode   `json:"mode"`
	RequestedBy string `json:"requested_by"`
	FeedCycles  int    `json:"feed_cycles"`

	// ScheduleID is set when the request originates from the schedule
	// executor, for event attribution only.
	ScheduleID string `json:"schedule_id,omitempty"`
}

// Result is what the gateway reports back for a trigger attempt.
type Result struct {
	FeedID      string `json:"feed_id"`
	RequestedBy string `json:"requested_by"`
	Mode        Mode   `json:"mode"`
	Status      Status `json:"status"`
	Timestamp   string `json:"timestamp"`
	EventType   string `json:"event_type"`
}

// Event is a feed event record in the feed history table. Created by the
// gateway with StatusInitiated; the feed-event-logger Lambda moves it to
// completed or failed when the device reports the outcome, filling in the
// weight columns as they become known.
type Event struct {
	FeedID      string `json:"feed_id" dynamodbav:"feed_id"`
	Timestamp   string `json:"timestamp" dynamodbav:"timestamp"`
	Mode        Mode   `json:"mode" dynamodbav:"mode"`
	Status      Status `json:"status" dynamodbav:"status"`
	EventType   string `json:"event_type" dynamodbav:"event_type"`
	RequestedBy string `json:"requested_by" dynamodbav:"requested_by"`
	FeedCycles  int    `json:"feed_cycles" dynamodbav:"feed_cycles"`
	ScheduleID  string `json:"schedule_id,omitempty" dynamodbav:"schedule_id,omitempty"`

	// Bowl weight around the dispense, reported by the device scale.
	// Zero means not reported.
	WeightBeforeG float64 `json:"weight_before_g,omitempty" dynamodbav:"weight_before_g,omitempty"`
	WeightAfterG  float64 `json:"weight_after_g,omitempty" dynamodbav:"weight_after_g,omitempty"`
	WeightDeltaG  float64 `json:"weight_delta_g,omitempty" dynamodbav:"weight_delta_g,omitempty"`
}
