package schedule

// Recurrence represents how often a schedule repeats.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// Valid reports whether r is one of the recognized recurrence patterns.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Feed cycle bounds enforced at schedule creation and update.
const (
	MinFeedCycles = 1
	MaxFeedCycles = 10
)

// Schedule represents a feeding schedule stored in DynamoDB.
//
// ScheduledTime is always UTC in ISO 8601 second precision with a literal
// Z suffix, regardless of the timezone the user specified. Timezone is kept
// only to interpret user input on create/update.
type Schedule struct {
	ScheduleID    string     `json:"schedule_id" dynamodbav:"schedule_id"`
	RequestedBy   string     `json:"requested_by" dynamodbav:"requested_by"`
	ScheduledTime string     `json:"scheduled_time" dynamodbav:"scheduled_time"`
	FeedCycles    int        `json:"feed_cycles" dynamodbav:"feed_cycles"`
	Recurrence    Recurrence `json:"recurrence" dynamodbav:"recurrence"`
	Enabled       bool       `json:"enabled" dynamodbav:"enabled"`
	Timezone      string     `json:"timezone,omitempty" dynamodbav:"timezone,omitempty"`

	// LastExecutedAt records the scheduled occurrence most recently fired,
	// not the wall-clock fire time. Equality with ScheduledTime means the
	// current occurrence already fired and must not fire again.
	LastExecutedAt string `json:"last_executed_at,omitempty" dynamodbav:"last_executed_at,omitempty"`

	CreatedAt string `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt string `json:"updated_at,omitempty" dynamodbav:"updated_at,omitempty"`
}

// OneTime reports whether the schedule fires only once.
func (s *Schedule) OneTime() bool {
	return s.Recurrence == RecurrenceNone || !s.Recurrence.Valid()
}

// ExecutionStatus represents the outcome of a schedule execution attempt.
type ExecutionStatus string

const (
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// ExecutionRecord is an append-only audit entry for one execution attempt.
type ExecutionRecord struct {
	ExecutionID   string          `json:"execution_id" dynamodbav:"execution_id"`
	ScheduleID    string          `json:"schedule_id" dynamodbav:"schedule_id"`
	ScheduledTime string          `json:"scheduled_time" dynamodbav:"scheduled_time"`
	ExecutedAt    string          `json:"executed_at" dynamodbav:"executed_at"`
	Status        ExecutionStatus `json:"status" dynamodbav:"status"`
	FeedCycles    int             `json:"feed_cycles" dynamodbav:"feed_cycles"`
	Recurrence    Recurrence      `json:"recurrence" dynamodbav:"recurrence"`
	RequestedBy   string          `json:"requested_by" dynamodbav:"requested_by"`
	ErrorMessage  string          `json:"error_message,omitempty" dynamodbav:"error_message,omitempty"`
}
