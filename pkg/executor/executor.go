// Package executor implements the schedule execution engine: each run scans
// enabled feeding schedules, decides which are due, triggers the feed once
// per due occurrence, advances recurrence state, and records execution
// history. The executor holds no state between runs; everything it needs is
// re-derived from the schedule records themselves, so any run can start
// cold after a crash or redeploy.
package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/whiskertech/petfeeder/pkg/feed"
	"github.com/whiskertech/petfeeder/pkg/schedule"
)

// ScheduleStore is the persistence interface the executor consumes.
type ScheduleStore interface {
	// ListEnabled returns every schedule with enabled = true.
	ListEnabled(ctx context.Context) ([]schedule.Schedule, error)

	// CompleteOccurrence atomically records that the occurrence fired: it
	// sets last_executed_at to the occurrence, then either disables the
	// schedule (one-time) or moves scheduled_time to next (recurring). The
	// write must be conditional on the occurrence not having fired already,
	// so a concurrent run racing past the in-memory guard loses the write.
	CompleteOccurrence(ctx context.Context, scheduleID, occurrence, next string, disable bool) error
}

// HistoryLog appends execution attempts to the audit trail. Append
// failures never fail a run.
type HistoryLog interface {
	Append(ctx context.Context, rec schedule.ExecutionRecord) error
}

// FeedGateway issues the actual feed command. It may refuse for safety
// reasons (weight gate) without touching hardware.
type FeedGateway interface {
	Trigger(ctx context.Context, req feed.Request) (*feed.Result, error)
}

// Summary aggregates the outcome of one executor run.
type Summary struct {
	TotalSchedules int    `json:"total_schedules"`
	Executed       int    `json:"executed"`
	Failed         int    `json:"failed"`
	Timestamp      string `json:"timestamp"`
}

// Config tunes the due-detection window. Zero values fall back to the
// defaults in the schedule package.
type Config struct {
	ToleranceMinutes  int
	MaxOverdueMinutes int

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Executor runs one scan-and-fire pass per invocation.
type Executor struct {
	store      ScheduleStore
	history    HistoryLog
	gateway    FeedGateway
	tolerance  int
	maxOverdue int
	now        func() time.Time
}

// New builds an executor over the given collaborators.
func New(store ScheduleStore, history HistoryLog, gateway FeedGateway, cfg Config) *Executor {
	e := &Executor{
		store:      store,
		history:    history,
		gateway:    gateway,
		tolerance:  cfg.ToleranceMinutes,
		maxOverdue: cfg.MaxOverdueMinutes,
		now:        cfg.Now,
	}
	if e.tolerance <= 0 {
		e.tolerance = schedule.DefaultToleranceMinutes
	}
	if e.maxOverdue <= 0 {
		e.maxOverdue = schedule.DefaultMaxOverdueMinutes
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Run executes one pass over all enabled schedules. A failure to list the
// schedules is fatal for the run; a failure on one schedule never aborts
// the rest.
func (e *Executor) Run(ctx context.Context) (*Summary, error) {
	now := e.now().UTC()
	log.Printf("Schedule executor invoked at %s", schedule.FormatUTC(now))

	schedules, err := e.store.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled schedules: %w", err)
	}
	log.Printf("Found %d enabled schedule(s)", len(schedules))

	summary := &Summary{
		TotalSchedules: len(schedules),
		Timestamp:      schedule.FormatUTC(now),
	}

	for i := range schedules {
		switch e.processSchedule(ctx, &schedules[i], now) {
		case outcomeExecuted:
			summary.Executed++
		case outcomeFailed:
			summary.Failed++
		}
	}

	log.Printf("Execution summary: total=%d executed=%d failed=%d",
		summary.TotalSchedules, summary.Executed, summary.Failed)
	return summary, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeExecuted
	outcomeFailed
)

// processSchedule evaluates one schedule against the current time and fires
// it when due. The occurrence is identified by the stored scheduled_time;
// comparing it to last_executed_at guarantees each occurrence fires at most
// once even across overlapping runs.
func (e *Executor) processSchedule(ctx context.Context, s *schedule.Schedule, now time.Time) outcome {
	log.Printf("Checking schedule %s: scheduled_time=%s last_executed_at=%s feed_cycles=%d recurrence=%s",
		s.ScheduleID, s.ScheduledTime, s.LastExecutedAt, s.FeedCycles, s.Recurrence)

	if !schedule.IsDue(s.ScheduledTime, now, e.tolerance, e.maxOverdue) {
		log.Printf("Schedule %s not due", s.ScheduleID)
		return outcomeSkipped
	}

	if s.LastExecutedAt != "" && s.LastExecutedAt == s.ScheduledTime {
		log.Printf("Schedule %s already executed for this occurrence (last_executed_at=%s)",
			s.ScheduleID, s.LastExecutedAt)
		return outcomeSkipped
	}

	log.Printf("Schedule %s is due for execution", s.ScheduleID)

	result, err := e.gateway.Trigger(ctx, feed.Request{
		Mode:        feed.ModeScheduled,
		RequestedBy: s.RequestedBy,
		FeedCycles:  s.FeedCycles,
		ScheduleID:  s.ScheduleID,
	})
	if err != nil {
		log.Printf("Failed to trigger feed for schedule %s: %v", s.ScheduleID, err)
		e.appendHistory(ctx, s, now, schedule.ExecutionStatusFailed,
			fmt.Sprintf("feed trigger error: %v", err))
		return outcomeFailed
	}
	if !result.Status.Success() {
		log.Printf("Feed trigger for schedule %s returned status %s", s.ScheduleID, result.Status)
		e.appendHistory(ctx, s, now, schedule.ExecutionStatusFailed,
			fmt.Sprintf("feed trigger returned status %s", result.Status))
		return outcomeFailed
	}

	// Hardware fired; record the occurrence and advance or disable. If this
	// write fails the schedule still looks due next run and may re-fire;
	// the failed history record is the operator's signal to check for a
	// duplicate dispense.
	occurrence := s.ScheduledTime
	next := ""
	disable := s.OneTime()
	if !disable {
		next = schedule.NextExecution(occurrence, s.Recurrence)
	}

	if err := e.store.CompleteOccurrence(ctx, s.ScheduleID, occurrence, next, disable); err != nil {
		log.Printf("Executed schedule %s but failed to update it: %v", s.ScheduleID, err)
		e.appendHistory(ctx, s, now, schedule.ExecutionStatusFailed,
			fmt.Sprintf("failed to update schedule after execution: %v", err))
		return outcomeFailed
	}

	if disable {
		log.Printf("One-time schedule %s disabled after execution", s.ScheduleID)
	} else {
		log.Printf("Recurring schedule %s advanced to next execution: %s", s.ScheduleID, next)
	}

	e.appendHistory(ctx, s, now, schedule.ExecutionStatusSuccess, "")
	return outcomeExecuted
}

// appendHistory writes the audit record; history is fire-and-forget so a
// logging failure only warns.
func (e *Executor) appendHistory(ctx context.Context, s *schedule.Schedule, now time.Time, status schedule.ExecutionStatus, errMsg string) {
	rec := schedule.ExecutionRecord{
		ScheduleID:    s.ScheduleID,
		ScheduledTime: s.ScheduledTime,
		ExecutedAt:    schedule.FormatUTC(now),
		Status:        status,
		FeedCycles:    s.FeedCycles,
		Recurrence:    s.Recurrence,
		RequestedBy:   s.RequestedBy,
		ErrorMessage:  errMsg,
	}
	if err := e.history.Append(ctx, rec); err != nil {
		log.Printf("Warning: failed to log execution history for schedule %s: %v", s.ScheduleID, err)
	}
}
