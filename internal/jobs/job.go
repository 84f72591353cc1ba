// Package jobs tracks repair sessions started from the editor as
// background jobs with a persistent record.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is where a job is in its lifecycle.
type Status string

const (
	Queued    Status = "queued"
	Running   Status = "running"
	Completed Status = "completed"
	Failed    Status = "failed"
	Cancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// Kind is the repair a job performs.
type Kind string

const (
	FixRoutine     Kind = "fix_routine"
	ClassWideFixes Kind = "class_wide_fixes"
)

// Job is one repair session. Class and Feature name the target; Result is
// the JSON-encoded outcome once the session ends.
type Job struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Class       string     `json:"class"`
	Feature     string     `json:"feature,omitempty"`
	Status      Status     `json:"status"`
	Attempt     int        `json:"attempt"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	Result      string     `json:"result,omitempty"`

	// snapshot is the zstd-compressed file content before the session.
	snapshot []byte
}

// NewJob creates a queued job. An empty feature means a class-wide repair.
func NewJob(class, feature string) *Job {
	kind := FixRoutine
	if feature == "" {
		kind = ClassWideFixes
	}
	return &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Class:     class,
		Feature:   feature,
		Status:    Queued,
		CreatedAt: time.Now().UTC(),
	}
}

// Target is CLASS.feature, or CLASS for class-wide jobs.
func (j *Job) Target() string {
	if j.Feature == "" {
		return j.Class
	}
	return j.Class + "." + j.Feature
}

func (j *Job) start() {
	now := time.Now().UTC()
	j.Status = Running
	j.StartedAt = &now
}

// end moves the job to a terminal status. A non-nil result is stored as
// JSON even for cancelled sessions, which still report their attempts.
func (j *Job) end(status Status, result any, cause error) {
	now := time.Now().UTC()
	j.Status = status
	j.CompletedAt = &now
	if cause != nil {
		j.Error = cause.Error()
	}
	if result == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		j.Status = Failed
		j.Error = "encode result: " + err.Error()
		return
	}
	j.Result = string(data)
}

func (j *Job) setAttempt(n int) {
	j.Attempt = max(n, 0)
}

// Duration is the wall time since the job started, up to its end.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return end.Sub(*j.StartedAt)
}

// Summary is the listing view of a job.
type Summary struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Target      string     `json:"target"`
	Status      Status     `json:"status"`
	Attempt     int        `json:"attempt"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func (j *Job) summary() Summary {
	return Summary{
		ID:          j.ID,
		Kind:        j.Kind,
		Target:      j.Target(),
		Status:      j.Status,
		Attempt:     j.Attempt,
		CreatedAt:   j.CreatedAt,
		CompletedAt: j.CompletedAt,
		Error:       j.Error,
	}
}

// Filter selects jobs for List. Zero values match everything; Limit
// defaults to 20 and is capped at 100.
type Filter struct {
	Status []Status
	Kind   []Kind
	Limit  int
	Offset int
}

// Page is one page of List results, newest first.
type Page struct {
	Jobs  []Summary `json:"jobs"`
	Total int       `json:"total"`
}
