package entities

import "time"

// RunState is a state of the daily pipeline state machine
type RunState string

const (
	StateAggregating RunState = "AGGREGATING"
	StatePredicting  RunState = "PREDICTING"
	StatePersisting  RunState = "PERSISTING"
	StateDone        RunState = "DONE"
	StateFailed      RunState = "FAILED"
)

// RunStatus is the outcome reported to whoever requested a run
type RunStatus string

const (
	// RunCompleted means a prediction was written
	RunCompleted RunStatus = "completed"
	// RunNoData means the day had no readings and nothing was written
	RunNoData RunStatus = "no_data"
	// RunFailed means a step failed and the prediction store was left untouched
	RunFailed RunStatus = "failed"
	// RunBusy means another run was in flight and this one never started
	RunBusy RunStatus = "busy"
)

// Trigger identifies what requested a run
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// RunResult describes one pipeline invocation
type RunResult struct {
	RunID        string      `json:"run_id,omitempty"`
	Day          Day         `json:"day"`
	Trigger      Trigger     `json:"trigger"`
	Status       RunStatus   `json:"status"`
	State        RunState    `json:"state,omitempty"`
	FailedStep   RunState    `json:"failed_step,omitempty"`
	ReadingCount int         `json:"reading_count"`
	Prediction   *Prediction `json:"prediction,omitempty"`
	Error        string      `json:"error,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
}

// Duration is how long the run took
func (r RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
