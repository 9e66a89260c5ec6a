package app

import "time"

const opIDLayout = "20060102T150405Z"

// Operation describes the CLI command being run. Its ID tags every log line
// written during the command.
type Operation struct {
	ID         string
	Name       string
	Parameters string
	StartedAt  time.Time
	Status     string // "success" or "error"
}

// NewOperation creates an operation that started at startedAt.
func NewOperation(name, parameters string, startedAt time.Time) *Operation {
	startedAt = startedAt.UTC()
	return &Operation{
		ID:         startedAt.Format(opIDLayout),
		Name:       name,
		Parameters: parameters,
		StartedAt:  startedAt,
		Status:     "success",
	}
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}

// Elapsed returns the time since the operation started, truncated to milliseconds.
func (op *Operation) Elapsed(now time.Time) time.Duration {
	return now.Sub(op.StartedAt).Truncate(time.Millisecond)
}
