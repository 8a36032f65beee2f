// Package types defines shared types used across the application.
package types

import "time"

// DateRange is passed verbatim into the bank's date inputs, so both
// values have to be in the format the bank expects.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Outcome is the result of processing a single account.
type Outcome string

const (
	OutcomeImported       Outcome = "imported"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeDownloadFailed Outcome = "download_failed"
	OutcomeTransferFailed Outcome = "transfer_failed"
	OutcomeCleanupFailed  Outcome = "cleanup_failed"
)

// AccountResult represents what happened to one discovered account during a run.
type AccountResult struct {
	Name        string  `json:"name"`
	Ordinal     int     `json:"ordinal"`
	Outcome     Outcome `json:"outcome"`
	FilterError string  `json:"filterError,omitempty"`
	Error       string  `json:"error,omitempty"`
	File        string  `json:"file,omitempty"`
}

// RunResult represents the status of an import run.
type RunResult struct {
	ID         string          `json:"id"`
	DateRange  DateRange       `json:"dateRange"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Accounts   []AccountResult `json:"accounts"`
	Error      string          `json:"error,omitempty"`
}

// Count returns the number of accounts that ended with outcome o.
func (r *RunResult) Count(o Outcome) int {
	n := 0
	for _, a := range r.Accounts {
		if a.Outcome == o {
			n++
		}
	}
	return n
}

// Finished reports whether the run has ended.
func (r *RunResult) Finished() bool {
	return !r.FinishedAt.IsZero()
}
