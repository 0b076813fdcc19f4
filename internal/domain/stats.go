package domain

import "time"

// TimeRange represents a time range for run history queries
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range; zero bounds are open
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// TargetStats represents aggregated run statistics for one import target
type TargetStats struct {
	Target               string          `json:"target"`
	Runs                 int             `json:"runs"`
	ByVerdict            map[Verdict]int `json:"by_verdict"`
	ConvergenceTimeouts  int             `json:"convergence_timeouts"`
	PaginationShortfalls int             `json:"pagination_shortfalls"`
	ConfirmationFailures int             `json:"confirmation_failures"`
	Eligible             int             `json:"eligible"`
	Confirmed            int             `json:"confirmed"`
	LastRun              *RunSummary     `json:"last_run,omitempty"`
}
