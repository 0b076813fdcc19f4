package domain

import (
	"time"

	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
)

// SubmissionResult is the backend's synchronous answer to a write call
type SubmissionResult struct {
	StatusCode int    `json:"status_code"`
	RawBody    string `json:"raw_body"`
}

// IsSuccess returns true if the status code is 2xx
func (r SubmissionResult) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Stage identifies a pipeline step in recorded conditions
type Stage string

const (
	StageCredential Stage = "credential"
	StageArtifact   Stage = "artifact"
	StageSubmit     Stage = "submit"
	StagePoll       Stage = "poll"
	StagePaginate   Stage = "paginate"
	StageConfirm    Stage = "confirm"
)

// Condition is a recorded failure or degradation of a run
type Condition struct {
	Stage   Stage             `json:"stage"`
	Code    apperrors.ErrCode `json:"code"`
	Message string            `json:"message"`
	Fatal   bool              `json:"fatal"`
}

// ConvergenceReport summarizes the convergence poller
type ConvergenceReport struct {
	Converged bool `json:"converged"`
	Attempts  int  `json:"attempts"`
	// Observations holds one count per attempt; -1 marks a failed request
	Observations []int `json:"observations"`
	StableCount  int   `json:"stable_count"`
}

// PaginationReport summarizes the full-set walk
type PaginationReport struct {
	PagesRequested     int    `json:"pages_requested"`
	DeclaredTotalPages int    `json:"declared_total_pages"`
	RecordsSeen        int    `json:"records_seen"`
	Complete           bool   `json:"complete"`
	StopReason         string `json:"stop_reason"`
}

// ConfirmationState describes how far the confirmation step got
type ConfirmationState string

const (
	ConfirmationNotAttempted     ConfirmationState = "not_attempted"
	ConfirmationNothingToConfirm ConfirmationState = "nothing_to_confirm"
	ConfirmationConfirmed        ConfirmationState = "confirmed"
	ConfirmationPartial          ConfirmationState = "partial"
	ConfirmationFailed           ConfirmationState = "failed"
)

// ConfirmationReport summarizes the batch confirmer
type ConfirmationReport struct {
	State     ConfirmationState  `json:"state"`
	Requested int                `json:"requested"`
	Confirmed int                `json:"confirmed"`
	Batches   []SubmissionResult `json:"batches,omitempty"`
}

// Verdict is the three-way classification of a run, plus skipped runs
type Verdict string

const (
	VerdictFullSuccess Verdict = "full_success"
	VerdictPartial     Verdict = "partial"
	VerdictAborted     Verdict = "aborted"
	VerdictSkipped     Verdict = "skipped"
)

// Process exit codes per verdict
const (
	ExitFullSuccess = 0
	ExitAborted     = 1
	ExitPartial     = 2
)

// RunOutcome is everything a single run produced, handed to the reporters
type RunOutcome struct {
	ID         string    `json:"id"`
	Target     string    `json:"target"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Artifact    *ArtifactInfo      `json:"artifact,omitempty"`
	Submission  *SubmissionResult  `json:"submission,omitempty"`
	Convergence *ConvergenceReport `json:"convergence,omitempty"`
	Pagination  *PaginationReport  `json:"pagination,omitempty"`

	EligibleIDs        []RecordID         `json:"eligible_ids"`
	UnknownStatusCount int                `json:"unknown_status_count"`
	Confirmation       ConfirmationReport `json:"confirmation"`

	Conditions []Condition `json:"conditions"`
	Verdict    Verdict     `json:"verdict"`
}

// NewRunOutcome creates an outcome with confirmation marked as not attempted
func NewRunOutcome(id, target string, startedAt time.Time) *RunOutcome {
	return &RunOutcome{
		ID:           id,
		Target:       target,
		StartedAt:    startedAt,
		EligibleIDs:  []RecordID{},
		Confirmation: ConfirmationReport{State: ConfirmationNotAttempted},
		Conditions:   []Condition{},
	}
}

// Record appends a condition built from err
func (o *RunOutcome) Record(stage Stage, err error, fatal bool) {
	if err == nil {
		return
	}
	code := apperrors.CodeOf(err)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	o.Conditions = append(o.Conditions, Condition{
		Stage:   stage,
		Code:    code,
		Message: err.Error(),
		Fatal:   fatal,
	})
}

// Has reports whether a condition with the given code was recorded
func (o *RunOutcome) Has(code apperrors.ErrCode) bool {
	for _, c := range o.Conditions {
		if c.Code == code {
			return true
		}
	}
	return false
}

// HasFatal reports whether any fatal condition was recorded
func (o *RunOutcome) HasFatal() bool {
	for _, c := range o.Conditions {
		if c.Fatal {
			return true
		}
	}
	return false
}

// Finish stamps the end time and classifies the run
func (o *RunOutcome) Finish(at time.Time) {
	o.FinishedAt = at
	o.Verdict = o.classify()
}

func (o *RunOutcome) classify() Verdict {
	switch {
	case o.Has(apperrors.ErrCodeNoArtifactAvailable):
		return VerdictSkipped
	case o.Confirmation.State == ConfirmationNotAttempted:
		return VerdictAborted
	case o.Confirmation.State == ConfirmationConfirmed && len(o.Conditions) == 0:
		return VerdictFullSuccess
	default:
		return VerdictPartial
	}
}

// ExitCode maps the verdict to the process exit status
func (o *RunOutcome) ExitCode() int {
	switch o.Verdict {
	case VerdictFullSuccess, VerdictSkipped:
		return ExitFullSuccess
	case VerdictPartial:
		return ExitPartial
	default:
		return ExitAborted
	}
}

// RunSummary is the listing view of a stored run
type RunSummary struct {
	ID               string    `json:"id"`
	Target           string    `json:"target"`
	Verdict          Verdict   `json:"verdict"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	ArtifactName     string    `json:"artifact_name"`
	ArtifactChecksum string    `json:"artifact_checksum"`
	SubmissionStatus int       `json:"submission_status"`
	Eligible         int       `json:"eligible"`
	Confirmed        int       `json:"confirmed"`
}

// Summary returns the listing view of the outcome
func (o *RunOutcome) Summary() *RunSummary {
	s := &RunSummary{
		ID:         o.ID,
		Target:     o.Target,
		Verdict:    o.Verdict,
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
		Eligible:   len(o.EligibleIDs),
		Confirmed:  o.Confirmation.Confirmed,
	}
	if o.Artifact != nil {
		s.ArtifactName = o.Artifact.Name
		s.ArtifactChecksum = o.Artifact.Checksum
	}
	if o.Submission != nil {
		s.SubmissionStatus = o.Submission.StatusCode
	}
	return s
}

// Submitted reports whether the backend accepted the import
func (o *RunOutcome) Submitted() bool {
	return o.Submission != nil && o.Submission.IsSuccess() && !o.Has(apperrors.ErrCodeSubmissionFailed)
}
