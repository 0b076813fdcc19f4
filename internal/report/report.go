// Package report renders and stores finished run outcomes.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	"github.com/kurihiro0119/order-import-sync/internal/storage"
)

// Reporter receives the finished outcome of a run
type Reporter interface {
	Report(ctx context.Context, outcome *domain.RunOutcome) error
}

// TableReporter prints a human readable summary
type TableReporter struct {
	w io.Writer
}

// NewTableReporter creates a table reporter writing to w
func NewTableReporter(w io.Writer) *TableReporter {
	return &TableReporter{w: w}
}

// Report prints one row per stage, the recorded conditions and the raw backend bodies
func (r *TableReporter) Report(ctx context.Context, o *domain.RunOutcome) error {
	fmt.Fprintf(r.w, "\nRun %s (%s)\n", o.ID, o.Target)
	fmt.Fprintf(r.w, "Verdict: %s (exit %d), %s\n\n", o.Verdict, o.ExitCode(), o.FinishedAt.Sub(o.StartedAt).Round(time.Millisecond))

	table := tablewriter.NewWriter(r.w)
	table.SetHeader([]string{"Stage", "Result", "Detail"})
	for _, row := range stageRows(o) {
		table.Append(row)
	}
	table.Render()

	if len(o.Conditions) > 0 {
		fmt.Fprintln(r.w, "\nConditions:")
		conditions := tablewriter.NewWriter(r.w)
		conditions.SetHeader([]string{"Stage", "Code", "Fatal", "Message"})
		conditions.SetAutoWrapText(false)
		for _, c := range o.Conditions {
			conditions.Append([]string{string(c.Stage), string(c.Code), fmt.Sprintf("%t", c.Fatal), c.Message})
		}
		conditions.Render()
	}

	if o.Submission != nil {
		fmt.Fprintf(r.w, "\nImport response (%d):\n%s\n", o.Submission.StatusCode, o.Submission.RawBody)
	}
	for i, batch := range o.Confirmation.Batches {
		fmt.Fprintf(r.w, "\nConfirmation response %d (%d):\n%s\n", i+1, batch.StatusCode, batch.RawBody)
	}
	return nil
}

func stageRows(o *domain.RunOutcome) [][]string {
	var rows [][]string

	if o.Artifact != nil {
		rows = append(rows, []string{"artifact", o.Artifact.Name, fmt.Sprintf("%d bytes, sha256 %.12s", o.Artifact.Size, o.Artifact.Checksum)})
	} else {
		rows = append(rows, []string{"artifact", "none", ""})
	}

	switch {
	case o.Submission == nil:
		rows = append(rows, []string{"submit", "not sent", ""})
	case o.Submitted():
		rows = append(rows, []string{"submit", "accepted", fmt.Sprintf("HTTP %d", o.Submission.StatusCode)})
	default:
		rows = append(rows, []string{"submit", "failed", fmt.Sprintf("HTTP %d", o.Submission.StatusCode)})
	}

	if c := o.Convergence; c != nil {
		result := "timeout"
		if c.Converged {
			result = fmt.Sprintf("stable at %d", c.StableCount)
		}
		rows = append(rows, []string{"poll", result, fmt.Sprintf("%d attempts %v", c.Attempts, c.Observations)})
	}

	if p := o.Pagination; p != nil {
		result := "complete"
		if !p.Complete {
			result = "incomplete"
		}
		rows = append(rows, []string{"paginate", result, fmt.Sprintf("%d pages (declared %d), %d records, %s",
			p.PagesRequested, p.DeclaredTotalPages, p.RecordsSeen, p.StopReason)})
		rows = append(rows, []string{"extract", fmt.Sprintf("%d eligible", len(o.EligibleIDs)), unknownDetail(o.UnknownStatusCount)})
	}

	rows = append(rows, []string{"confirm", string(o.Confirmation.State),
		fmt.Sprintf("%d/%d in %d requests", o.Confirmation.Confirmed, o.Confirmation.Requested, len(o.Confirmation.Batches))})
	return rows
}

func unknownDetail(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d with unknown status", n)
}

// JSONReporter writes the full outcome as indented JSON
type JSONReporter struct {
	w io.Writer
}

// NewJSONReporter creates a JSON reporter writing to w
func NewJSONReporter(w io.Writer) *JSONReporter {
	return &JSONReporter{w: w}
}

func (r *JSONReporter) Report(ctx context.Context, o *domain.RunOutcome) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(o)
}

// StoreReporter saves outcomes to the run ledger
type StoreReporter struct {
	store storage.Storage
}

// NewStoreReporter creates a reporter persisting to store
func NewStoreReporter(store storage.Storage) *StoreReporter {
	return &StoreReporter{store: store}
}

func (r *StoreReporter) Report(ctx context.Context, o *domain.RunOutcome) error {
	if err := r.store.SaveRun(context.WithoutCancel(ctx), o); err != nil {
		return fmt.Errorf("failed to save run %s: %w", o.ID, err)
	}
	return nil
}

// Multi reports to every reporter in order and joins their errors
type Multi []Reporter

func (m Multi) Report(ctx context.Context, o *domain.RunOutcome) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Summaries renders run listings as a table
func Summaries(w io.Writer, runs []*domain.RunSummary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Target", "Started", "Verdict", "Artifact", "Status", "Eligible", "Confirmed"})
	for _, s := range runs {
		table.Append([]string{
			s.ID,
			s.Target,
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			string(s.Verdict),
			s.ArtifactName,
			statusText(s.SubmissionStatus),
			fmt.Sprintf("%d", s.Eligible),
			fmt.Sprintf("%d", s.Confirmed),
		})
	}
	table.Render()
}

// Stats renders per-target statistics as a table
func Stats(w io.Writer, stats []*domain.TargetStats) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Target", "Runs", "Verdicts", "Conv. Timeouts", "Page Shortfalls", "Confirm Failures", "Eligible", "Confirmed", "Last Run"})
	for _, s := range stats {
		last := ""
		if s.LastRun != nil {
			last = fmt.Sprintf("%s %s", s.LastRun.StartedAt.Local().Format("2006-01-02 15:04"), s.LastRun.Verdict)
		}
		table.Append([]string{
			s.Target,
			fmt.Sprintf("%d", s.Runs),
			verdictText(s.ByVerdict),
			fmt.Sprintf("%d", s.ConvergenceTimeouts),
			fmt.Sprintf("%d", s.PaginationShortfalls),
			fmt.Sprintf("%d", s.ConfirmationFailures),
			fmt.Sprintf("%d", s.Eligible),
			fmt.Sprintf("%d", s.Confirmed),
			last,
		})
	}
	table.Render()
}

func statusText(code int) string {
	if code == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", code)
}

func verdictText(counts map[domain.Verdict]int) string {
	var parts []string
	for _, v := range []domain.Verdict{domain.VerdictFullSuccess, domain.VerdictPartial, domain.VerdictAborted, domain.VerdictSkipped} {
		if n := counts[v]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", v, n))
		}
	}
	return strings.Join(parts, " ")
}
