package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
	"github.com/kurihiro0119/order-import-sync/internal/storage"
)

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var base = time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC)

func finishedRun(id, target string, startedAt time.Time, checksum string, status int) *domain.RunOutcome {
	outcome := domain.NewRunOutcome(id, target, startedAt)
	outcome.Artifact = &domain.ArtifactInfo{Name: id + ".xlsx", Size: 10, Checksum: checksum, ModifiedAt: startedAt}
	if status != 0 {
		outcome.Submission = &domain.SubmissionResult{StatusCode: status, RawBody: "{}"}
	}
	if status >= 200 && status < 300 {
		outcome.EligibleIDs = []domain.RecordID{domain.NumericRecordID(1), domain.NewRecordID("A-2")}
		outcome.Confirmation = domain.ConfirmationReport{State: domain.ConfirmationConfirmed, Requested: 2, Confirmed: 2}
	}
	outcome.Finish(startedAt.Add(time.Minute))
	return outcome
}

func TestSQLiteStorage_SaveAndGetRun(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	run := finishedRun("run-1", "shop-42", base, "abc", 200)

	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, domain.VerdictFullSuccess, got.Verdict)
	assert.Equal(t, run.EligibleIDs, got.EligibleIDs)
	assert.True(t, got.StartedAt.Equal(base))
	assert.Equal(t, "abc", got.Artifact.Checksum)
}

func TestSQLiteStorage_SaveRunReplaces(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	run := finishedRun("run-1", "shop-42", base, "abc", 500)
	require.NoError(t, s.SaveRun(ctx, run))

	run.Verdict = domain.VerdictPartial
	require.NoError(t, s.SaveRun(ctx, run))

	runs, err := s.ListRuns(ctx, "", domain.TimeRange{}, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.VerdictPartial, runs[0].Verdict)
}

func TestSQLiteStorage_GetRunNotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.GetRun(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSQLiteStorage_ListRuns(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	for i, target := range []string{"shop-42", "shop-42", "shop-7", "shop-42"} {
		id := []string{"a", "b", "c", "d"}[i]
		require.NoError(t, s.SaveRun(ctx, finishedRun(id, target, base.Add(time.Duration(i)*time.Hour), id, 200)))
	}

	tests := []struct {
		name      string
		target    string
		timeRange domain.TimeRange
		limit     int
		want      []string
	}{
		{name: "all", want: []string{"d", "c", "b", "a"}},
		{name: "by target", target: "shop-42", want: []string{"d", "b", "a"}},
		{name: "limit", target: "shop-42", limit: 2, want: []string{"d", "b"}},
		{name: "since", timeRange: domain.TimeRange{Start: base.Add(2 * time.Hour)}, want: []string{"d", "c"}},
		{name: "window", timeRange: domain.TimeRange{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}, want: []string{"c", "b"}},
		{name: "unknown target", target: "shop-0", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := s.ListRuns(ctx, tt.target, tt.timeRange, tt.limit)
			require.NoError(t, err)

			got := []string{}
			for _, r := range runs {
				got = append(got, r.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSQLiteStorage_LastSubmittedArtifact(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	last, err := s.LastSubmittedArtifact(ctx, "shop-42")
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, s.SaveRun(ctx, finishedRun("old", "shop-42", base, "sum-old", 200)))
	require.NoError(t, s.SaveRun(ctx, finishedRun("accepted", "shop-42", base.Add(time.Hour), "sum-accepted", 200)))
	require.NoError(t, s.SaveRun(ctx, finishedRun("rejected", "shop-42", base.Add(2*time.Hour), "sum-rejected", 500)))
	require.NoError(t, s.SaveRun(ctx, finishedRun("other", "shop-7", base.Add(3*time.Hour), "sum-other", 200)))

	last, err = s.LastSubmittedArtifact(ctx, "shop-42")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "sum-accepted", last.Checksum)
}
