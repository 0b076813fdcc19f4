package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
)

const (
	pollSize = 500
	walkSize = 10
)

func testOptions() Options {
	return Options{
		TargetParams:     map[string]string{"shopId": "42"},
		Eligible:         domain.NewStatusSet(0, 1, 2),
		Known:            domain.NewStatusSet(0, 1, 2, 3, 4),
		Poll:             PollerConfig{MaxAttempts: 10, Interval: 5 * time.Second, PageSize: pollSize},
		Pages:            PaginatorConfig{PageSize: walkSize, SafetyCap: 50},
		ConfirmChunkSize: 500,
	}
}

func testArtifact() *domain.ImportArtifact {
	return domain.NewImportArtifact("orders-20261014.xlsx", []byte("sheet"), time.Date(2026, 10, 14, 5, 0, 0, 0, time.UTC))
}

// pollThenWalk answers polls with the given counts and the walk with pages
func pollThenWalk(counts []int, walk func(page int) (*domain.Page, error)) func(q domain.ListQuery) (*domain.Page, error) {
	polls := 0
	return func(q domain.ListQuery) (*domain.Page, error) {
		if q.Size == pollSize {
			i := polls
			polls++
			if i >= len(counts) {
				i = len(counts) - 1
			}
			return &domain.Page{Number: 1, Size: q.Size, Total: counts[i]}, nil
		}
		return walk(q.Page)
	}
}

func runPipeline(t *testing.T, opts Options, api *fakeBackend) (*domain.RunOutcome, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	outcome := domain.NewRunOutcome("run-1", "shop-42", clock.Now())
	NewPipeline(opts, clock, discardLogger()).Execute(context.Background(), api, testArtifact(), outcome)
	outcome.Finish(clock.Now())
	return outcome, clock
}

func TestPipeline_FullSuccess(t *testing.T) {
	api := &fakeBackend{
		submitResult: domain.SubmissionResult{StatusCode: 200, RawBody: `{"code":200,"msg":"ok"}`},
		list: pollThenWalk([]int{0, 5, 5}, func(page int) (*domain.Page, error) {
			return pageOf(page, 1, 1, 2, 3, 4, 5), nil
		}),
	}

	outcome, clock := runPipeline(t, testOptions(), api)

	assert.Equal(t, 1, api.submits)
	assert.Len(t, api.queriesOfSize(pollSize), 3)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, clock.sleeps)
	assert.Len(t, api.queriesOfSize(walkSize), 1)

	require.Len(t, api.confirmations, 1)
	body, err := json.Marshal(api.confirmations[0])
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,5]`, string(body))

	assert.Equal(t, domain.VerdictFullSuccess, outcome.Verdict)
	assert.Equal(t, domain.ExitFullSuccess, outcome.ExitCode())
	assert.Empty(t, outcome.Conditions)
	assert.True(t, outcome.Convergence.Converged)
	assert.True(t, outcome.Pagination.Complete)
	assert.Equal(t, ids(1, 2, 5), outcome.EligibleIDs)
	assert.Equal(t, 3, outcome.Confirmation.Confirmed)
	assert.True(t, outcome.Submitted())
}

func TestPipeline_SubmissionFailureAbortsBeforeListing(t *testing.T) {
	api := &fakeBackend{
		submitResult: domain.SubmissionResult{StatusCode: 500, RawBody: "Internal Server Error: template mismatch"},
	}

	outcome, _ := runPipeline(t, testOptions(), api)

	assert.Empty(t, api.queries)
	assert.Empty(t, api.confirmations)
	assert.Equal(t, domain.VerdictAborted, outcome.Verdict)
	assert.Equal(t, domain.ExitAborted, outcome.ExitCode())
	assert.Equal(t, domain.ConfirmationNotAttempted, outcome.Confirmation.State)
	assert.True(t, outcome.Has(apperrors.ErrCodeSubmissionFailed))
	require.NotNil(t, outcome.Submission)
	assert.Equal(t, "Internal Server Error: template mismatch", outcome.Submission.RawBody)
	assert.False(t, outcome.Submitted())
}

func TestPipeline_SubmissionTransportFailure(t *testing.T) {
	api := &fakeBackend{submitErr: errors.New("dial tcp: i/o timeout")}

	outcome, _ := runPipeline(t, testOptions(), api)

	assert.Nil(t, outcome.Submission)
	assert.Empty(t, api.queries)
	assert.Equal(t, domain.VerdictAborted, outcome.Verdict)
}

func TestPipeline_RejectedBodyIsSubmissionFailure(t *testing.T) {
	api := &fakeBackend{submitResult: domain.SubmissionResult{StatusCode: 200, RawBody: `{"code":500,"msg":"bad sheet"}`}}
	opts := testOptions()
	opts.Inspect = func(body string) error { return errors.New("code 500") }

	outcome, _ := runPipeline(t, opts, api)

	assert.True(t, outcome.Has(apperrors.ErrCodeSubmissionFailed))
	assert.Empty(t, api.queries)
	assert.Equal(t, domain.VerdictAborted, outcome.Verdict)
}

func TestPipeline_SafetyCap(t *testing.T) {
	api := &fakeBackend{
		submitResult: domain.SubmissionResult{StatusCode: 200},
		list: pollThenWalk([]int{7, 7}, func(page int) (*domain.Page, error) {
			return pageOf(page, 999, int64(page)), nil
		}),
	}
	opts := testOptions()
	opts.Pages.SafetyCap = 3

	outcome, _ := runPipeline(t, opts, api)

	assert.Len(t, api.queriesOfSize(walkSize), 3)
	assert.True(t, outcome.Has(apperrors.ErrCodeRunawayPaginationGuard))
	assert.Equal(t, StopSafetyCap, outcome.Pagination.StopReason)
	// the partial set is still confirmed
	require.Len(t, api.confirmations, 1)
	assert.Equal(t, ids(1, 2), api.confirmations[0])
	assert.Equal(t, domain.VerdictPartial, outcome.Verdict)
	assert.Equal(t, domain.ExitPartial, outcome.ExitCode())
}

func TestPipeline_ConvergenceTimeoutContinues(t *testing.T) {
	api := &fakeBackend{
		submitResult: domain.SubmissionResult{StatusCode: 200},
		list: pollThenWalk([]int{0}, func(page int) (*domain.Page, error) {
			return pageOf(page, 1, 1), nil
		}),
	}
	opts := testOptions()
	opts.Poll.MaxAttempts = 3

	outcome, _ := runPipeline(t, opts, api)

	assert.True(t, outcome.Has(apperrors.ErrCodeConvergenceTimeout))
	assert.False(t, outcome.Convergence.Converged)
	assert.Len(t, api.confirmations, 1)
	assert.Equal(t, domain.ConfirmationConfirmed, outcome.Confirmation.State)
	assert.Equal(t, domain.VerdictPartial, outcome.Verdict)
}

func TestPipeline_ConvergenceTimeoutCanAbort(t *testing.T) {
	api := &fakeBackend{
		submitResult: domain.SubmissionResult{StatusCode: 200},
		list: pollThenWalk([]int{0}, func(page int) (*domain.Page, error) {
			return pageOf(page, 1, 1), nil
		}),
	}
	opts := testOptions()
	opts.Poll.MaxAttempts = 2
	opts.AbortOnConvergenceTimeout = true

	outcome, _ := runPipeline(t, opts, api)

	assert.Empty(t, api.queriesOfSize(walkSize))
	assert.Empty(t, api.confirmations)
	assert.Equal(t, domain.VerdictAborted, outcome.Verdict)
}

func TestPipeline_NothingEligible(t *testing.T) {
	api := &fakeBackend{
		submitResult: domain.SubmissionResult{StatusCode: 200},
		list: pollThenWalk([]int{2, 2}, func(page int) (*domain.Page, error) {
			return pageOf(page, 1, 3, 4), nil
		}),
	}

	outcome, _ := runPipeline(t, testOptions(), api)

	assert.Empty(t, api.confirmations)
	assert.Equal(t, domain.ConfirmationNothingToConfirm, outcome.Confirmation.State)
	assert.Equal(t, domain.VerdictPartial, outcome.Verdict)
}

func TestPipeline_ConfirmationFailure(t *testing.T) {
	api := &fakeBackend{
		submitResult: domain.SubmissionResult{StatusCode: 200},
		list: pollThenWalk([]int{5, 5}, func(page int) (*domain.Page, error) {
			return pageOf(page, 1, 1, 2, 3, 4, 5), nil
		}),
		confirm: func(call int, ids []domain.RecordID) (domain.SubmissionResult, error) {
			return domain.SubmissionResult{StatusCode: 503, RawBody: "unavailable"}, nil
		},
	}

	outcome, _ := runPipeline(t, testOptions(), api)

	assert.True(t, outcome.Has(apperrors.ErrCodeConfirmationFailed))
	assert.Equal(t, domain.ConfirmationFailed, outcome.Confirmation.State)
	assert.Equal(t, domain.VerdictPartial, outcome.Verdict)
	assert.Equal(t, domain.ExitPartial, outcome.ExitCode())
}

func TestPipeline_ListFilters(t *testing.T) {
	api := &fakeBackend{
		submitResult: domain.SubmissionResult{StatusCode: 200},
		list: pollThenWalk([]int{1, 1}, func(page int) (*domain.Page, error) {
			return pageOf(page, 1, 1), nil
		}),
	}
	opts := testOptions()
	opts.FilterStatuses = domain.NewStatusSet(1, 0)
	opts.Lookback = 24 * time.Hour

	outcome, _ := runPipeline(t, opts, api)

	require.NotEmpty(t, api.queries)
	for _, q := range api.queries {
		assert.Equal(t, []domain.Status{0, 1}, q.Statuses)
		assert.Equal(t, outcome.StartedAt.Add(-24*time.Hour), q.Since)
	}
}

func TestPipeline_UnknownStatusesCounted(t *testing.T) {
	api := &fakeBackend{
		submitResult: domain.SubmissionResult{StatusCode: 200},
		list: pollThenWalk([]int{2, 2}, func(page int) (*domain.Page, error) {
			return &domain.Page{Number: 1, TotalPages: 1, Records: []domain.Record{
				{ID: domain.NumericRecordID(1), Status: 1},
				{ID: domain.NumericRecordID(2), Status: 9},
			}}, nil
		}),
	}

	outcome, _ := runPipeline(t, testOptions(), api)

	assert.Equal(t, 1, outcome.UnknownStatusCount)
	assert.Equal(t, ids(1), outcome.EligibleIDs)
}

func TestPipeline_MalformedStatusStillConfirmsValidIDs(t *testing.T) {
	var listed domain.Page
	require.NoError(t, json.Unmarshal([]byte(`{"current":1,"pages":1,"total":4,"records":[
		{"id":1,"status":0},
		{"id":2,"status":null},
		{"id":3,"status":1},
		{"id":4,"status":"PENDING"}
	]}`), &listed))

	api := &fakeBackend{
		submitResult: domain.SubmissionResult{StatusCode: 200},
		list: pollThenWalk([]int{4, 4}, func(page int) (*domain.Page, error) {
			return &listed, nil
		}),
	}

	outcome, _ := runPipeline(t, testOptions(), api)

	assert.Equal(t, ids(1, 3), outcome.EligibleIDs)
	assert.Equal(t, 2, outcome.UnknownStatusCount)
	require.Len(t, api.confirmations, 1)
	assert.Equal(t, ids(1, 3), api.confirmations[0])
	assert.Equal(t, domain.ConfirmationConfirmed, outcome.Confirmation.State)
	assert.Equal(t, domain.VerdictFullSuccess, outcome.Verdict)
}

func TestPipeline_CanceledDuringConfirmation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := &fakeBackend{
		submitResult: domain.SubmissionResult{StatusCode: 200},
		list: pollThenWalk([]int{3, 3}, func(page int) (*domain.Page, error) {
			return pageOf(page, 1, 1, 2, 5), nil
		}),
		confirm: func(call int, ids []domain.RecordID) (domain.SubmissionResult, error) {
			cancel()
			return domain.SubmissionResult{}, context.Canceled
		},
	}

	clock := newFakeClock()
	outcome := domain.NewRunOutcome("run-1", "shop-42", clock.Now())
	NewPipeline(testOptions(), clock, discardLogger()).Execute(ctx, api, testArtifact(), outcome)
	outcome.Finish(clock.Now())

	require.Len(t, outcome.Conditions, 1)
	assert.Equal(t, domain.StageConfirm, outcome.Conditions[0].Stage)
	assert.Equal(t, apperrors.ErrCodeCanceled, outcome.Conditions[0].Code)
	assert.True(t, outcome.Conditions[0].Fatal)
	assert.False(t, outcome.Has(apperrors.ErrCodeConfirmationFailed))
}
