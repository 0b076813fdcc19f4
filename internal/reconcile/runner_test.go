package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
)

type stubCredentials struct {
	cred domain.Credential
	err  error
}

func (s stubCredentials) Credential(ctx context.Context) (domain.Credential, error) {
	return s.cred, s.err
}

type stubArtifacts struct {
	artifact *domain.ImportArtifact
	err      error
}

func (s stubArtifacts) Latest(ctx context.Context) (*domain.ImportArtifact, error) {
	return s.artifact, s.err
}

type stubLedger struct {
	last *domain.ArtifactInfo
	err  error
}

func (s stubLedger) LastSubmittedArtifact(ctx context.Context, target string) (*domain.ArtifactInfo, error) {
	return s.last, s.err
}

type recordingReporter struct {
	outcomes []*domain.RunOutcome
	err      error
}

func (r *recordingReporter) Report(ctx context.Context, outcome *domain.RunOutcome) error {
	r.outcomes = append(r.outcomes, outcome)
	return r.err
}

func happyBackend() *fakeBackend {
	return &fakeBackend{
		submitResult: domain.SubmissionResult{StatusCode: 200},
		list: pollThenWalk([]int{5, 5}, func(page int) (*domain.Page, error) {
			return pageOf(page, 1, 1, 2, 3, 4, 5), nil
		}),
	}
}

func newTestRunner(api *fakeBackend, reporter *recordingReporter) (*Runner, *domain.Credential) {
	var used domain.Credential
	clock := newFakeClock()
	runner := &Runner{
		Target:      "shop-42",
		Credentials: stubCredentials{cred: domain.Credential{Token: "tok"}},
		Artifacts:   stubArtifacts{artifact: testArtifact()},
		Connect: func(cred domain.Credential) Backend {
			used = cred
			return api
		},
		Pipeline: NewPipeline(testOptions(), clock, discardLogger()),
		Clock:    clock,
		Logger:   discardLogger(),
	}
	if reporter != nil {
		runner.Reporter = reporter
	}
	return runner, &used
}

func TestRunner_FullRun(t *testing.T) {
	api := happyBackend()
	reporter := &recordingReporter{}
	runner, used := newTestRunner(api, reporter)

	outcome := runner.Run(context.Background())

	assert.NotEmpty(t, outcome.ID)
	assert.Equal(t, "shop-42", outcome.Target)
	assert.Equal(t, "tok", used.Token)
	assert.Equal(t, domain.VerdictFullSuccess, outcome.Verdict)
	require.NotNil(t, outcome.Artifact)
	assert.Equal(t, testArtifact().Checksum, outcome.Artifact.Checksum)
	require.Len(t, reporter.outcomes, 1)
	assert.Same(t, outcome, reporter.outcomes[0])
	assert.False(t, outcome.FinishedAt.Before(outcome.StartedAt))
}

func TestRunner_NoCredentialAborts(t *testing.T) {
	api := happyBackend()
	runner, _ := newTestRunner(api, nil)
	runner.Credentials = stubCredentials{err: errors.New("login refused")}

	outcome := runner.Run(context.Background())

	assert.True(t, outcome.Has(apperrors.ErrCodeAuthUnavailable))
	assert.Equal(t, domain.VerdictAborted, outcome.Verdict)
	assert.Equal(t, 0, api.submits)
}

func TestRunner_NoArtifactSkips(t *testing.T) {
	api := happyBackend()
	runner, _ := newTestRunner(api, nil)
	runner.Artifacts = stubArtifacts{err: apperrors.NewNoArtifactError("no file in ./reports")}

	outcome := runner.Run(context.Background())

	assert.Equal(t, domain.VerdictSkipped, outcome.Verdict)
	assert.Equal(t, domain.ExitFullSuccess, outcome.ExitCode())
	assert.Equal(t, 0, api.submits)
}

func TestRunner_ArtifactErrorAborts(t *testing.T) {
	api := happyBackend()
	runner, _ := newTestRunner(api, nil)
	runner.Artifacts = stubArtifacts{err: errors.New("permission denied")}

	outcome := runner.Run(context.Background())

	assert.Equal(t, domain.VerdictAborted, outcome.Verdict)
	assert.True(t, outcome.HasFatal())
}

func TestRunner_AlreadySubmittedArtifact(t *testing.T) {
	tests := []struct {
		name        string
		force       bool
		wantVerdict domain.Verdict
		wantSubmits int
	}{
		{name: "skipped", force: false, wantVerdict: domain.VerdictSkipped, wantSubmits: 0},
		{name: "forced", force: true, wantVerdict: domain.VerdictFullSuccess, wantSubmits: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := happyBackend()
			runner, _ := newTestRunner(api, nil)
			runner.Ledger = stubLedger{last: testArtifact().Info()}
			runner.Force = tt.force

			outcome := runner.Run(context.Background())

			assert.Equal(t, tt.wantVerdict, outcome.Verdict)
			assert.Equal(t, tt.wantSubmits, api.submits)
		})
	}
}

func TestRunner_NewArtifactIsSubmitted(t *testing.T) {
	api := happyBackend()
	runner, _ := newTestRunner(api, nil)
	runner.Ledger = stubLedger{last: &domain.ArtifactInfo{Name: "orders-20261013.xlsx", Checksum: "deadbeef"}}

	outcome := runner.Run(context.Background())

	assert.Equal(t, 1, api.submits)
	assert.Equal(t, domain.VerdictFullSuccess, outcome.Verdict)
}

func TestRunner_LedgerUnavailableAborts(t *testing.T) {
	api := happyBackend()
	runner, _ := newTestRunner(api, nil)
	runner.Ledger = stubLedger{err: errors.New("database is locked")}

	outcome := runner.Run(context.Background())

	assert.Equal(t, domain.VerdictAborted, outcome.Verdict)
	assert.True(t, outcome.Has(apperrors.ErrCodeInternal))
	assert.Equal(t, 0, api.submits)
}

func TestRunner_ReporterErrorDoesNotChangeVerdict(t *testing.T) {
	reporter := &recordingReporter{err: errors.New("disk full")}
	runner, _ := newTestRunner(happyBackend(), reporter)

	outcome := runner.Run(context.Background())

	assert.Equal(t, domain.VerdictFullSuccess, outcome.Verdict)
	assert.Len(t, reporter.outcomes, 1)
}
