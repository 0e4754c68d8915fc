package app

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opsnag/mr-nag/internal/apperr"
	"github.com/opsnag/mr-nag/internal/config"
	"github.com/opsnag/mr-nag/internal/models"
)

type fakeLister struct {
	mrs        []models.MergeRequest
	err        error
	calls      int
	gotProject int64
}

func (f *fakeLister) OpenMergeRequests(ctx context.Context, projectID int64) ([]models.MergeRequest, error) {
	f.calls++
	f.gotProject = projectID
	return f.mrs, f.err
}

type fakeNotifier struct {
	err       error
	calls     int
	gotMRs    []models.MergeRequest
	gotBranch string
}

func (f *fakeNotifier) Notify(ctx context.Context, mrs []models.MergeRequest, targetBranch string) error {
	f.calls++
	f.gotMRs = mrs
	f.gotBranch = targetBranch
	return f.err
}

func testApp(cfg *config.Config, lister *fakeLister, notifier *fakeNotifier) (*App, *bytes.Buffer) {
	var stdout bytes.Buffer
	var n Notifier
	if notifier != nil {
		n = notifier
	}
	a := New(cfg, lister, n, zap.NewNop(), &stdout)
	return a, &stdout
}

func TestRunNothingFound(t *testing.T) {
	cfg := &config.Config{GitlabProjectID: 42, SlackWebhookURL: "https://hooks.example.com/x"}
	lister := &fakeLister{}
	notifier := &fakeNotifier{}
	a, stdout := testApp(cfg, lister, notifier)

	require.NoError(t, a.Run(context.Background()))
	require.Equal(t, 1, lister.calls)
	require.Equal(t, int64(42), lister.gotProject)
	require.Zero(t, notifier.calls)
	require.Equal(t, "found 0 open merge request(s)\n", stdout.String())
}

func TestRunMatchedAndNotified(t *testing.T) {
	cfg := &config.Config{
		GitlabProjectID: 42,
		TargetBranch:    "production",
		SlackWebhookURL: "https://hooks.example.com/x",
	}
	lister := &fakeLister{mrs: []models.MergeRequest{
		{ID: 1, Title: "ship it", TargetBranch: "production"},
		{ID: 2, Title: "wip", TargetBranch: "develop"},
	}}
	notifier := &fakeNotifier{}
	a, stdout := testApp(cfg, lister, notifier)

	require.NoError(t, a.Run(context.Background()))
	require.Equal(t, 1, notifier.calls)
	require.Len(t, notifier.gotMRs, 1)
	require.Equal(t, int64(1), notifier.gotMRs[0].ID)
	require.Equal(t, "production", notifier.gotBranch)
	require.Equal(t, "found 1 open merge request(s)\n", stdout.String())
}

func TestRunNoTargetBranchPassesAll(t *testing.T) {
	cfg := &config.Config{GitlabProjectID: 42, SlackWebhookURL: "https://hooks.example.com/x"}
	lister := &fakeLister{mrs: []models.MergeRequest{
		{ID: 1, TargetBranch: "production"},
		{ID: 2, TargetBranch: "develop"},
	}}
	notifier := &fakeNotifier{}
	a, _ := testApp(cfg, lister, notifier)

	require.NoError(t, a.Run(context.Background()))
	require.Len(t, notifier.gotMRs, 2)
}

func TestRunNoWebhookSkipsNotification(t *testing.T) {
	cfg := &config.Config{GitlabProjectID: 42}
	lister := &fakeLister{mrs: []models.MergeRequest{
		{ID: 1, Title: "ship it", TargetBranch: "production"},
	}}
	a, stdout := testApp(cfg, lister, nil)

	require.NoError(t, a.Run(context.Background()))
	require.Equal(t, "found 1 open merge request(s)\n", stdout.String())
}

func TestRunDwellFilter(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	cfg := &config.Config{
		GitlabProjectID: 42,
		MinDwell:        5 * time.Minute,
		SlackWebhookURL: "https://hooks.example.com/x",
	}
	lister := &fakeLister{mrs: []models.MergeRequest{
		{ID: 1, UpdatedAt: now.Add(-10 * time.Minute)},
		{ID: 2, UpdatedAt: now.Add(-time.Minute)},
	}}
	notifier := &fakeNotifier{}
	a, _ := testApp(cfg, lister, notifier)
	a.now = func() time.Time { return now }

	require.NoError(t, a.Run(context.Background()))
	require.Len(t, notifier.gotMRs, 1)
	require.Equal(t, int64(1), notifier.gotMRs[0].ID)
}

func TestRunListerErrorPropagates(t *testing.T) {
	cfg := &config.Config{GitlabProjectID: 42}
	lister := &fakeLister{err: apperr.New(apperr.KindAuth, "token rejected")}
	a, stdout := testApp(cfg, lister, nil)

	err := a.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, apperr.KindAuth, apperr.KindOf(err))
	require.Empty(t, stdout.String())
}

func TestRunNotifierErrorPropagates(t *testing.T) {
	cfg := &config.Config{GitlabProjectID: 42, SlackWebhookURL: "https://hooks.example.com/x"}
	lister := &fakeLister{mrs: []models.MergeRequest{{ID: 1}}}
	notifier := &fakeNotifier{err: apperr.New(apperr.KindAPI, "webhook returned 500")}
	a, _ := testApp(cfg, lister, notifier)

	err := a.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, apperr.KindAPI, apperr.KindOf(err))
}
