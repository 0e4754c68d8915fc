// Package app wires the query/filter/notify pipeline for one invocation.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/opsnag/mr-nag/internal/config"
	"github.com/opsnag/mr-nag/internal/models"
)

// MergeRequestLister fetches every open merge request of a project.
type MergeRequestLister interface {
	OpenMergeRequests(ctx context.Context, projectID int64) ([]models.MergeRequest, error)
}

// Notifier delivers a summary of the given merge requests.
type Notifier interface {
	Notify(ctx context.Context, mrs []models.MergeRequest, targetBranch string) error
}

// App runs one check: fetch, filter, report, notify.
type App struct {
	cfg      *config.Config
	lister   MergeRequestLister
	notifier Notifier
	log      *zap.Logger
	stdout   io.Writer

	now func() time.Time
}

// New assembles the pipeline. notifier may be nil when no webhook is
// configured.
func New(cfg *config.Config, lister MergeRequestLister, notifier Notifier, log *zap.Logger, stdout io.Writer) *App {
	return &App{
		cfg:      cfg,
		lister:   lister,
		notifier: notifier,
		log:      log,
		stdout:   stdout,
		now:      time.Now,
	}
}

// Run executes the pipeline once. The discovered count is always printed to
// stdout on the success path, so "found but no webhook configured" stays
// observable under cron.
func (a *App) Run(ctx context.Context) error {
	mrs, err := a.lister.OpenMergeRequests(ctx, a.cfg.GitlabProjectID)
	if err != nil {
		return err
	}
	a.log.Info("fetched open merge requests",
		zap.Int64("project", a.cfg.GitlabProjectID), zap.Int("count", len(mrs)))

	matched := models.FilterByTargetBranch(mrs, a.cfg.TargetBranch)
	matched = models.FilterByMinDwell(matched, a.cfg.MinDwell, a.now())

	fmt.Fprintf(a.stdout, "found %d open merge request(s)\n", len(matched))

	if len(matched) == 0 {
		return nil
	}

	if a.cfg.SlackWebhookURL == "" {
		a.log.Info("no webhook configured, skipping notification", zap.Int("count", len(matched)))
		return nil
	}

	if err := a.notifier.Notify(ctx, matched, a.cfg.TargetBranch); err != nil {
		return err
	}
	a.log.Info("posted webhook notification", zap.Int("count", len(matched)))
	return nil
}
