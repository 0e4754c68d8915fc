// Package slack delivers the found-merge-requests summary to an incoming
// webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/opsnag/mr-nag/internal/apperr"
	"github.com/opsnag/mr-nag/internal/models"
)

// Notifier posts one webhook message per invocation.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	log        *zap.Logger
}

// NewNotifier returns a notifier posting to webhookURL.
func NewNotifier(webhookURL string, httpClient *http.Client, log *zap.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		log:        log,
	}
}

// Notify posts a single message summarizing mrs. The caller guarantees mrs
// is non-empty; targetBranch is included in the summary line when set.
func (n *Notifier) Notify(ctx context.Context, mrs []models.MergeRequest, targetBranch string) error {
	msg := BuildMessage(mrs, targetBranch)

	n.log.Debug("posting webhook message", zap.Int("merge_requests", len(mrs)))

	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.httpClient, msg); err != nil {
		var statusErr slack.StatusCodeError
		if errors.As(err, &statusErr) {
			return apperr.New(apperr.KindAPI, "webhook returned %s", statusErr.Status)
		}
		var rateErr *slack.RateLimitedError
		if errors.As(err, &rateErr) {
			return apperr.New(apperr.KindAPI, "webhook rate limited, retry after %s", rateErr.RetryAfter)
		}
		return apperr.Wrap(apperr.KindNetwork, err, "posting webhook message")
	}
	return nil
}

// BuildMessage renders mrs into a webhook message: a plain-text summary for
// notification previews plus Block Kit blocks with one section per merge
// request.
func BuildMessage(mrs []models.MergeRequest, targetBranch string) *slack.WebhookMessage {
	summary := summaryLine(len(mrs), targetBranch)

	blocks := make([]slack.Block, 0, len(mrs)+1)
	blocks = append(blocks, slack.NewHeaderBlock(
		slack.NewTextBlockObject(slack.PlainTextType, summary, false, false)))

	for _, mr := range mrs {
		var b strings.Builder
		fmt.Fprintf(&b, "<%s|%s>\n", mr.WebURL, mr.Title)
		fmt.Fprintf(&b, "`%s` into `%s`", mr.SourceBranch, mr.TargetBranch)
		if mr.Author != "" {
			fmt.Fprintf(&b, " by %s", mr.Author)
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, b.String(), false, false), nil, nil))
	}

	var fallback strings.Builder
	fallback.WriteString(summary)
	for _, mr := range mrs {
		fmt.Fprintf(&fallback, "\n%s (%s)", mr.Title, mr.WebURL)
	}

	return &slack.WebhookMessage{
		Text:   fallback.String(),
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

func summaryLine(count int, targetBranch string) string {
	noun := "merge requests are"
	if count == 1 {
		noun = "merge request is"
	}
	if targetBranch == "" {
		return fmt.Sprintf("%d %s awaiting merge", count, noun)
	}
	return fmt.Sprintf("%d %s awaiting merge to %s", count, noun, targetBranch)
}
