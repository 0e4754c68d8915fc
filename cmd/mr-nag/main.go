package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opsnag/mr-nag/internal/app"
	"github.com/opsnag/mr-nag/internal/apperr"
	"github.com/opsnag/mr-nag/internal/config"
	"github.com/opsnag/mr-nag/internal/gitlab"
	"github.com/opsnag/mr-nag/internal/slack"
)

// version is injected at build time via -ldflags.
var version = "dev"

var (
	flags   config.Flags
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mr-nag",
		Short: "Notify a Slack webhook when a GitLab project has open merge requests",
		Long: `mr-nag checks a single GitLab project for open merge requests, optionally
filtered to one target branch, and posts a Slack webhook message if any are
found. It performs one check and exits, which makes it suitable for running
under cron to nag a channel about unmerged work.

Every flag can also be supplied through the environment variable of the same
name (e.g. GITLAB_TOKEN for --gitlab-token) or through a TOML config file;
flags win over the environment, which wins over the file.`,
		Version:       version,
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Flags().StringVarP(&flags.SlackWebhookURL, "slack-webhook-url", "s", "",
		"webhook URL to notify when open merge requests are found")
	rootCmd.Flags().StringVarP(&flags.GitlabToken, "gitlab-token", "t", "",
		"GitLab token with read_api access to the project")
	rootCmd.Flags().StringVarP(&flags.GitlabHost, "gitlab-host", "g", "",
		"GitLab host, e.g. gitlab.example.com (HTTPS, port 443)")
	rootCmd.Flags().StringVarP(&flags.GitlabProjectID, "gitlab-project-id", "i", "",
		"numeric id of the GitLab project to check")
	rootCmd.Flags().StringVarP(&flags.TargetBranch, "target-branch", "T", "",
		"only report merge requests targeting this branch")
	rootCmd.Flags().StringVarP(&flags.MinDwellSecs, "min-dwell-secs", "d", "",
		"minimum idle seconds before a merge request is reported")
	rootCmd.Flags().StringVar(&flags.RequestTimeout, "request-timeout", "",
		"timeout per outbound HTTP call (default 30s)")
	rootCmd.Flags().StringVar(&flags.ConfigFile, "config", "",
		"path to a TOML config file")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().BoolP("version", "V", false, "version for mr-nag")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(apperr.ExitCode(err))
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Resolve(flags)
	if err != nil {
		return err
	}
	logger.Debug("configuration resolved", zap.Stringer("config", cfg))

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	lister := gitlab.NewClient(cfg.BaseURL(), cfg.GitlabToken, httpClient, logger)

	var notifier app.Notifier
	if cfg.SlackWebhookURL != "" {
		notifier = slack.NewNotifier(cfg.SlackWebhookURL, httpClient, logger)
	}

	return app.New(cfg, lister, notifier, logger, cmd.OutOrStdout()).Run(cmd.Context())
}

// newLogger returns a production JSON logger on stderr, or a debug-level
// development logger when verbose is set.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
