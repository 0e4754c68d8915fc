// Package config resolves the tool's parameters from command-line flags,
// environment variables and an optional TOML config file, in that precedence
// order, into one immutable Config.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/opsnag/mr-nag/internal/apperr"
)

// DefaultRequestTimeout bounds every outbound HTTP call unless overridden.
const DefaultRequestTimeout = 30 * time.Second

// Config is the fully resolved configuration. It is constructed once by
// Resolve and never mutated afterwards.
type Config struct {
	// SlackWebhookURL is the notification destination; empty disables posting
	SlackWebhookURL string
	// GitlabToken authenticates against the GitLab API
	GitlabToken string
	// GitlabHost is the bare hostname of the GitLab instance
	GitlabHost string
	// GitlabProjectID is the numeric id of the project to check
	GitlabProjectID int64
	// TargetBranch filters merge requests by target; empty disables the filter
	TargetBranch string
	// MinDwell is how long a merge request must be idle before it is reported
	MinDwell time.Duration
	// RequestTimeout bounds each outbound HTTP call
	RequestTimeout time.Duration
}

// Flags carries the raw command-line values. An empty string means the flag
// was not given, letting the environment or config file supply the value.
type Flags struct {
	SlackWebhookURL string
	GitlabToken     string
	GitlabHost      string
	GitlabProjectID string
	TargetBranch    string
	MinDwellSecs    string
	RequestTimeout  string
	ConfigFile      string
}

type envValues struct {
	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL"`
	GitlabToken     string `env:"GITLAB_TOKEN"`
	GitlabHost      string `env:"GITLAB_HOST"`
	GitlabProjectID string `env:"GITLAB_PROJECT_ID"`
	TargetBranch    string `env:"TARGET_BRANCH"`
	MinDwellSecs    string `env:"MIN_DWELL_SECS"`
	RequestTimeout  string `env:"REQUEST_TIMEOUT"`
}

// fileValues mirrors the optional TOML config file. Pointer fields
// distinguish "absent" from a literal zero.
type fileValues struct {
	SlackWebhookURL string `toml:"slack_webhook_url"`
	GitlabToken     string `toml:"gitlab_token"`
	GitlabHost      string `toml:"gitlab_host"`
	GitlabProjectID *int64 `toml:"gitlab_project_id"`
	TargetBranch    string `toml:"target_branch"`
	MinDwellSecs    *int64 `toml:"min_dwell_secs"`
	RequestTimeout  string `toml:"request_timeout"`
}

func defaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "mr-nag", "config.toml"), nil
}

// loadFile reads the TOML config file. A missing file at the default path is
// tolerated; a missing file at an explicitly given path is not.
func loadFile(path string) (fileValues, error) {
	var fv fileValues
	explicit := path != ""
	if !explicit {
		var err error
		path, err = defaultConfigPath()
		if err != nil {
			return fv, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return fv, nil
		}
		return fv, apperr.Wrap(apperr.KindConfig, err, "reading config file %s", path)
	}

	if err := toml.Unmarshal(data, &fv); err != nil {
		return fv, apperr.Wrap(apperr.KindConfig, err, "parsing config file %s", path)
	}
	return fv, nil
}

// Resolve builds the Config from flags, environment and config file. A .env
// file in the working directory is loaded into the environment first, best
// effort, so cron wrappers can ship credentials next to the binary.
func Resolve(flags Flags) (*Config, error) {
	_ = godotenv.Load()

	var ev envValues
	if err := env.Parse(&ev); err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, err, "reading environment")
	}

	fv, err := loadFile(flags.ConfigFile)
	if err != nil {
		return nil, err
	}

	pick := func(flagVal, envVal, fileVal string) string {
		switch {
		case flagVal != "":
			return flagVal
		case envVal != "":
			return envVal
		default:
			return fileVal
		}
	}

	cfg := &Config{
		TargetBranch:   pick(flags.TargetBranch, ev.TargetBranch, fv.TargetBranch),
		RequestTimeout: DefaultRequestTimeout,
	}

	cfg.SlackWebhookURL = pick(flags.SlackWebhookURL, ev.SlackWebhookURL, fv.SlackWebhookURL)
	if cfg.SlackWebhookURL != "" {
		u, err := url.Parse(cfg.SlackWebhookURL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return nil, apperr.New(apperr.KindConfig,
				"slack-webhook-url is not a valid absolute URL: %q", cfg.SlackWebhookURL)
		}
	}

	cfg.GitlabToken = pick(flags.GitlabToken, ev.GitlabToken, fv.GitlabToken)
	if cfg.GitlabToken == "" {
		return nil, missingParam("gitlab-token", "GITLAB_TOKEN")
	}

	host := pick(flags.GitlabHost, ev.GitlabHost, fv.GitlabHost)
	if host == "" {
		return nil, missingParam("gitlab-host", "GITLAB_HOST")
	}
	cfg.GitlabHost, err = normalizeHost(host)
	if err != nil {
		return nil, err
	}

	cfg.GitlabProjectID, err = resolveCount("gitlab-project-id", "GITLAB_PROJECT_ID",
		pick(flags.GitlabProjectID, ev.GitlabProjectID, ""), fv.GitlabProjectID, -1)
	if err != nil {
		return nil, err
	}
	if cfg.GitlabProjectID < 0 {
		return nil, missingParam("gitlab-project-id", "GITLAB_PROJECT_ID")
	}

	dwellSecs, err := resolveCount("min-dwell-secs", "MIN_DWELL_SECS",
		pick(flags.MinDwellSecs, ev.MinDwellSecs, ""), fv.MinDwellSecs, 0)
	if err != nil {
		return nil, err
	}
	cfg.MinDwell = time.Duration(dwellSecs) * time.Second

	if raw := pick(flags.RequestTimeout, ev.RequestTimeout, fv.RequestTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, apperr.New(apperr.KindConfig,
				"request-timeout is not a valid positive duration: %q", raw)
		}
		cfg.RequestTimeout = d
	}

	return cfg, nil
}

func missingParam(flagName, envName string) error {
	return apperr.New(apperr.KindConfig,
		"missing required parameter %s (set --%s or %s)", flagName, flagName, envName)
}

// resolveCount resolves a non-negative integer parameter from a raw flag or
// environment string, falling back to the file value, then to def.
func resolveCount(flagName, envName, raw string, file *int64, def int64) (int64, error) {
	if raw == "" {
		if file == nil {
			return def, nil
		}
		raw = strconv.FormatInt(*file, 10)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, apperr.New(apperr.KindConfig,
			"%s must be a non-negative integer, got %q (set --%s or %s)", flagName, raw, flagName, envName)
	}
	return n, nil
}

// normalizeHost accepts a bare hostname or an https:// URL and returns the
// bare host. Any other scheme is rejected; the API is always reached over
// HTTPS on the default port.
func normalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "https://"), "/")
	if host == "" || strings.Contains(host, "://") || strings.ContainsAny(host, " /") {
		return "", apperr.New(apperr.KindConfig, "gitlab-host is not a valid HTTPS hostname: %q", host)
	}
	return host, nil
}

// BaseURL returns the HTTPS base URL of the GitLab instance.
func (c *Config) BaseURL() string {
	return "https://" + c.GitlabHost
}

// String renders the config for debug logging with the token redacted.
func (c *Config) String() string {
	return fmt.Sprintf("host=%s project=%d target-branch=%q webhook-configured=%t min-dwell=%s timeout=%s",
		c.GitlabHost, c.GitlabProjectID, c.TargetBranch, c.SlackWebhookURL != "", c.MinDwell, c.RequestTimeout)
}
