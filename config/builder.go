package config

import (
	"fmt"
	"log/slog"

	"github.com/jpalmerr/visaslot"
	"github.com/jpalmerr/visaslot/notify"
)

// BuildNotifiers converts the notify section into notifiers. Remote
// channels are wrapped in [notify.Retry] unless retries are disabled.
//
// An empty result means alerts only reach the log.
func BuildNotifiers(cfg *Config, logger *slog.Logger) ([]notify.Notifier, error) {
	var notifiers []notify.Notifier

	if mg := cfg.Notify.Mailgun; mg != nil {
		n, err := notify.NewMailgun(notify.MailgunConfig{
			Domain:  mg.Domain,
			APIKey:  mg.APIKey,
			From:    mg.From,
			To:      mg.To,
			APIBase: mg.APIBase,
		})
		if err != nil {
			return nil, fmt.Errorf("notify.mailgun: %w", err)
		}
		notifiers = append(notifiers, withRetry(n, cfg.Notify.Retries))
	}

	if dc := cfg.Notify.Discord; dc != nil {
		n, err := notify.NewDiscord(dc.BotToken, dc.ChannelID)
		if err != nil {
			return nil, fmt.Errorf("notify.discord: %w", err)
		}
		notifiers = append(notifiers, withRetry(n, cfg.Notify.Retries))
	}

	if cfg.Notify.Log && len(notifiers) > 0 {
		notifiers = append(notifiers, notify.NewLog(logger))
	}

	return notifiers, nil
}

func withRetry(n notify.Notifier, retries int) notify.Notifier {
	if retries <= 0 {
		return n
	}
	return notify.NewRetry(n, notify.RetryConfig{MaxRetries: uint64(retries)})
}

// BuildOptions converts parsed configuration into watcher options.
//
// With dryRun set, configured notifiers are skipped and alerts only go to
// the log.
func BuildOptions(cfg *Config, logger *slog.Logger, dryRun bool) ([]visaslot.Option, error) {
	names, err := cfg.FacilityNames()
	if err != nil {
		return nil, err
	}

	opts := []visaslot.Option{
		visaslot.WithSite(cfg.Site.BaseURL, cfg.Site.CountryCode, cfg.Site.ScheduleID),
		visaslot.WithCredentials(cfg.Credentials.Email, cfg.Credentials.Password),
		visaslot.WithFacilities(cfg.Facilities.First, cfg.Facilities.Last),
		visaslot.WithThreshold(cfg.NotifyBefore.Time),
		visaslot.WithMaxCycles(cfg.MaxCycles),
		visaslot.WithInitialDelay(cfg.Delays.Initial.Duration()),
		visaslot.WithIdleDelay(cfg.Delays.Idle.Duration()),
		visaslot.WithActiveDelay(cfg.Delays.Active.Duration()),
		visaslot.WithScanPause(cfg.Delays.ScanPause.Duration()),
		visaslot.WithRequestRate(cfg.Requests.RatePerSecond, cfg.Requests.Burst),
		visaslot.WithStatusPort(cfg.StatusPort),
	}
	if len(names) > 0 {
		opts = append(opts, visaslot.WithFacilityNames(names))
	}
	if cfg.Requests.Timeout > 0 {
		opts = append(opts, visaslot.WithRequestTimeout(cfg.Requests.Timeout.Duration()))
	}
	if cfg.Requests.UserAgent != "" {
		opts = append(opts, visaslot.WithUserAgent(cfg.Requests.UserAgent))
	}
	if logger != nil {
		opts = append(opts, visaslot.WithLogger(logger))
	}

	if dryRun {
		return opts, nil
	}

	notifiers, err := BuildNotifiers(cfg, logger)
	if err != nil {
		return nil, err
	}
	for _, n := range notifiers {
		opts = append(opts, visaslot.WithNotifier(n))
	}
	return opts, nil
}

// BuildWatcher creates a watcher from configuration. Extra options are
// applied last and override the configured ones.
func BuildWatcher(cfg *Config, logger *slog.Logger, dryRun bool, extra ...visaslot.Option) (*visaslot.Watcher, error) {
	opts, err := BuildOptions(cfg, logger, dryRun)
	if err != nil {
		return nil, err
	}
	return visaslot.New(append(opts, extra...)...)
}
