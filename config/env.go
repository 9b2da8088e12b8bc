package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Environment variable names read by [FromEnv].
const (
	EnvEmail           = "EMAIL"
	EnvPassword        = "PASSWORD"
	EnvBaseURL         = "BASE_URL"
	EnvCountryCode     = "COUNTRY_CODE"
	EnvScheduleID      = "SCHEDULE_ID"
	EnvFacilityID      = "FACILITY_ID"
	EnvFirstFacilityID = "FIRST_FACILITY_ID"
	EnvLastFacilityID  = "LAST_FACILITY_ID"
	EnvFacilityNames   = "FACILITY_NAMES"
	EnvNotifyBefore    = "NOTIFY_ON_DATE_BEFORE"
	EnvMaxPolls        = "MAX_NUMBER_OF_POLL"
	EnvNextPoll        = "NEXT_SCHEDULE_POLL"
	EnvIdlePoll        = "IDLE_SCHEDULE_POLL"
	EnvActivePoll      = "ACTIVE_SCHEDULE_POLL"
	EnvScanPause       = "SCAN_PAUSE"
	EnvRequestRate     = "REQUEST_RATE"
	EnvMailgunAPIKey   = "MAILGUN_API_KEY"
	EnvMailgunDomain   = "MAILGUN_DOMAIN"
	EnvMailgunFrom     = "MAILGUN_FROM"
	EnvNotifyEmails    = "NOTIFY_EMAILS"
	EnvDiscordToken    = "DISCORD_BOT_TOKEN"
	EnvDiscordChannel  = "DISCORD_CHANNEL_ID"
	EnvNotifyRetries   = "NOTIFY_RETRIES"
	EnvStatusPort      = "STATUS_PORT"
)

// LoadEnvFile reads KEY=value lines from path into the process environment.
// Variables that are already set are left alone.
func LoadEnvFile(path string) error {
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// NewEnv returns a viper instance bound to the process environment.
func NewEnv() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	return v
}

// FromEnv builds a configuration from environment variables, then applies
// defaults and validates like [Parse].
//
// Durations accept Go syntax ("30s") or plain milliseconds. FACILITY_ID
// selects a single facility; FIRST_FACILITY_ID and LAST_FACILITY_ID select
// a range. FACILITY_NAMES is a list like "94=Vancouver,95=Calgary".
//
// ErrNoConfig is returned when none of EMAIL, PASSWORD or SCHEDULE_ID is set.
func FromEnv(v *viper.Viper) (*Config, error) {
	if v.GetString(EnvEmail) == "" && v.GetString(EnvPassword) == "" && v.GetString(EnvScheduleID) == "" {
		return nil, ErrNoConfig
	}

	cfg := Config{
		Site: SiteConfig{
			BaseURL:     v.GetString(EnvBaseURL),
			CountryCode: v.GetString(EnvCountryCode),
			ScheduleID:  v.GetString(EnvScheduleID),
		},
		Credentials: CredentialsConfig{
			Email:    v.GetString(EnvEmail),
			Password: v.GetString(EnvPassword),
		},
		Requests: RequestsConfig{
			UserAgent: v.GetString("USER_AGENT"),
		},
	}

	var err error
	if cfg.Facilities, err = facilitiesFromEnv(v); err != nil {
		return nil, err
	}

	if s := v.GetString(EnvNotifyBefore); s != "" {
		if err := cfg.NotifyBefore.UnmarshalText([]byte(s)); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvNotifyBefore, err)
		}
	}

	ints := []struct {
		name string
		p    *int
	}{
		{EnvMaxPolls, &cfg.MaxCycles},
		{EnvNotifyRetries, &cfg.Notify.Retries},
		{EnvStatusPort, &cfg.StatusPort},
	}
	for _, f := range ints {
		if *f.p, err = envInt(v, f.name); err != nil {
			return nil, err
		}
	}
	cfg.set = explicitFields{
		maxCycles: strings.TrimSpace(v.GetString(EnvMaxPolls)) != "",
		retries:   strings.TrimSpace(v.GetString(EnvNotifyRetries)) != "",
	}

	durations := []struct {
		name string
		p    *Duration
	}{
		{EnvNextPoll, &cfg.Delays.Initial},
		{EnvIdlePoll, &cfg.Delays.Idle},
		{EnvActivePoll, &cfg.Delays.Active},
		{EnvScanPause, &cfg.Delays.ScanPause},
	}
	for _, f := range durations {
		if err := f.p.UnmarshalText([]byte(v.GetString(f.name))); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
	}

	if s := v.GetString(EnvRequestRate); s != "" {
		rate, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid number %q", EnvRequestRate, s)
		}
		cfg.Requests.RatePerSecond = rate
	}

	if key := v.GetString(EnvMailgunAPIKey); key != "" {
		cfg.Notify.Mailgun = &MailgunConfig{
			Domain: v.GetString(EnvMailgunDomain),
			APIKey: key,
			From:   v.GetString(EnvMailgunFrom),
			To:     splitList(v.GetString(EnvNotifyEmails)),
		}
	}
	if token := v.GetString(EnvDiscordToken); token != "" {
		cfg.Notify.Discord = &DiscordConfig{
			BotToken:  token,
			ChannelID: v.GetString(EnvDiscordChannel),
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func facilitiesFromEnv(v *viper.Viper) (FacilitiesConfig, error) {
	var fc FacilitiesConfig

	single, err := envInt(v, EnvFacilityID)
	if err != nil {
		return fc, err
	}
	first, err := envInt(v, EnvFirstFacilityID)
	if err != nil {
		return fc, err
	}
	last, err := envInt(v, EnvLastFacilityID)
	if err != nil {
		return fc, err
	}

	switch {
	case v.GetString(EnvFirstFacilityID) != "" || v.GetString(EnvLastFacilityID) != "":
		if v.GetString(EnvLastFacilityID) == "" {
			last = first
		}
		fc.First, fc.Last = first, last
	case v.GetString(EnvFacilityID) != "":
		fc.First, fc.Last = single, single
	}

	raw := v.GetString(EnvFacilityNames)
	if raw == "" {
		return fc, nil
	}
	fc.Names = make(map[string]string)
	for _, pair := range splitList(raw) {
		id, name, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(id) == "" {
			return fc, fmt.Errorf("%s: expected id=name, got %q", EnvFacilityNames, pair)
		}
		fc.Names[strings.TrimSpace(id)] = strings.TrimSpace(name)
	}
	return fc, nil
}

func envInt(v *viper.Viper, name string) (int, error) {
	s := strings.TrimSpace(v.GetString(name))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", name, s)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
