// Package config loads watcher configuration from a YAML or TOML file, or
// from environment variables, as an alternative to wiring the SDK options
// by hand.
//
// Example configuration:
//
//	site:
//	  country_code: en-ca
//	  schedule_id: "12345678"
//
//	credentials:
//	  email: ${VISA_EMAIL}
//	  password: ${VISA_PASSWORD}
//
//	facilities:
//	  first: 94
//	  last: 95
//	  names:
//	    "94": Vancouver
//	    "95": Calgary
//
//	notify_before: 2024-06-01
//	max_cycles: 250
//
//	delays:
//	  idle: 2m
//	  active: 30s
//
//	notify:
//	  mailgun:
//	    domain: mg.example.com
//	    api_key: ${MAILGUN_API_KEY}
//	    to: [me@example.com]
package config

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/visaslot"
)

// ErrNoConfig is returned when neither a file nor the environment provides
// a configuration.
var ErrNoConfig = errors.New("no configuration found")

const (
	defaultBaseURL     = "https://ais.usvisa-info.com"
	defaultMaxCycles   = 100
	defaultIdleDelay   = 2 * time.Minute
	defaultActiveDelay = 30 * time.Second
	defaultScanPause   = 3 * time.Second
	defaultRate        = 1.0
	defaultBurst       = 1
	defaultRetries     = 3

	// minDelay keeps the booking site from being hammered by a typo.
	minDelay = 5 * time.Second
)

// Config is the root configuration.
//
// It maps directly onto the YAML and TOML file layouts. Use [Load], [Parse]
// or [FromEnv] to create one; all three apply defaults and validate.
type Config struct {
	Site        SiteConfig        `yaml:"site" toml:"site"`
	Credentials CredentialsConfig `yaml:"credentials" toml:"credentials"`
	Facilities  FacilitiesConfig  `yaml:"facilities" toml:"facilities"`

	// NotifyBefore is the threshold date; earlier slots trigger alerts.
	NotifyBefore Date `yaml:"notify_before" toml:"notify_before"`

	// MaxCycles is the number of poll cycles before exiting. Defaults to 100
	// when omitted; an explicit 0 runs no cycles.
	MaxCycles int `yaml:"max_cycles" toml:"max_cycles"`

	Delays   DelaysConfig   `yaml:"delays" toml:"delays"`
	Requests RequestsConfig `yaml:"requests" toml:"requests"`
	Notify   NotifyConfig   `yaml:"notify" toml:"notify"`

	// StatusPort serves the status API when non-zero.
	StatusPort int `yaml:"status_port" toml:"status_port"`

	// set records integer fields given explicitly, so a literal 0 is kept.
	set explicitFields
}

// SiteConfig locates the booking site and schedule.
type SiteConfig struct {
	// BaseURL defaults to https://ais.usvisa-info.com.
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	CountryCode string `yaml:"country_code" toml:"country_code"`
	ScheduleID  string `yaml:"schedule_id" toml:"schedule_id"`
}

// CredentialsConfig holds the account used to sign in. Both fields support
// ${VAR} and ${VAR:-default} substitution.
type CredentialsConfig struct {
	Email    string `yaml:"email" toml:"email"`
	Password string `yaml:"password" toml:"password"`
}

// FacilitiesConfig is the inclusive facility id range.
type FacilitiesConfig struct {
	First int `yaml:"first" toml:"first"`
	Last  int `yaml:"last" toml:"last"`

	// Names maps facility ids (as strings, for TOML) to display names.
	Names map[string]string `yaml:"names" toml:"names"`
}

// DelaysConfig sets the loop timings. Durations are strings like "30s".
type DelaysConfig struct {
	// Initial is reported as the delay before the first cycle. Defaults to Active.
	Initial Duration `yaml:"initial" toml:"initial"`

	// Idle follows a cycle with no slot anywhere. Defaults to 2m.
	Idle Duration `yaml:"idle" toml:"idle"`

	// Active follows a cycle where some facility offered a slot. Defaults to 30s.
	Active Duration `yaml:"active" toml:"active"`

	// ScanPause follows every parsed facility feed. Defaults to 3s.
	ScanPause Duration `yaml:"scan_pause" toml:"scan_pause"`
}

// RequestsConfig tunes the HTTP browser.
type RequestsConfig struct {
	// RatePerSecond paces requests; negative disables pacing. Defaults to 1.
	RatePerSecond float64 `yaml:"rate_per_second" toml:"rate_per_second"`

	// Burst defaults to 1.
	Burst int `yaml:"burst" toml:"burst"`

	// Timeout bounds each request. Defaults to 30s.
	Timeout Duration `yaml:"timeout" toml:"timeout"`

	UserAgent string `yaml:"user_agent" toml:"user_agent"`
}

type explicitFields struct {
	maxCycles bool
	retries   bool
}

// presence mirrors the integer fields whose zero value is meaningful.
type presence struct {
	MaxCycles *int `yaml:"max_cycles" toml:"max_cycles"`
	Notify    struct {
		Retries *int `yaml:"retries" toml:"retries"`
	} `yaml:"notify" toml:"notify"`
}

// NotifyConfig selects alert channels. With none configured, alerts go to
// the log.
type NotifyConfig struct {
	// Log also writes every alert to the log when other channels exist.
	Log bool `yaml:"log" toml:"log"`

	// Retries is the number of retries per delivery. Defaults to 3 when
	// omitted; 0 or -1 disables retrying.
	Retries int `yaml:"retries" toml:"retries"`

	Mailgun *MailgunConfig `yaml:"mailgun" toml:"mailgun"`
	Discord *DiscordConfig `yaml:"discord" toml:"discord"`
}

// MailgunConfig configures email alerts.
type MailgunConfig struct {
	Domain  string   `yaml:"domain" toml:"domain"`
	APIKey  string   `yaml:"api_key" toml:"api_key"`
	From    string   `yaml:"from" toml:"from"`
	To      []string `yaml:"to" toml:"to"`
	APIBase string   `yaml:"api_base" toml:"api_base"`
}

// DiscordConfig configures Discord channel alerts.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token" toml:"bot_token"`
	ChannelID string `yaml:"channel_id" toml:"channel_id"`
}

// Duration wraps time.Duration for YAML, TOML and environment parsing.
//
// A bare integer is read as milliseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler, used by TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return parsed, nil
}

// Date is a calendar date written as YYYY-MM-DD.
type Date struct {
	time.Time
}

// UnmarshalYAML implements yaml.Unmarshaler. YAML timestamps and quoted
// strings are both accepted.
func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(text []byte) error {
	if strings.TrimSpace(string(text)) == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := visaslot.ParseDate(string(text))
	if err != nil {
		return fmt.Errorf("expected YYYY-MM-DD: %w", err)
	}
	d.Time = t
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.Format(time.DateOnly)), nil
}

// String returns the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
// Group 1: variable name
// Group 2: the ":-default" part, present when a default was given
// Group 3: the default value, possibly empty
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		name := sub[1]
		hasDefault := len(sub) > 2 && sub[2] != ""

		value, ok := os.LookupEnv(name)
		if !ok {
			if hasDefault {
				return sub[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", name)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf picks the syntax from a file extension. Anything that is not
// .toml is treated as YAML.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Load reads and parses a configuration file, choosing YAML or TOML by
// extension.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrNoConfig
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, FormatOf(path))
}

// Parse parses configuration data, expands environment variables, applies
// defaults and validates.
func Parse(data []byte, format Format) (*Config, error) {
	var cfg Config
	var given presence
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
		if err := toml.Unmarshal(data, &given); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	case FormatYAML, "":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		if err := yaml.Unmarshal(data, &given); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
	cfg.set = explicitFields{
		maxCycles: given.MaxCycles != nil,
		retries:   given.Notify.Retries != nil,
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expand substitutes environment variables in the fields that usually hold
// secrets or deployment-specific values.
func (c *Config) expand() error {
	type field struct {
		name string
		p    *string
	}
	fields := []field{
		{"site.base_url", &c.Site.BaseURL},
		{"site.schedule_id", &c.Site.ScheduleID},
		{"credentials.email", &c.Credentials.Email},
		{"credentials.password", &c.Credentials.Password},
	}
	if mg := c.Notify.Mailgun; mg != nil {
		fields = append(fields,
			field{"notify.mailgun.api_key", &mg.APIKey},
			field{"notify.mailgun.domain", &mg.Domain},
		)
		for i := range mg.To {
			fields = append(fields, field{fmt.Sprintf("notify.mailgun.to[%d]", i), &mg.To[i]})
		}
	}
	if dc := c.Notify.Discord; dc != nil {
		fields = append(fields,
			field{"notify.discord.bot_token", &dc.BotToken},
			field{"notify.discord.channel_id", &dc.ChannelID},
		)
	}

	for _, f := range fields {
		expanded, err := expandEnvVars(*f.p)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.p = expanded
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Site.BaseURL == "" {
		c.Site.BaseURL = defaultBaseURL
	}
	if c.MaxCycles == 0 && !c.set.maxCycles {
		c.MaxCycles = defaultMaxCycles
	}
	if c.Delays.Idle == 0 {
		c.Delays.Idle = Duration(defaultIdleDelay)
	}
	if c.Delays.Active == 0 {
		c.Delays.Active = Duration(defaultActiveDelay)
	}
	if c.Delays.Initial == 0 {
		c.Delays.Initial = c.Delays.Active
	}
	if c.Delays.ScanPause == 0 {
		c.Delays.ScanPause = Duration(defaultScanPause)
	}
	if c.Requests.RatePerSecond == 0 {
		c.Requests.RatePerSecond = defaultRate
	}
	if c.Requests.Burst == 0 {
		c.Requests.Burst = defaultBurst
	}
	if c.Notify.Retries == 0 && !c.set.retries {
		c.Notify.Retries = defaultRetries
	}
}

// Validate reports the first problem found in the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil {
		return fmt.Errorf("site.base_url: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("site.base_url: scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("site.base_url: host is required")
	}
	if strings.TrimSpace(c.Site.CountryCode) == "" {
		return errors.New("site.country_code is required")
	}
	if strings.TrimSpace(c.Site.ScheduleID) == "" {
		return errors.New("site.schedule_id is required")
	}

	if strings.TrimSpace(c.Credentials.Email) == "" {
		return errors.New("credentials.email is required")
	}
	if c.Credentials.Password == "" {
		return errors.New("credentials.password is required")
	}

	if c.Facilities.First < 0 {
		return fmt.Errorf("facilities.first cannot be negative, got %d", c.Facilities.First)
	}
	if c.Facilities.First > c.Facilities.Last {
		return fmt.Errorf("facilities: first (%d) must not exceed last (%d)", c.Facilities.First, c.Facilities.Last)
	}
	if _, err := c.FacilityNames(); err != nil {
		return err
	}

	if c.NotifyBefore.IsZero() {
		return errors.New("notify_before is required")
	}
	if c.MaxCycles < 0 {
		return fmt.Errorf("max_cycles cannot be negative, got %d", c.MaxCycles)
	}

	delays := []struct {
		name string
		d    Duration
	}{
		{"delays.idle", c.Delays.Idle},
		{"delays.active", c.Delays.Active},
	}
	for _, f := range delays {
		if f.d.Duration() < minDelay {
			return fmt.Errorf("%s must be at least %s, got %s", f.name, minDelay, f.d.Duration())
		}
	}
	if c.Delays.Initial < 0 {
		return fmt.Errorf("delays.initial cannot be negative, got %s", c.Delays.Initial.Duration())
	}
	if c.Delays.ScanPause < 0 {
		return fmt.Errorf("delays.scan_pause cannot be negative, got %s", c.Delays.ScanPause.Duration())
	}

	if c.Requests.Burst < 0 {
		return fmt.Errorf("requests.burst cannot be negative, got %d", c.Requests.Burst)
	}
	if c.Requests.Timeout < 0 {
		return fmt.Errorf("requests.timeout cannot be negative, got %s", c.Requests.Timeout.Duration())
	}

	if c.Notify.Retries < -1 {
		return fmt.Errorf("notify.retries must be -1 or more, got %d", c.Notify.Retries)
	}
	if mg := c.Notify.Mailgun; mg != nil {
		if mg.Domain == "" {
			return errors.New("notify.mailgun.domain is required")
		}
		if mg.APIKey == "" {
			return errors.New("notify.mailgun.api_key is required")
		}
		if len(mg.To) == 0 {
			return errors.New("notify.mailgun.to needs at least one address")
		}
		for i, addr := range mg.To {
			if _, err := mail.ParseAddress(addr); err != nil {
				return fmt.Errorf("notify.mailgun.to[%d]: invalid address %q", i, addr)
			}
		}
	}
	if dc := c.Notify.Discord; dc != nil {
		if dc.BotToken == "" {
			return errors.New("notify.discord.bot_token is required")
		}
		if dc.ChannelID == "" {
			return errors.New("notify.discord.channel_id is required")
		}
	}

	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return fmt.Errorf("status_port must be between 0 and 65535, got %d", c.StatusPort)
	}
	return nil
}

// FacilityNames returns the display names keyed by facility id.
func (c *Config) FacilityNames() (map[int]string, error) {
	names := make(map[int]string, len(c.Facilities.Names))
	for key, name := range c.Facilities.Names {
		id, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("facilities.names[%q]: facility id must be an integer", key)
		}
		names[id] = name
	}
	return names, nil
}
