package config

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jpalmerr/visaslot"
	"github.com/jpalmerr/visaslot/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustParse(t *testing.T, yaml string) *Config {
	t.Helper()
	cfg, err := Parse([]byte(yaml), FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cfg
}

const notifyYAML = minimalYAML + `
notify:
  log: true
  mailgun:
    domain: mg.example.com
    api_key: key-1
    to: [me@example.com]
  discord:
    bot_token: tok
    channel_id: "123"
`

func TestBuildNotifiers_None(t *testing.T) {
	notifiers, err := BuildNotifiers(mustParse(t, minimalYAML), testLogger())
	if err != nil {
		t.Fatalf("BuildNotifiers() error = %v", err)
	}
	if len(notifiers) != 0 {
		t.Errorf("len(notifiers) = %d, want 0", len(notifiers))
	}
}

func TestBuildNotifiers_AllChannels(t *testing.T) {
	notifiers, err := BuildNotifiers(mustParse(t, notifyYAML), testLogger())
	if err != nil {
		t.Fatalf("BuildNotifiers() error = %v", err)
	}
	if len(notifiers) != 3 {
		t.Fatalf("len(notifiers) = %d, want 3", len(notifiers))
	}
	for i, n := range notifiers[:2] {
		if _, ok := n.(*notify.Retry); !ok {
			t.Errorf("notifiers[%d] = %T, want *notify.Retry", i, n)
		}
	}
	if _, ok := notifiers[2].(*notify.Log); !ok {
		t.Errorf("notifiers[2] = %T, want *notify.Log", notifiers[2])
	}
}

func TestBuildNotifiers_RetriesDisabled(t *testing.T) {
	cfg := mustParse(t, notifyYAML)
	cfg.Notify.Retries = -1
	cfg.Notify.Log = false

	notifiers, err := BuildNotifiers(cfg, testLogger())
	if err != nil {
		t.Fatalf("BuildNotifiers() error = %v", err)
	}
	if _, ok := notifiers[0].(*notify.Mailgun); !ok {
		t.Errorf("notifiers[0] = %T, want *notify.Mailgun", notifiers[0])
	}
	if _, ok := notifiers[1].(*notify.Discord); !ok {
		t.Errorf("notifiers[1] = %T, want *notify.Discord", notifiers[1])
	}
}

func TestBuildNotifiers_ZeroRetries(t *testing.T) {
	cfg := mustParse(t, strings.Replace(notifyYAML, "  log: true\n", "  retries: 0\n", 1))

	notifiers, err := BuildNotifiers(cfg, testLogger())
	if err != nil {
		t.Fatalf("BuildNotifiers() error = %v", err)
	}
	if len(notifiers) != 2 {
		t.Fatalf("len(notifiers) = %d, want 2", len(notifiers))
	}
	if _, ok := notifiers[0].(*notify.Mailgun); !ok {
		t.Errorf("notifiers[0] = %T, want *notify.Mailgun", notifiers[0])
	}
	if _, ok := notifiers[1].(*notify.Discord); !ok {
		t.Errorf("notifiers[1] = %T, want *notify.Discord", notifiers[1])
	}
}

func TestBuildOptions_DryRunSkipsNotifiers(t *testing.T) {
	cfg := mustParse(t, notifyYAML)

	live, err := BuildOptions(cfg, testLogger(), false)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}
	dry, err := BuildOptions(cfg, testLogger(), true)
	if err != nil {
		t.Fatalf("BuildOptions(dryRun) error = %v", err)
	}
	if len(live)-len(dry) != 3 {
		t.Errorf("live has %d options, dry run %d; want 3 notifier options difference", len(live), len(dry))
	}
}

func TestBuildWatcher(t *testing.T) {
	yaml := strings.Replace(minimalYAML, "facilities:\n  first: 94\n  last: 95\n",
		"facilities:\n  first: 94\n  last: 95\n  names:\n    \"94\": Vancouver\n", 1) + `
max_cycles: 12
requests:
  timeout: 5s
  user_agent: test-agent
`
	cfg := mustParse(t, yaml)

	w, err := BuildWatcher(cfg, testLogger(), true)
	if err != nil {
		t.Fatalf("BuildWatcher() error = %v", err)
	}
	defer w.Close()

	if got := w.Facilities(); got != (visaslot.FacilityRange{First: 94, Last: 95}) {
		t.Errorf("Facilities() = %+v", got)
	}
	if got := w.MaxCycles(); got != 12 {
		t.Errorf("MaxCycles() = %d, want 12", got)
	}
	if got := w.Threshold(); !got.Equal(visaslot.MustParseDate("2024-06-01")) {
		t.Errorf("Threshold() = %v", got)
	}
	want := visaslot.Site{BaseURL: defaultBaseURL, CountryCode: "en-ca", ScheduleID: "12345678"}
	if got := w.Site(); got != want {
		t.Errorf("Site() = %+v, want %+v", got, want)
	}
}

func TestBuildWatcher_ZeroCycles(t *testing.T) {
	cfg := mustParse(t, minimalYAML+"max_cycles: 0\n")

	w, err := BuildWatcher(cfg, testLogger(), true)
	if err != nil {
		t.Fatalf("BuildWatcher() error = %v", err)
	}
	defer w.Close()

	if got := w.MaxCycles(); got != 0 {
		t.Errorf("MaxCycles() = %d, want 0", got)
	}
}

func TestBuildWatcher_ExtraOptionsOverride(t *testing.T) {
	cfg := mustParse(t, minimalYAML)

	w, err := BuildWatcher(cfg, testLogger(), true, visaslot.WithMaxCycles(1))
	if err != nil {
		t.Fatalf("BuildWatcher() error = %v", err)
	}
	defer w.Close()

	if got := w.MaxCycles(); got != 1 {
		t.Errorf("MaxCycles() = %d, want 1", got)
	}
}

func TestBuildWatcher_InvalidNames(t *testing.T) {
	cfg := mustParse(t, minimalYAML)
	cfg.Facilities.Names = map[string]string{"x": "Nowhere"}

	if _, err := BuildWatcher(cfg, testLogger(), true); err == nil {
		t.Error("BuildWatcher() expected error for bad facility id")
	}
}
