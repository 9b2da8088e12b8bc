package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMessage = Message{
	Subject: "We found an earlier date 20-05-2024 (Vancouver)",
	Body:    "Hurry and schedule for 20-05-2024 before it is taken. (Vancouver)",
}

func TestLog_Notify(t *testing.T) {
	var buf bytes.Buffer
	n := NewLog(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, n.Notify(context.Background(), testMessage))
	assert.Contains(t, buf.String(), "notification")
	assert.Contains(t, buf.String(), "20-05-2024 (Vancouver)")
}

func TestNotifierFunc(t *testing.T) {
	var got Message
	n := NotifierFunc(func(_ context.Context, msg Message) error {
		got = msg
		return nil
	})

	require.NoError(t, n.Notify(context.Background(), testMessage))
	assert.Equal(t, testMessage, got)
}

func TestMailgun_Notify(t *testing.T) {
	var (
		mu      sync.Mutex
		path    string
		form    map[string][]string
		authOK  bool
		entries int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		entries++
		path = r.URL.Path
		_, pass, ok := r.BasicAuth()
		authOK = ok && pass == "key-123"
		_ = r.FormValue("subject") // parses url-encoded and multipart bodies
		form = r.Form
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Queued. Thank you.","id":"<1@mg.example.com>"}`))
	}))
	defer srv.Close()

	n, err := NewMailgun(MailgunConfig{
		Domain:  "mg.example.com",
		APIKey:  "key-123",
		To:      []string{"a@example.com", "b@example.com"},
		APIBase: srv.URL + "/v3",
	})
	require.NoError(t, err)

	require.NoError(t, n.Notify(context.Background(), testMessage))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, entries)
	assert.True(t, strings.HasSuffix(path, "/mg.example.com/messages"), "path %q", path)
	assert.True(t, authOK, "basic auth with api key")
	assert.Equal(t, []string{testMessage.Subject}, form["subject"])
	assert.Equal(t, []string{testMessage.Body}, form["text"])
	assert.Equal(t, []string{"visaslot <mailgun@mg.example.com>"}, form["from"])
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, form["to"])
}

func TestMailgun_NotifyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"forbidden"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	n, err := NewMailgun(MailgunConfig{
		Domain:  "mg.example.com",
		APIKey:  "key-123",
		To:      []string{"a@example.com"},
		APIBase: srv.URL + "/v3",
	})
	require.NoError(t, err)

	err = n.Notify(context.Background(), testMessage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailgun send")
}

func TestNewMailgun_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  MailgunConfig
	}{
		{"missing domain", MailgunConfig{APIKey: "k", To: []string{"a@example.com"}}},
		{"missing key", MailgunConfig{Domain: "d", To: []string{"a@example.com"}}},
		{"no recipients", MailgunConfig{Domain: "d", APIKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMailgun(tt.cfg)
			assert.Error(t, err)
		})
	}

	_, err := NewMailgun(MailgunConfig{Domain: "d", APIKey: "k"})
	assert.ErrorIs(t, err, ErrNoRecipients)
}

type fakeSender struct {
	channelID string
	sent      *discordgo.MessageSend
	err       error
}

func (f *fakeSender) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channelID = channelID
	f.sent = data
	if f.err != nil {
		return nil, f.err
	}
	return &discordgo.Message{ChannelID: channelID, Content: data.Content}, nil
}

func TestDiscord_Notify(t *testing.T) {
	sender := &fakeSender{}
	d := &Discord{sender: sender, channelID: "12345"}

	require.NoError(t, d.Notify(context.Background(), testMessage))

	assert.Equal(t, "12345", sender.channelID)
	require.NotNil(t, sender.sent)
	assert.Equal(t, "**"+testMessage.Subject+"**\n"+testMessage.Body, sender.sent.Content)
	assert.NotNil(t, sender.sent.AllowedMentions, "mentions must be suppressed")
}

func TestDiscord_NotifyError(t *testing.T) {
	d := &Discord{sender: &fakeSender{err: errors.New("rate limited")}, channelID: "1"}

	err := d.Notify(context.Background(), testMessage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestNewDiscord_Validation(t *testing.T) {
	_, err := NewDiscord("", "123")
	assert.Error(t, err)

	_, err = NewDiscord("token", " ")
	assert.ErrorIs(t, err, ErrNoRecipients)

	d, err := NewDiscord("token", "123")
	require.NoError(t, err)
	assert.Equal(t, "123", d.channelID)
}

func TestFormatDiscord_Truncates(t *testing.T) {
	got := formatDiscord(Message{Body: strings.Repeat("x", discordMessageLimit+10)})
	assert.Len(t, got, discordMessageLimit)
	assert.True(t, strings.HasSuffix(got, "..."))

	assert.Equal(t, "body only", formatDiscord(Message{Body: "body only"}))
}

func TestFormatDiscord_TruncatesOnRuneBoundary(t *testing.T) {
	// 1998 bytes of two-byte runes, so the cut at 1997 lands mid-rune
	got := formatDiscord(Message{Body: "a" + strings.Repeat("é", discordMessageLimit/2)})
	assert.True(t, utf8.ValidString(got), "truncated content is not valid UTF-8")
	assert.LessOrEqual(t, len(got), discordMessageLimit)
	assert.True(t, strings.HasSuffix(got, "é..."))
}

func TestMulti_Notify(t *testing.T) {
	var calls atomic.Int32
	ok := NotifierFunc(func(context.Context, Message) error {
		calls.Add(1)
		return nil
	})
	boom := errors.New("boom")
	failing := NotifierFunc(func(context.Context, Message) error {
		calls.Add(1)
		return boom
	})

	m := NewMulti(ok, nil, failing, ok)
	assert.Equal(t, 3, m.Len())

	err := m.Notify(context.Background(), testMessage)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(3), calls.Load())

	assert.NoError(t, NewMulti(ok, ok).Notify(context.Background(), testMessage))
	assert.ErrorIs(t, NewMulti().Notify(context.Background(), testMessage), ErrNoRecipients)
}

func TestMulti_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := NotifierFunc(func(context.Context, Message) error {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	m := NewMulti(slow, slow, slow, slow, slow, slow).WithLimit(2)
	require.NoError(t, m.Notify(context.Background(), testMessage))
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRetry_EventuallySucceeds(t *testing.T) {
	var attempts int
	flaky := NotifierFunc(func(context.Context, Message) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	r := NewRetry(flaky, RetryConfig{MaxRetries: 5, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond})
	require.NoError(t, r.Notify(context.Background(), testMessage))
	assert.Equal(t, 3, attempts)
}

func TestRetry_GivesUp(t *testing.T) {
	var attempts int
	down := NotifierFunc(func(context.Context, Message) error {
		attempts++
		return errors.New("down")
	})

	r := NewRetry(down, RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})
	err := r.Notify(context.Background(), testMessage)
	require.Error(t, err)
	assert.Equal(t, "down", err.Error())
	assert.Equal(t, 3, attempts)
}

func TestRetry_Permanent(t *testing.T) {
	var attempts int
	bad := errors.New("invalid recipient")
	n := NotifierFunc(func(context.Context, Message) error {
		attempts++
		return Permanent(bad)
	})

	err := NewRetry(n, RetryConfig{InitialInterval: time.Millisecond}).Notify(context.Background(), testMessage)
	assert.ErrorIs(t, err, bad)
	assert.Equal(t, 1, attempts)
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var attempts int
	n := NotifierFunc(func(context.Context, Message) error {
		attempts++
		cancel()
		return errors.New("down")
	})

	err := NewRetry(n, RetryConfig{MaxRetries: 10, InitialInterval: time.Second}).Notify(ctx, testMessage)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
