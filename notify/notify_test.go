package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/laywatch/layout"
)

func testReport() Report {
	return Report{
		Collection: "Layouts",
		Removed: []layout.Entry{
			{Key: "grid", Label: "Grid View"},
			{Key: "list", Label: "List View"},
		},
		ObservedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// fakeSink records calls and optionally fails.
type fakeSink struct {
	calls int
	err   error
}

func (f *fakeSink) SendRemoved(context.Context, Report) error {
	f.calls++
	return f.err
}
func (f *fakeSink) Close() error { return nil }

func TestRouter_IsolatesFailures(t *testing.T) {
	// WHAT: A failing sink does not prevent delivery to the others.
	failing := &fakeSink{err: errors.New("boom")}
	ok := &fakeSink{}

	r := NewRouter(nil, failing, ok)
	err := r.SendRemoved(context.Background(), testReport())

	if err == nil {
		t.Error("SendRemoved should return the first error")
	}
	if failing.calls != 1 || ok.calls != 1 {
		t.Errorf("calls: got %d/%d, want 1/1", failing.calls, ok.calls)
	}
}

func TestSMTP_Configured(t *testing.T) {
	cases := []struct {
		name string
		cfg  SMTPConfig
		want bool
	}{
		{"complete", SMTPConfig{Host: "mail", From: "a@b", Recipients: []string{"c@d"}}, true},
		{"no host", SMTPConfig{From: "a@b", Recipients: []string{"c@d"}}, false},
		{"no from", SMTPConfig{Host: "mail", Recipients: []string{"c@d"}}, false},
		{"no recipients", SMTPConfig{Host: "mail", From: "a@b"}, false},
	}
	for _, tc := range cases {
		if got := tc.cfg.Configured(); got != tc.want {
			t.Errorf("%s: Configured got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSMTP_PerRecipientIsolation(t *testing.T) {
	// WHAT: One recipient's failure does not stop the remaining sends.
	// WHY: Partial delivery beats no delivery.
	var sent []string
	send := func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, to[0])
		if to[0] == "bad@example.com" {
			return errors.New("mailbox unavailable")
		}
		return nil
	}

	s := NewSMTP(SMTPConfig{
		Host:       "mail.example.com",
		From:       "watch@example.com",
		Recipients: []string{"bad@example.com", "good@example.com"},
	}, nil, WithSendFunc(send))

	err := s.SendRemoved(context.Background(), testReport())
	if err == nil {
		t.Error("SendRemoved should report the failed recipient")
	}
	if len(sent) != 2 {
		t.Fatalf("sends: got %d, want 2 (all recipients attempted)", len(sent))
	}
	if sent[1] != "good@example.com" {
		t.Errorf("second send: got %s, want good@example.com", sent[1])
	}
}

func TestSMTP_MessageContent(t *testing.T) {
	var captured []byte
	send := func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		captured = msg
		return nil
	}

	s := NewSMTP(SMTPConfig{
		Host:          "mail.example.com",
		From:          "watch@example.com",
		Recipients:    []string{"ops@example.com"},
		SubjectPrefix: "[laywatch] ",
	}, nil, WithSendFunc(send))

	if err := s.SendRemoved(context.Background(), testReport()); err != nil {
		t.Fatalf("SendRemoved: %v", err)
	}

	msg := string(captured)
	if !strings.Contains(msg, "Subject: [laywatch] 2 layout(s) removed from Layouts") {
		t.Errorf("subject missing or wrong:\n%s", msg)
	}
	if !strings.Contains(msg, "Grid View (grid)") {
		t.Errorf("body should list removed layouts:\n%s", msg)
	}
}

func TestSMTP_CancellationStopsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var sent int
	send := func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent++
		cancel() // cancel after the first delivery
		return nil
	}

	s := NewSMTP(SMTPConfig{
		Host:       "mail.example.com",
		From:       "watch@example.com",
		Recipients: []string{"one@example.com", "two@example.com", "three@example.com"},
	}, nil, WithSendFunc(send))

	err := s.SendRemoved(ctx, testReport())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error: got %v, want context.Canceled", err)
	}
	if sent != 1 {
		t.Errorf("sends: got %d, want 1 (remaining recipients skipped)", sent)
	}
}

func TestStdout_Encodes(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	if err := s.SendRemoved(context.Background(), testReport()); err != nil {
		t.Fatalf("SendRemoved: %v", err)
	}

	var env struct {
		Type string `json:"type"`
		Data Report `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != "removed" || len(env.Data.Removed) != 2 {
		t.Errorf("envelope: got type=%q removed=%d, want removed/2", env.Type, len(env.Data.Removed))
	}
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	// WHAT: A 500 is retried; a later 200 counts as delivered.
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(2))
	if err := w.SendRemoved(context.Background(), testReport()); err != nil {
		t.Fatalf("SendRemoved: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("hits: got %d, want 2", hits.Load())
	}
}

func TestWebhook_PostsEnvelope(t *testing.T) {
	var got envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	if err := w.SendRemoved(context.Background(), testReport()); err != nil {
		t.Fatalf("SendRemoved: %v", err)
	}
	if got.Type != "removed" {
		t.Errorf("envelope type: got %q, want %q", got.Type, "removed")
	}
}
