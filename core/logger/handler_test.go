package logger

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"log/slog"
)

func newTestHandler(buf io.Writer, format logFormat) (*structuredHandler, *asyncWriter) {
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	return newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	}), aw
}

func closeWriter(t *testing.T, aw *asyncWriter) {
	t.Helper()
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatKV)
	ctx := WithRID(Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)
	ctx = WithBot(ctx, "claims")

	log := slog.New(handler).With("component", "app")
	LogEvent(ctx, log, slog.LevelInfo, "claim.created",
		slog.String("status", "ok"),
		slog.String("claim_id", "000042"),
	)
	closeWriter(t, aw)

	line := strings.TrimSpace(buf.String())
	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=app", "event=claim.created", "status=ok", "rid=rid-123", "bot=claims"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
	if !strings.Contains(line, "claim_id=000042") {
		t.Fatalf("claim_id missing: %s", line)
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatJSON)
	ctx := WithRID(Background(), "rid-json")
	ctx = WithRoute(ctx, "POST", "/claims/chat/send")

	log := slog.New(handler).With("component", "service.chat")
	LogEvent(ctx, log, slog.LevelError, "chat.send",
		slog.String("status", "fail"),
		Err(errors.New("boom")),
	)
	closeWriter(t, aw)

	line := strings.TrimSpace(buf.String())
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"service.chat"`, `"event":"chat.send"`, `"status":"fail"`, `"rid":"rid-json"`, `"route":"POST /claims/chat/send"`, `"err":"boom"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatKV)
	rawRID := "123:456:789"
	log := slog.New(handler).With("component", "app")
	LogEvent(WithRID(Background(), rawRID), log, slog.LevelInfo, "rid.test", slog.String("status", "ok"))
	closeWriter(t, aw)

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, "rid="+CompactRID(rawRID)) {
		t.Fatalf("expected compact rid, got %s", line)
	}
	if strings.Contains(line, "rid_full=") {
		t.Fatalf("rid_full should be omitted in KV output, got %s", line)
	}
}

func TestStructuredHandlerCompactRIDJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatJSON)
	rawRID := "12:34:56"
	log := slog.New(handler).With("component", "app")
	LogEvent(WithRID(Background(), rawRID), log, slog.LevelInfo, "rid.test", slog.String("status", "ok"))
	closeWriter(t, aw)

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, `"rid":"`+CompactRID(rawRID)+`"`) {
		t.Fatalf("expected compact rid in JSON, got %s", line)
	}
	if !strings.Contains(line, `"rid_full":"`+rawRID+`"`) {
		t.Fatalf("expected rid_full in JSON output, got %s", line)
	}
}

func TestStructuredHandlerErrorsSink(t *testing.T) {
	main := &bytes.Buffer{}
	errs := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{main}, 1024)
	ew := newAsyncWriter([]io.Writer{errs}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:     slog.LevelInfo,
		writer:    aw,
		errWriter: ew,
		format:    formatKV,
	})
	log := slog.New(handler)
	LogEvent(Background(), log, slog.LevelInfo, "quiet")
	LogEvent(Background(), log, slog.LevelWarn, "loud")
	closeWriter(t, aw)
	closeWriter(t, ew)

	if strings.Count(main.String(), "\n") != 2 {
		t.Fatalf("main sink should get both lines, got %q", main.String())
	}
	if strings.Contains(errs.String(), "event=quiet") || !strings.Contains(errs.String(), "event=loud") {
		t.Fatalf("errors sink should only get WARN+, got %q", errs.String())
	}
}

func TestDurationKey(t *testing.T) {
	cases := map[string]string{
		"duration":         "duration_ms",
		"startup_duration": "startup_duration_ms",
		"backoff":          "backoff_ms",
		"backoff_ms":       "backoff_ms",
	}
	for in, want := range cases {
		if got := durationKey(in); got != want {
			t.Fatalf("durationKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactToken(t *testing.T) {
	token := "123456:ABC-def"
	in := "Post https://api.telegram.org/bot123456:ABC-def/sendMessage: timeout (123456:ABC-def)"
	got := RedactToken(in, token)
	if strings.Contains(got, token) {
		t.Fatalf("token leaked: %s", got)
	}
	if !strings.Contains(got, "bot<redacted>/sendMessage") {
		t.Fatalf("unexpected redaction: %s", got)
	}
}

func TestParseSampleRate(t *testing.T) {
	cases := map[string]sampleRate{
		"":    defaultSample,
		"off": {},
		"10":  {keep: 1, every: 10},
		"3/4": {keep: 3, every: 4},
		"9/4": {keep: 4, every: 4},
		"x/y": defaultSample,
		"-5":  defaultSample,
	}
	for raw, want := range cases {
		if got := parseSampleRate(raw); got != want {
			t.Fatalf("parseSampleRate(%q) = %+v, want %+v", raw, got, want)
		}
	}
}

func TestDebugSamplerKeepsRatio(t *testing.T) {
	s := newDebugSampler(sampleRate{keep: 2, every: 5})
	kept := 0
	for range 20 {
		if s.allow() {
			kept++
		}
	}
	if kept != 8 {
		t.Fatalf("kept %d of 20, want 8", kept)
	}
	s.set(sampleRate{})
	if !s.allow() {
		t.Fatal("zero rate must keep everything")
	}
}

func TestPreview(t *testing.T) {
	got, omitted := Preview([]string{"a", "b", "c"}, 2)
	if got != "a, b" || omitted != 1 {
		t.Fatalf("Preview = %q, %d", got, omitted)
	}
	if got, omitted := Preview(nil, 3); got != "" || omitted != 0 {
		t.Fatalf("empty Preview = %q, %d", got, omitted)
	}
}

func TestStructuredHandlerMasksRequisites(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatKV)
	LogEvent(Background(), slog.New(handler), slog.LevelInfo, "payment.manual",
		slog.String("card", "2200700012345678"),
		slog.String("phone", "+79001234567"),
		slog.String("password", "hunter2"),
	)
	closeWriter(t, aw)

	line := buf.String()
	for _, leaked := range []string{"2200700012345678", "+79001234567", "hunter2"} {
		if strings.Contains(line, leaked) {
			t.Fatalf("%s leaked: %s", leaked, line)
		}
	}
	if !strings.Contains(line, "card=************5678") || !strings.Contains(line, "password=***") {
		t.Fatalf("unexpected masking: %s", line)
	}
}
