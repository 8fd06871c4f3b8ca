package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func lastJSONLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("expected JSON line, got %q, err=%v", buf.String(), err)
	}
	return m
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Service: "demo", Env: EnvDev, Output: &buf})

	slog.Info("hello", slog.String("k", "v"))

	out := buf.String()
	for _, want := range []string{"msg=hello", "k=v", "service=demo", "env=dev"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestInit_ProdStd_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Service: "demo", Env: EnvProd, Backend: BackendStd, Output: &buf})

	L().Info("booted")

	m := lastJSONLine(t, &buf)
	if m["msg"] != "booted" || m["env"] != "prod" {
		t.Fatalf("unexpected record: %v", m)
	}
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{
		Service:          "demo",
		Version:          "1.2.3",
		Env:              EnvProd,
		Output:           &buf,
		SampleInitial:    100000,
		SampleThereafter: 100000,
	})

	slog.Info("booted", slog.String("k", "v"))
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	m := lastJSONLine(t, &buf)
	if m["msg"] != "booted" {
		t.Fatalf("msg mismatch: %v", m["msg"])
	}
	if m["service"] != "demo" || m["env"] != "prod" || m["version"] != "1.2.3" {
		t.Fatalf("attrs missing: %v", m)
	}
	if m["level"] != "INFO" {
		t.Fatalf("level mismatch: %v", m["level"])
	}
	if m["k"] != "v" {
		t.Fatalf("custom field missing: %v", m["k"])
	}
}

func TestInit_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Env: EnvProd, Backend: BackendStd, Level: slog.LevelWarn, Output: &buf})

	slog.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level: %q", buf.String())
	}
	slog.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("warn record missing: %q", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Env: EnvProd, Backend: BackendStd, Output: &buf})

	l := L().With(slog.String("room_id", "r1"))
	FromContext(WithContext(context.Background(), l)).Info("x")
	if m := lastJSONLine(t, &buf); m["room_id"] != "r1" {
		t.Fatalf("context logger not used: %v", m)
	}

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	otel.SetTracerProvider(tp)
	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	FromContext(ctx).Info("with trace")
	m := lastJSONLine(t, &buf)
	if m["trace_id"] == nil || m["span_id"] == nil {
		t.Fatalf("trace_id/span_id missing in log: %v", m)
	}
}

func TestAttrsFromCtx_NoSpan(t *testing.T) {
	if attrs := AttrsFromCtx(context.Background()); attrs != nil {
		t.Fatalf("expected nil, got %v", attrs)
	}
}

func TestDetectEnv(t *testing.T) {
	cases := map[string]Env{
		"production": EnvProd,
		"prod":       EnvProd,
		"staging":    EnvStage,
		"":           EnvDev,
		"whatever":   EnvDev,
	}
	for raw, want := range cases {
		t.Setenv("APP_ENV", raw)
		t.Setenv("NODE_ENV", "")
		if got := DetectEnv(); got != want {
			t.Fatalf("APP_ENV=%q: want %s, got %s", raw, want, got)
		}
	}

	t.Setenv("APP_ENV", "")
	t.Setenv("NODE_ENV", "production")
	if got := DetectEnv(); got != EnvProd {
		t.Fatalf("NODE_ENV fallback: got %s", got)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
