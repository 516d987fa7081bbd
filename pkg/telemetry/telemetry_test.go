package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in        string
		wantLevel string
		wantMsg   string
	}{
		{in: "", wantLevel: "INFO", wantMsg: ""},
		{in: "INFO building oneauth", wantLevel: "INFO", wantMsg: "building oneauth"},
		{in: "[error] upload failed", wantLevel: "ERROR", wantMsg: "upload failed"},
		{in: "warn: slow upload", wantLevel: "WARN", wantMsg: "slow upload"},
		{in: "plain message", wantLevel: "INFO", wantMsg: "plain message"},
		{in: "[note] kept", wantLevel: "INFO", wantMsg: "[note] kept"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			level, msg := parseLevel(tt.in)
			if level != tt.wantLevel || msg != tt.wantMsg {
				t.Fatalf("parseLevel(%q) = (%q, %q), want (%q, %q)", tt.in, level, msg, tt.wantLevel, tt.wantMsg)
			}
		})
	}
}

func TestInitLoggerWritesJSON(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	var buf bytes.Buffer
	shutdown, logger, err := Init(context.Background(), "relmake-test", &buf)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	logger.Printf("ERROR build failed for %s", "oneauth")

	var entry map[string]string
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "ERROR" || entry["msg"] != "build failed for oneauth" || entry["service"] != "relmake-test" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if _, _, err := Init(context.Background(), "", nil); err == nil {
		t.Fatal("Init() error = nil, want error for empty service name")
	}
}

func TestTraceIDWithoutSpan(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Fatalf("TraceID() = %q, want empty", got)
	}
}

func TestLogfCarriesTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(newJSONLogWriter("relmake-test", &buf), "", 0)

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "build")
	defer span.End()

	Logf(ctx, logger, "INFO building %s", "oneauth")

	var entry map[string]string
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	want := span.SpanContext().TraceID().String()
	if entry["trace_id"] != want {
		t.Fatalf("trace_id = %q, want %q", entry["trace_id"], want)
	}
	if entry["level"] != "INFO" || entry["msg"] != "building oneauth" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}

func TestLogfWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(newJSONLogWriter("relmake-test", &buf), "", 0)

	Logf(context.Background(), logger, "WARN no span")

	var entry map[string]string
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if _, ok := entry["trace_id"]; ok {
		t.Fatalf("trace_id present without a span: %v", entry)
	}
}

func TestLogfPlainLogger(t *testing.T) {
	var buf bytes.Buffer
	Logf(context.Background(), log.New(&buf, "", 0), "INFO plain %d", 1)
	if got := strings.TrimSpace(buf.String()); got != "INFO plain 1" {
		t.Fatalf("plain logger output = %q", got)
	}
	Logf(context.Background(), nil, "ignored")
}
