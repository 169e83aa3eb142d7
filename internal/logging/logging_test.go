package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestPreInitLoggerUsesConfiguredHandler(t *testing.T) {
	logger := L("handshake")

	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger.Info("connected", "host", "10.0.0.5:5900")

	out := buf.String()
	if strings.Contains(out, `msg="INFO connected`) {
		t.Fatalf("unexpected nested severity prefix in message: %s", out)
	}
	if !strings.Contains(out, "msg=connected") {
		t.Fatalf("expected plain connected message, got: %s", out)
	}
	if !strings.Contains(out, "component=handshake") {
		t.Fatalf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "host=10.0.0.5:5900") {
		t.Fatalf("expected host field, got: %s", out)
	}
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := L("handshake")

	var buf bytes.Buffer
	Init("text", "warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn log should be emitted: %s", out)
	}
}

func TestWithSessionAttachesCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger := WithSession(L("session"), "sess-1", "10.0.0.5:5900")
	logger.Info("established")

	out := buf.String()
	if !strings.Contains(out, "sessionId=sess-1") {
		t.Fatalf("expected sessionId field, got: %s", out)
	}
	if !strings.Contains(out, "host=10.0.0.5:5900") {
		t.Fatalf("expected host field, got: %s", out)
	}
}
