package config

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidateTieredInvalidSessionIDIsFatal(t *testing.T) {
	cfg := Default()
	cfg.SessionID = "not-a-uuid"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("invalid session ID should be fatal")
	}
	found := false
	for _, err := range result.Fatals {
		if strings.Contains(err.Error(), "not a valid UUID") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected UUID validation error in fatals")
	}
}

func TestValidateTieredHostWithSlashIsFatal(t *testing.T) {
	cfg := Default()
	cfg.Host = "evil/../host"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("host containing a slash should be fatal")
	}
}

func TestValidateTieredControlCharsInPasswordIsFatal(t *testing.T) {
	cfg := Default()
	cfg.Password = "pw\x00with\x01control"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("control chars in password should be fatal")
	}
}

func TestValidateTieredPortClampingIsWarning(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped port should be warning, not fatal: %v", result.Fatals)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for clamped port")
	}
	if cfg.Port != 5900 {
		t.Fatalf("Port = %d, want 5900 (clamped)", cfg.Port)
	}
}

func TestValidateTieredConnectTimeoutClamping(t *testing.T) {
	cfg := Default()
	cfg.ConnectTimeoutSeconds = 9999
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped timeout should be warning, not fatal: %v", result.Fatals)
	}
	if cfg.ConnectTimeoutSeconds != 120 {
		t.Fatalf("ConnectTimeoutSeconds = %d, want 120 (clamped)", cfg.ConnectTimeoutSeconds)
	}
}

func TestValidateTieredConcurrencyClamping(t *testing.T) {
	cfg := Default()
	cfg.MaxConcurrentUpdates = 0
	cfg.CutTextQueueSize = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped concurrency should be warning: %v", result.Fatals)
	}
	if cfg.MaxConcurrentUpdates != 1 {
		t.Fatalf("MaxConcurrentUpdates = %d, want 1", cfg.MaxConcurrentUpdates)
	}
	if cfg.CutTextQueueSize != 1 {
		t.Fatalf("CutTextQueueSize = %d, want 1", cfg.CutTextQueueSize)
	}
}

func TestValidateTieredUnknownEncodingIsWarning(t *testing.T) {
	cfg := Default()
	cfg.EncodingPreference = []string{"tight", "bogus_encoding"}
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown encoding should not be fatal")
	}
	found := false
	for _, err := range result.Warnings {
		if strings.Contains(err.Error(), "bogus_encoding") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected warning about unknown encoding")
	}
}

func TestValidateTieredUnknownLogLevelIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for unknown log level")
	}
}

func TestValidateTieredInvalidLogFormatIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for invalid log format")
	}
}

func TestValidateTieredBitsPerPixelClamping(t *testing.T) {
	cfg := Default()
	cfg.PreferredBitsPerPixel = 24
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid bits per pixel should not be fatal")
	}
	if cfg.PreferredBitsPerPixel != 32 {
		t.Fatalf("PreferredBitsPerPixel = %d, want 32 (clamped)", cfg.PreferredBitsPerPixel)
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.Host = "bad/host"                            // fatal
	cfg.EncodingPreference = []string{"fake_encoding"} // warning
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	cfg.SessionID = "12345678-1234-1234-1234-123456789abc"
	cfg.Host = "vnc.example.com"
	cfg.Password = "clean-password"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("valid config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("valid config has warnings: %v", result.Warnings)
	}
}
