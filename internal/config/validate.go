package config

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

var knownEncodings = map[string]bool{
	"tight":    true,
	"zrle":     true,
	"hextile":  true,
	"rre":      true,
	"copyrect": true,
	"raw":      true,
}

var knownAuthTypes = map[string]bool{
	"none":     true,
	"vnc":      true,
	"mslogon":  true,
	"ard":      true,
	"tls":      true,
	"vencrypt": true,
	"sasl":     true,
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult separates validation problems into Fatals, which abort
// Load, and Warnings, which are logged but left to run with an auto-clamped
// value.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings, for callers that just want
// a single list to print.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// ValidateTiered checks the config for invalid values. Malformed identity
// fields (session ID, target host, credential) are fatal, since continuing
// with them would either panic downstream or silently mean something
// different than the operator intended. Out-of-range tuning values are
// clamped to the nearest safe bound and reported as warnings, so a typo in
// a timeout never prevents the probe from running at all.
func (c *Config) ValidateTiered() ValidationResult {
	var result ValidationResult

	if c.SessionID != "" && !uuidRegex.MatchString(c.SessionID) {
		result.Fatals = append(result.Fatals, fmt.Errorf("session_id %q is not a valid UUID", c.SessionID))
	}

	if c.Host != "" {
		for _, r := range c.Host {
			if unicode.IsControl(r) || r == '/' {
				result.Fatals = append(result.Fatals, fmt.Errorf("host %q is not a valid hostname or address", c.Host))
				break
			}
		}
	}

	if c.Password != "" {
		for _, r := range c.Password {
			if unicode.IsControl(r) {
				result.Fatals = append(result.Fatals, fmt.Errorf("password contains control characters"))
				break
			}
		}
	}

	// Clamp the port and timing knobs to their accepted ranges.
	if c.Port < 1 || c.Port > 65535 {
		result.Warnings = append(result.Warnings, fmt.Errorf("port %d is out of range, clamping to 5900", c.Port))
		c.Port = 5900
	}

	if c.ConnectTimeoutSeconds < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("connect_timeout_seconds %d is below minimum 1, clamping", c.ConnectTimeoutSeconds))
		c.ConnectTimeoutSeconds = 1
	} else if c.ConnectTimeoutSeconds > 120 {
		result.Warnings = append(result.Warnings, fmt.Errorf("connect_timeout_seconds %d exceeds maximum 120, clamping", c.ConnectTimeoutSeconds))
		c.ConnectTimeoutSeconds = 120
	}

	if c.FramebufferUpdateIntervalMS < 0 {
		result.Warnings = append(result.Warnings, fmt.Errorf("framebuffer_update_interval_ms %d is negative, clamping to 0", c.FramebufferUpdateIntervalMS))
		c.FramebufferUpdateIntervalMS = 0
	} else if c.FramebufferUpdateIntervalMS > 5000 {
		result.Warnings = append(result.Warnings, fmt.Errorf("framebuffer_update_interval_ms %d exceeds maximum 5000, clamping", c.FramebufferUpdateIntervalMS))
		c.FramebufferUpdateIntervalMS = 5000
	}

	if c.MaxConcurrentUpdates < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("max_concurrent_updates %d is below minimum 1, clamping", c.MaxConcurrentUpdates))
		c.MaxConcurrentUpdates = 1
	} else if c.MaxConcurrentUpdates > 64 {
		result.Warnings = append(result.Warnings, fmt.Errorf("max_concurrent_updates %d exceeds maximum 64, clamping", c.MaxConcurrentUpdates))
		c.MaxConcurrentUpdates = 64
	}

	if c.CutTextQueueSize < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("cut_text_queue_size %d is below minimum 1, clamping", c.CutTextQueueSize))
		c.CutTextQueueSize = 1
	} else if c.CutTextQueueSize > 10000 {
		result.Warnings = append(result.Warnings, fmt.Errorf("cut_text_queue_size %d exceeds maximum 10000, clamping", c.CutTextQueueSize))
		c.CutTextQueueSize = 10000
	}

	switch c.PreferredBitsPerPixel {
	case 0, 8, 16, 32:
	default:
		result.Warnings = append(result.Warnings, fmt.Errorf("preferred_bits_per_pixel %d is not one of 8, 16, 32, clamping to 32", c.PreferredBitsPerPixel))
		c.PreferredBitsPerPixel = 32
	}

	for _, name := range c.EncodingPreference {
		if !knownEncodings[strings.ToLower(name)] {
			result.Warnings = append(result.Warnings, fmt.Errorf("unknown encoding %q", name))
		}
	}

	for _, name := range c.PreferredAuth {
		if !knownAuthTypes[strings.ToLower(name)] {
			result.Warnings = append(result.Warnings, fmt.Errorf("unknown auth type %q", name))
		}
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	return result
}
