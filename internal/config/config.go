// Package config loads and validates vncprobe's session configuration:
// target host/port, credentials, encoding and auth preferences, TLS/SASL
// policy, and the ambient logging/concurrency knobs. Values come from a
// YAML file (via viper) and environment variables prefixed VNCPROBE_; the
// only CLI flag, cmd/vncprobe's --config, selects the file and no flag
// overrides a value.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/breeze-rmm/vncclient/internal/logging"
)

// Config is the fully-resolved configuration for one vncprobe invocation.
type Config struct {
	SessionID string `mapstructure:"session_id"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Shared    bool   `mapstructure:"shared"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	PreferredAuth []string `mapstructure:"preferred_auth"`

	TLSCAFile      string `mapstructure:"tls_ca_file"`
	TLSCertFile    string `mapstructure:"tls_cert_file"`
	TLSKeyFile     string `mapstructure:"tls_key_file"`
	TLSServerName  string `mapstructure:"tls_server_name"`
	TLSAnonymous   bool   `mapstructure:"tls_anonymous"`

	SASLMechanismPreference []string `mapstructure:"sasl_mechanism_preference"`
	SASLMinSSFBits          int      `mapstructure:"sasl_min_ssf_bits"`

	PreferredBitsPerPixel int      `mapstructure:"preferred_bits_per_pixel"`
	EncodingPreference    []string `mapstructure:"encoding_preference"`

	ConnectTimeoutSeconds       int `mapstructure:"connect_timeout_seconds"`
	FramebufferUpdateIntervalMS int `mapstructure:"framebuffer_update_interval_ms"`
	MaxConcurrentUpdates       int `mapstructure:"max_concurrent_updates"`
	CutTextQueueSize            int `mapstructure:"cut_text_queue_size"`

	AudioEnabled    bool `mapstructure:"audio_enabled"`
	AudioSampleRate int  `mapstructure:"audio_sample_rate"`

	// Logging configuration
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

func Default() *Config {
	return &Config{
		Port:                        5900,
		PreferredAuth:               []string{"vencrypt", "vnc", "none"},
		SASLMinSSFBits:              0,
		PreferredBitsPerPixel:       32,
		EncodingPreference:          []string{"tight", "zrle", "hextile", "rre", "copyrect", "raw"},
		ConnectTimeoutSeconds:       10,
		FramebufferUpdateIntervalMS: 30,
		MaxConcurrentUpdates:        4,
		CutTextQueueSize:            16,
		AudioSampleRate:             44100,
		LogLevel:                    "info",
		LogFormat:                   "text",
		LogMaxSizeMB:                50,
		LogMaxBackups:               3,
	}
}

// Load reads configuration from cfgFile (or the default search path if
// empty), overlays VNCPROBE_-prefixed environment variables, and
// validates the result. Fatal validation errors abort startup; warnings are
// logged and the offending values are clamped in place.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("vncprobe")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("VNCPROBE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	log := logging.L("config")
	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("session_id", cfg.SessionID)
	viper.Set("host", cfg.Host)
	viper.Set("port", cfg.Port)
	viper.Set("shared", cfg.Shared)
	viper.Set("username", cfg.Username)
	viper.Set("preferred_auth", cfg.PreferredAuth)
	viper.Set("encoding_preference", cfg.EncodingPreference)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "vncprobe.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	// Restrict config file to owner-only access (it may contain a password)
	return os.Chmod(cfgPath, 0600)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("AppData"), "vncprobe")
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "vncprobe")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "vncprobe")
		}
		return filepath.Join(os.Getenv("HOME"), ".config", "vncprobe")
	}
}
