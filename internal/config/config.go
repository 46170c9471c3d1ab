package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// SlogLevel maps the configured log level onto slog. Unknown values
// fall back to info.
func (t TelemetryConfig) SlogLevel() slog.Level {
	switch strings.ToLower(t.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Stream      StreamConfig     `yaml:"stream"`
	Transcript  TranscriptConfig `yaml:"transcript"`
	Render      RenderConfig     `yaml:"render"`
	Session     SessionConfig    `yaml:"session"`
	Archive     ArchiveConfig    `yaml:"archive"`
	Enhance     EnhanceConfig    `yaml:"enhance"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// StreamConfig governs the recognition channel and its bounded
// fixed-interval reconnect policy.
type StreamConfig struct {
	URL               string `yaml:"url"`
	Language          string `yaml:"language"`
	SampleRate        int    `yaml:"sample_rate"`
	Channels          int    `yaml:"channels"`
	KeytermLimit      int    `yaml:"keyterm_limit"`
	ReconnectAttempts int    `yaml:"reconnect_attempts"`
	ReconnectDelayMS  int    `yaml:"reconnect_delay_ms"`
}

// TranscriptConfig holds the consolidation windows. The defaults are
// heuristics, not derived constants; they stay tunable.
type TranscriptConfig struct {
	ExtensionWindowSec float64 `yaml:"extension_window_sec"`
	DuplicateWindowSec float64 `yaml:"duplicate_window_sec"`
	DefaultSegmentSec  float64 `yaml:"default_segment_sec"`
}

type RenderConfig struct {
	LowConfidence     float64 `yaml:"low_confidence"`
	MinFlagWordRunes  int     `yaml:"min_flag_word_runes"`
	ScrollThresholdPX int     `yaml:"scroll_threshold_px"`
	PublishDeltas     bool    `yaml:"publish_deltas"`
}

type SessionConfig struct {
	EditDebounceMS int    `yaml:"edit_debounce_ms"`
	RecordAudio    bool   `yaml:"record_audio"`
	AudioDir       string `yaml:"audio_dir"`
}

type ArchiveConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxHearings   int    `yaml:"max_hearings"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type EnhanceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode"` // mock, exec
	Command string `yaml:"command"`
}

func Default() Config {
	return Config{
		RuntimeName: "acta-core",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Stream: StreamConfig{
			URL:               "nats://localhost:4222",
			Language:          "es-419",
			SampleRate:        16000,
			Channels:          1,
			KeytermLimit:      100,
			ReconnectAttempts: 5,
			ReconnectDelayMS:  2000,
		},
		Transcript: TranscriptConfig{
			ExtensionWindowSec: 0.5,
			DuplicateWindowSec: 1.0,
			DefaultSegmentSec:  5.0,
		},
		Render: RenderConfig{
			LowConfidence:     0.7,
			MinFlagWordRunes:  2,
			ScrollThresholdPX: 80,
			PublishDeltas:     true,
		},
		Session: SessionConfig{
			EditDebounceMS: 800,
			RecordAudio:    true,
			AudioDir:       "./data/audio",
		},
		Archive: ArchiveConfig{
			Path:          "./data/acta.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxHearings:   10000,
		},
		Enhance: EnhanceConfig{
			Enabled: false,
			Mode:    "mock",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "ACTA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "ACTA_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "ACTA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "ACTA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "ACTA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "ACTA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "ACTA_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "ACTA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "ACTA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "ACTA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "ACTA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "ACTA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "ACTA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "ACTA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "ACTA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Stream.URL, "ACTA_STREAM_URL")
	overrideString(&cfg.Stream.Language, "ACTA_STREAM_LANGUAGE")
	overrideInt(&cfg.Stream.SampleRate, "ACTA_STREAM_SAMPLE_RATE")
	overrideInt(&cfg.Stream.Channels, "ACTA_STREAM_CHANNELS")
	overrideInt(&cfg.Stream.KeytermLimit, "ACTA_STREAM_KEYTERM_LIMIT")
	overrideInt(&cfg.Stream.ReconnectAttempts, "ACTA_STREAM_RECONNECT_ATTEMPTS")
	overrideInt(&cfg.Stream.ReconnectDelayMS, "ACTA_STREAM_RECONNECT_DELAY_MS")
	overrideFloat(&cfg.Transcript.ExtensionWindowSec, "ACTA_TRANSCRIPT_EXTENSION_WINDOW_SEC")
	overrideFloat(&cfg.Transcript.DuplicateWindowSec, "ACTA_TRANSCRIPT_DUPLICATE_WINDOW_SEC")
	overrideFloat(&cfg.Transcript.DefaultSegmentSec, "ACTA_TRANSCRIPT_DEFAULT_SEGMENT_SEC")
	overrideFloat(&cfg.Render.LowConfidence, "ACTA_RENDER_LOW_CONFIDENCE")
	overrideInt(&cfg.Render.MinFlagWordRunes, "ACTA_RENDER_MIN_FLAG_WORD_RUNES")
	overrideInt(&cfg.Render.ScrollThresholdPX, "ACTA_RENDER_SCROLL_THRESHOLD_PX")
	overrideBool(&cfg.Render.PublishDeltas, "ACTA_RENDER_PUBLISH_DELTAS")
	overrideInt(&cfg.Session.EditDebounceMS, "ACTA_SESSION_EDIT_DEBOUNCE_MS")
	overrideBool(&cfg.Session.RecordAudio, "ACTA_SESSION_RECORD_AUDIO")
	overrideString(&cfg.Session.AudioDir, "ACTA_SESSION_AUDIO_DIR")
	overrideString(&cfg.Archive.Path, "ACTA_ARCHIVE_PATH")
	overrideString(&cfg.Archive.RetentionMode, "ACTA_ARCHIVE_RETENTION_MODE")
	overrideInt(&cfg.Archive.RetentionDays, "ACTA_ARCHIVE_RETENTION_DAYS")
	overrideInt(&cfg.Archive.MaxHearings, "ACTA_ARCHIVE_MAX_HEARINGS")
	overrideBool(&cfg.Archive.VacuumOnStart, "ACTA_ARCHIVE_VACUUM_ON_START")
	overrideBool(&cfg.Enhance.Enabled, "ACTA_ENHANCE_ENABLED")
	overrideString(&cfg.Enhance.Mode, "ACTA_ENHANCE_MODE")
	overrideString(&cfg.Enhance.Command, "ACTA_ENHANCE_COMMAND")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Stream.SampleRate <= 0 {
		return errors.New("stream.sample_rate must be positive")
	}
	if cfg.Stream.Channels <= 0 {
		return errors.New("stream.channels must be positive")
	}
	if cfg.Stream.ReconnectAttempts < 0 {
		return errors.New("stream.reconnect_attempts must be >= 0")
	}
	if cfg.Stream.ReconnectDelayMS <= 0 {
		return errors.New("stream.reconnect_delay_ms must be positive")
	}
	if cfg.Transcript.ExtensionWindowSec <= 0 {
		return errors.New("transcript.extension_window_sec must be positive")
	}
	if cfg.Transcript.DuplicateWindowSec < cfg.Transcript.ExtensionWindowSec {
		return errors.New("transcript.duplicate_window_sec must be >= extension window")
	}
	if cfg.Transcript.DefaultSegmentSec <= 0 {
		return errors.New("transcript.default_segment_sec must be positive")
	}
	if cfg.Render.LowConfidence <= 0 || cfg.Render.LowConfidence > 1 {
		return errors.New("render.low_confidence must be in (0, 1]")
	}
	if cfg.Render.ScrollThresholdPX < 0 {
		return errors.New("render.scroll_threshold_px must be >= 0")
	}
	if cfg.Session.EditDebounceMS <= 0 {
		return errors.New("session.edit_debounce_ms must be positive")
	}
	if cfg.Session.RecordAudio && cfg.Session.AudioDir == "" {
		return errors.New("session.audio_dir must not be empty when recording is enabled")
	}
	if cfg.Archive.Path == "" {
		return errors.New("archive.path must not be empty")
	}
	switch cfg.Archive.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("archive.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Archive.RetentionDays < 0 {
		return errors.New("archive.retention_days must be >= 0")
	}
	if cfg.Enhance.Enabled {
		switch cfg.Enhance.Mode {
		case "mock", "exec":
		default:
			return errors.New("enhance.mode must be one of mock|exec")
		}
		if cfg.Enhance.Mode == "exec" && cfg.Enhance.Command == "" {
			return errors.New("enhance.command must be set when mode=exec")
		}
	}
	return nil
}
