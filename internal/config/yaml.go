// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"signalmon/internal/log"
	"signalmon/pkg/bitint"
)

// Spectral modes and window fill policies accepted by the spectrum section.
const (
	ModeAmplitude = "amplitude"
	ModePhase     = "phase"

	FillWait = "wait" // evaluate only once the window holds fft_size real samples
	FillPad  = "pad"  // zero-pad a short window and evaluate immediately
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Forces log_level to debug.
	LogLevel  string          `yaml:"log_level"` // debug, info, warn, error.
	Serial    SerialConfig    `yaml:"serial"`    // Instrument link.
	Stream    StreamConfig    `yaml:"stream"`    // Decoding and emission cadence.
	Spectrum  SpectrumConfig  `yaml:"spectrum"`  // Derived spectral channel.
	Transport TransportConfig `yaml:"transport"` // Network sinks.
	Recording RecordingConfig `yaml:"recording"` // File sinks.
}

// SerialConfig holds the instrument link parameters.
type SerialConfig struct {
	Port        string        `yaml:"port"`         // Device path, e.g. /dev/ttyUSB0 or COM3.
	BaudRate    int           `yaml:"baud_rate"`    // Bits per second.
	DataBits    int           `yaml:"data_bits"`    // 5 to 8.
	Parity      string        `yaml:"parity"`       // none, odd, even, mark, space.
	StopBits    string        `yaml:"stop_bits"`    // 1, 1.5, 2.
	ReadTimeout time.Duration `yaml:"read_timeout"` // Upper bound of one blocking read.
}

// StreamConfig holds decoding and emission settings.
type StreamConfig struct {
	EmitInterval time.Duration `yaml:"emit_interval"` // Scheduler period.
	StartMarker  string        `yaml:"start_marker"`  // Bytes before it are discarded. Empty disables hunting.
	EventBuffer  int           `yaml:"event_buffer"`  // Per-subscriber queue depth.
	MaxTokenLen  int           `yaml:"max_token_len"` // Longest token accepted.
	MaxChannels  int           `yaml:"max_channels"`  // Channel indices a select directive may reach.
}

// SpectrumConfig configures the spectral analyzer.
type SpectrumConfig struct {
	Enabled       bool    `yaml:"enabled"`
	SourceChannel int     `yaml:"source_channel"` // Channel index of the parent source to analyze.
	FFTSize       int     `yaml:"fft_size"`       // Power of two.
	Mode          string  `yaml:"mode"`           // amplitude or phase.
	Window        string  `yaml:"window"`         // Window function name, see analysis.ParseWindow.
	Fill          string  `yaml:"fill"`           // wait or pad.
	DefaultStep   float64 `yaml:"default_step"`   // Sample step until the source sends one.
}

// TransportConfig holds settings related to sending events over the network.
type TransportConfig struct {
	Log              bool   `yaml:"log"`                // Log every event.
	WebSocketEnabled bool   `yaml:"websocket_enabled"`  // Serve events as JSON on /ws.
	WebSocketAddr    string `yaml:"websocket_addr"`     // Listen address, e.g. ":8080".
	UDPEnabled       bool   `yaml:"udp_enabled"`        // Send batches as binary datagrams.
	UDPTargetAddress string `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
	UDPMaxPacket     int    `yaml:"udp_max_packet"`     // Upper bound of one datagram in bytes.
}

// RecordingConfig holds the file sinks.
type RecordingConfig struct {
	SQLiteEnabled bool    `yaml:"sqlite_enabled"` // Record the session to SQLite.
	SQLitePath    string  `yaml:"sqlite_path"`
	WAVEnabled    bool    `yaml:"wav_enabled"` // Render one channel as audio.
	WAVPath       string  `yaml:"wav_path"`
	WAVChannel    int     `yaml:"wav_channel"`
	WAVSampleRate int     `yaml:"wav_sample_rate"`
	WAVBitDepth   int     `yaml:"wav_bit_depth"`  // 16 or 24.
	WAVFullScale  float64 `yaml:"wav_full_scale"` // Sample magnitude mapped to full scale.
	WAVGate       float64 `yaml:"wav_gate"`       // Noise gate, fraction of full scale. 0 = open.
}

// ConfigurationError reports an invalid setting. Field uses the YAML path.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Serial: SerialConfig{
			BaudRate:    115200,
			DataBits:    8,
			Parity:      "none",
			StopBits:    "1",
			ReadTimeout: 200 * time.Millisecond,
		},
		Stream: StreamConfig{
			EmitInterval: 33 * time.Millisecond, // Default ~30Hz.
			StartMarker:  "%START",
			EventBuffer:  256,
			MaxTokenLen:  4096,
			MaxChannels:  256,
		},
		Spectrum: SpectrumConfig{
			Enabled:       false,
			SourceChannel: 0,
			FFTSize:       1024,
			Mode:          ModeAmplitude,
			Window:        "rectangular",
			Fill:          FillWait,
			DefaultStep:   1.0,
		},
		Transport: TransportConfig{
			Log:              true,
			WebSocketAddr:    ":8080",
			UDPTargetAddress: "127.0.0.1:9090",
			UDPMaxPacket:     1400,
		},
		Recording: RecordingConfig{
			SQLitePath:    "signalmon.db",
			WAVPath:       "channel.wav",
			WAVSampleRate: 8000,
			WAVBitDepth:   16,
			WAVFullScale:  1.0,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("signalmon.yaml", "config.yaml"). If no file is found,
// it uses built-in defaults. After loading defaults or from file, it applies environment
// variable overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{"signalmon.yaml", "config.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every section and joins the problems found. Each one is a
// *ConfigurationError.
func (c *Config) Validate() error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		fail("log_level", "unknown level %q", c.LogLevel)
	}

	// Serial
	if c.Serial.BaudRate <= 0 {
		fail("serial.baud_rate", "must be positive, got %d", c.Serial.BaudRate)
	}
	if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
		fail("serial.data_bits", "must be between 5 and 8, got %d", c.Serial.DataBits)
	}
	switch strings.ToLower(c.Serial.Parity) {
	case "none", "odd", "even", "mark", "space":
	default:
		fail("serial.parity", "unknown parity %q", c.Serial.Parity)
	}
	switch c.Serial.StopBits {
	case "1", "1.5", "2":
	default:
		fail("serial.stop_bits", "must be 1, 1.5 or 2, got %q", c.Serial.StopBits)
	}
	if c.Serial.ReadTimeout <= 0 {
		fail("serial.read_timeout", "must be positive")
	}

	// Stream
	if c.Stream.EmitInterval <= 0 {
		fail("stream.emit_interval", "must be positive")
	}
	if c.Stream.EventBuffer <= 0 {
		fail("stream.event_buffer", "must be positive, got %d", c.Stream.EventBuffer)
	}
	if c.Stream.MaxTokenLen < 64 {
		fail("stream.max_token_len", "must be at least 64, got %d", c.Stream.MaxTokenLen)
	}
	if c.Stream.MaxChannels < 1 || c.Stream.MaxChannels > 65536 {
		fail("stream.max_channels", "must be between 1 and 65536, got %d", c.Stream.MaxChannels)
	}

	// Spectrum
	if !bitint.IsPowerOfTwo(c.Spectrum.FFTSize) || c.Spectrum.FFTSize < 2 {
		fail("spectrum.fft_size", "must be a power of two >= 2, got %d", c.Spectrum.FFTSize)
	}
	if c.Spectrum.Mode != ModeAmplitude && c.Spectrum.Mode != ModePhase {
		fail("spectrum.mode", "must be %s or %s, got %q", ModeAmplitude, ModePhase, c.Spectrum.Mode)
	}
	if c.Spectrum.Fill != FillWait && c.Spectrum.Fill != FillPad {
		fail("spectrum.fill", "must be %s or %s, got %q", FillWait, FillPad, c.Spectrum.Fill)
	}
	if c.Spectrum.SourceChannel < 0 {
		fail("spectrum.source_channel", "must not be negative")
	}
	if c.Spectrum.DefaultStep <= 0 {
		fail("spectrum.default_step", "must be positive")
	}

	// Transport
	if c.Transport.WebSocketEnabled && c.Transport.WebSocketAddr == "" {
		fail("transport.websocket_addr", "must be set when the websocket sink is enabled")
	}
	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			fail("transport.udp_target_address", "%q appears invalid (missing port?)", c.Transport.UDPTargetAddress)
		}
		if c.Transport.UDPMaxPacket < 64 {
			fail("transport.udp_max_packet", "must be at least 64 bytes, got %d", c.Transport.UDPMaxPacket)
		}
	}

	// Recording
	if c.Recording.SQLiteEnabled && c.Recording.SQLitePath == "" {
		fail("recording.sqlite_path", "must be set when sqlite recording is enabled")
	}
	if c.Recording.WAVEnabled {
		if c.Recording.WAVPath == "" {
			fail("recording.wav_path", "must be set when wav recording is enabled")
		}
		if c.Recording.WAVSampleRate <= 0 {
			fail("recording.wav_sample_rate", "must be positive")
		}
		if c.Recording.WAVBitDepth != 16 && c.Recording.WAVBitDepth != 24 {
			fail("recording.wav_bit_depth", "must be 16 or 24, got %d", c.Recording.WAVBitDepth)
		}
		if c.Recording.WAVFullScale <= 0 {
			fail("recording.wav_full_scale", "must be positive")
		}
		if c.Recording.WAVChannel < 0 {
			fail("recording.wav_channel", "must not be negative")
		}
		if c.Recording.WAVGate < 0 || c.Recording.WAVGate > 1 {
			fail("recording.wav_gate", "must be within 0.0-1.0, got %g", c.Recording.WAVGate)
		}
	}

	return errors.Join(errs...)
}

// Level returns the effective log level.
func (c *Config) Level() log.LogLevel {
	if c.Debug {
		return log.LevelDebug
	}
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// applyEnvOverrides lets ENV_* variables override file values. Unparsable
// values are ignored with a warning.
func (c *Config) applyEnvOverrides() {
	str := func(name string, dst *string) {
		if val, ok := os.LookupEnv(name); ok {
			*dst = val
			log.Infof("configuration: overriding from %s: %s", name, val)
		}
	}
	boolean := func(name string, dst *bool) {
		if val, ok := os.LookupEnv(name); ok {
			b, err := strconv.ParseBool(val)
			if err != nil {
				log.Warnf("configuration: ignoring %s=%q: %v", name, val, err)
				return
			}
			*dst = b
			log.Infof("configuration: overriding from %s: %v", name, b)
		}
	}
	integer := func(name string, dst *int) {
		if val, ok := os.LookupEnv(name); ok {
			n, err := strconv.Atoi(val)
			if err != nil {
				log.Warnf("configuration: ignoring %s=%q: %v", name, val, err)
				return
			}
			*dst = n
			log.Infof("configuration: overriding from %s: %d", name, n)
		}
	}

	// ENV_{...}
	// These are general overrides.
	boolean("ENV_DEBUG", &c.Debug)
	str("ENV_LOG_LEVEL", &c.LogLevel)

	// ENV_SERIAL_{...}
	str("ENV_SERIAL_PORT", &c.Serial.Port)
	integer("ENV_SERIAL_BAUD_RATE", &c.Serial.BaudRate)

	// ENV_SPECTRUM_{...}
	boolean("ENV_SPECTRUM_ENABLED", &c.Spectrum.Enabled)
	integer("ENV_SPECTRUM_FFT_SIZE", &c.Spectrum.FFTSize)
	str("ENV_SPECTRUM_MODE", &c.Spectrum.Mode)

	// ENV_WS_{...} and ENV_UDP_{...}
	// These are specific to the transport layer.
	boolean("ENV_WS_ENABLED", &c.Transport.WebSocketEnabled)
	str("ENV_WS_ADDR", &c.Transport.WebSocketAddr)
	boolean("ENV_UDP_ENABLED", &c.Transport.UDPEnabled)
	str("ENV_UDP_TARGET_ADDRESS", &c.Transport.UDPTargetAddress)
}
