// ABOUTME: TOML configuration for the recorder
// ABOUTME: Defaults, file loading and validation

// Package config loads, defaults and validates the recorder's TOML
// configuration file. Each section maps to a typed struct; command-line
// flags are applied on top of the loaded values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Capture   CaptureConfig   `toml:"capture"   json:"capture"`
	Transcode TranscodeConfig `toml:"transcode" json:"transcode"`
	Playback  PlaybackConfig  `toml:"playback"  json:"playback"`
	Server    ServerConfig    `toml:"server"    json:"server"`
	Logging   LoggingConfig   `toml:"logging"   json:"logging"`
	Archive   ArchiveConfig   `toml:"archive"   json:"archive"`
}

type CaptureConfig struct {
	Dir       string `toml:"dir"        json:"dir"`
	Prefix    string `toml:"prefix"     json:"prefix"`
	BatchSize int    `toml:"batch_size" json:"batch_size"`
}

type TranscodeConfig struct {
	Codec     string  `toml:"codec"      json:"codec"`
	Bitrate   int     `toml:"bitrate"    json:"bitrate"`
	Quality   float64 `toml:"quality"    json:"quality"`
	Workers   int     `toml:"workers"    json:"workers"`
	QueueSize int     `toml:"queue_size" json:"queue_size"`
	FFmpeg    string  `toml:"ffmpeg"     json:"ffmpeg"`

	// AutoTranscode queues a transcode whenever a capture stops
	AutoTranscode bool `toml:"auto_transcode" json:"auto_transcode"`
}

type PlaybackConfig struct {
	Source   string  `toml:"source"   json:"source"`
	Output   string  `toml:"output"   json:"output"`
	Volume   int     `toml:"volume"   json:"volume"`
	Loop     bool    `toml:"loop"     json:"loop"`
	Realtime bool    `toml:"realtime" json:"realtime"`
	ChunkMs  int     `toml:"chunk_ms" json:"chunk_ms"`
	ToneHz   float64 `toml:"tone_hz"  json:"tone_hz"`
}

type ServerConfig struct {
	Addr string `toml:"addr" json:"addr"`
	Name string `toml:"name" json:"name"`
	MDNS bool   `toml:"mdns" json:"mdns"`
}

type LoggingConfig struct {
	Level  string `toml:"level"  json:"level"`
	Format string `toml:"format" json:"format"`
	File   string `toml:"file"   json:"file"`
}

type ArchiveConfig struct {
	Enabled         bool   `toml:"enabled"           json:"enabled"`
	Bucket          string `toml:"bucket"            json:"bucket"`
	Prefix          string `toml:"prefix"            json:"prefix"`
	Region          string `toml:"region"            json:"region"`
	Endpoint        string `toml:"endpoint"          json:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"     json:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key" json:"-"`
	UsePathStyle    bool   `toml:"use_path_style"    json:"use_path_style"`
	Captures        bool   `toml:"captures"          json:"captures"`
}

// Default returns a Config populated with the built-in defaults. Values here
// are used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Capture: CaptureConfig{
			Dir:       "recordings",
			Prefix:    "capture",
			BatchSize: 4096,
		},
		Transcode: TranscodeConfig{
			Codec:     "opus",
			Bitrate:   64000,
			Quality:   0.4,
			Workers:   2,
			QueueSize: 16,
			FFmpeg:    "ffmpeg",
		},
		Playback: PlaybackConfig{
			Output:   "oto",
			Volume:   100,
			Realtime: true,
			ChunkMs:  20,
			ToneHz:   440,
		},
		Server: ServerConfig{
			Addr: ":8927",
			Name: "Resonate Recorder",
			MDNS: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Archive: ArchiveConfig{
			Prefix: "recordings",
			Region: "us-east-1",
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults and
// validates the result. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Write stores cfg at path as TOML
func Write(path string, cfg Config) error {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, b, 0o600)
}

// Validate checks every constraint and reports the first violation
func (c Config) Validate() error {
	if c.Capture.Dir == "" {
		return errors.New("capture.dir must not be empty")
	}
	if c.Capture.BatchSize < 0 {
		return errors.New("capture.batch_size must be >= 0")
	}

	switch c.Transcode.Codec {
	case "opus", "vorbis", "wav":
	default:
		return fmt.Errorf("transcode.codec must be opus, vorbis or wav, got %q", c.Transcode.Codec)
	}
	if c.Transcode.Bitrate < 0 {
		return errors.New("transcode.bitrate must be >= 0")
	}
	if c.Transcode.Quality <= 0 || c.Transcode.Quality > 1 {
		return errors.New("transcode.quality must be in (0, 1]")
	}
	if c.Transcode.Workers < 1 {
		return errors.New("transcode.workers must be >= 1")
	}
	if c.Transcode.QueueSize < 1 {
		return errors.New("transcode.queue_size must be >= 1")
	}

	switch c.Playback.Output {
	case "oto", "none":
	default:
		return fmt.Errorf("playback.output must be oto or none, got %q", c.Playback.Output)
	}
	if c.Playback.Volume < 0 || c.Playback.Volume > 100 {
		return errors.New("playback.volume must be between 0 and 100")
	}
	if c.Playback.ChunkMs < 1 || c.Playback.ChunkMs > 1000 {
		return errors.New("playback.chunk_ms must be between 1 and 1000")
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return errors.New("archive.bucket must be set when archive is enabled")
	}
	return nil
}
