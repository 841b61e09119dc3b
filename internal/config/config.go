// Package config provides the configuration structure for the narrator.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"

	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/media"
	"github.com/book-expert/narrator/internal/scratch"
	"github.com/book-expert/narrator/internal/tts"
	"github.com/book-expert/narrator/internal/tts/ssml"
	"github.com/book-expert/narrator/internal/tts/text"
)

// Synthesis backends.
const (
	BackendGoogle = "google"
	BackendHTTP   = "http"
)

// Defaults applied to empty settings.
const (
	DefaultBudget               = 4500
	DefaultRequestsPerMinute    = 300
	DefaultCallTimeoutSeconds   = 60
	DefaultConcatTimeoutSeconds = 300
	DefaultHTTPTimeoutSeconds   = 120
	DefaultFFmpegCommand        = "ffmpeg -hide_banner -loglevel error -y"
	DefaultFFprobeCommand       = "ffprobe -v error"
	DefaultConversionSubject    = "narrator.convert"
	DefaultAudioBucket          = "NARRATOR_AUDIO"
	DefaultTextBucket           = "NARRATOR_TEXT"
	DefaultQueueGroup           = "narrator-workers"
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir" env:"NARRATOR_PATHS_BASE_LOGS_DIR"`
	ScratchDir  string `toml:"scratch_dir"   env:"NARRATOR_PATHS_SCRATCH_DIR"`
	HandoffDir  string `toml:"handoff_dir"   env:"NARRATOR_PATHS_HANDOFF_DIR"`
}

// ChunkingConfig controls how story text is split.
type ChunkingConfig struct {
	Budget    int    `toml:"budget"    env:"NARRATOR_CHUNKING_BUDGET"`
	Unit      string `toml:"unit"      env:"NARRATOR_CHUNKING_UNIT"`
	Strategy  string `toml:"strategy"  env:"NARRATOR_CHUNKING_STRATEGY"`
	Normalize bool   `toml:"normalize" env:"NARRATOR_CHUNKING_NORMALIZE"`
}

// SynthesisConfig selects the speech backend and the default voice.
type SynthesisConfig struct {
	Backend            string  `toml:"backend"              env:"NARRATOR_SYNTHESIS_BACKEND"`
	Prosody            string  `toml:"prosody"              env:"NARRATOR_SYNTHESIS_PROSODY"`
	Encoding           string  `toml:"encoding"             env:"NARRATOR_SYNTHESIS_ENCODING"`
	RequestsPerMinute  int     `toml:"requests_per_minute"  env:"NARRATOR_SYNTHESIS_REQUESTS_PER_MINUTE"`
	CallTimeoutSeconds int     `toml:"call_timeout_seconds" env:"NARRATOR_SYNTHESIS_CALL_TIMEOUT_SECONDS"`
	EscapeText         bool    `toml:"escape_text"          env:"NARRATOR_SYNTHESIS_ESCAPE_TEXT"`
	CacheTTLMinutes    int     `toml:"cache_ttl_minutes"    env:"NARRATOR_SYNTHESIS_CACHE_TTL_MINUTES"`
	Voice              string  `toml:"voice"                env:"NARRATOR_SYNTHESIS_VOICE"`
	LanguageCode       string  `toml:"language_code"        env:"NARRATOR_SYNTHESIS_LANGUAGE_CODE"`
	Gender             string  `toml:"gender"               env:"NARRATOR_SYNTHESIS_GENDER"`
	SpeakingRate       float64 `toml:"speaking_rate"        env:"NARRATOR_SYNTHESIS_SPEAKING_RATE"`
	Pitch              float64 `toml:"pitch"                env:"NARRATOR_SYNTHESIS_PITCH"`
}

// GoogleConfig holds Google Cloud settings shared by speech and translation.
type GoogleConfig struct {
	CredentialsFile string `toml:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
	ProjectID       string `toml:"project_id"       env:"NARRATOR_GOOGLE_PROJECT_ID"`
}

// HTTPTTSConfig configures the self-hosted speech service backend.
type HTTPTTSConfig struct {
	URL            string `toml:"url"             env:"NARRATOR_HTTP_TTS_URL"`
	TimeoutSeconds int    `toml:"timeout_seconds" env:"NARRATOR_HTTP_TTS_TIMEOUT_SECONDS"`
}

// MediaConfig configures ffmpeg and ffprobe.
type MediaConfig struct {
	FFmpegCommand        string        `toml:"ffmpeg_command"         env:"NARRATOR_MEDIA_FFMPEG_COMMAND"`
	FFprobeCommand       string        `toml:"ffprobe_command"        env:"NARRATOR_MEDIA_FFPROBE_COMMAND"`
	ConcatTimeoutSeconds int           `toml:"concat_timeout_seconds" env:"NARRATOR_MEDIA_CONCAT_TIMEOUT_SECONDS"`
	Effects              media.Effects `toml:"effects"`
}

// TranslateConfig configures Cloud Translation.
type TranslateConfig struct {
	Location string `toml:"location" env:"NARRATOR_TRANSLATE_LOCATION"`
	Model    string `toml:"model"    env:"NARRATOR_TRANSLATE_MODEL"`
}

// HistoryConfig configures the run journal.
type HistoryConfig struct {
	Enabled  bool   `toml:"enabled"   env:"NARRATOR_HISTORY_ENABLED"`
	Path     string `toml:"path"      env:"NARRATOR_HISTORY_PATH"`
	KeepRuns int    `toml:"keep_runs" env:"NARRATOR_HISTORY_KEEP_RUNS"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"                       env:"NARRATOR_NATS_URL"`
	ConversionSubject      string `toml:"conversion_subject"        env:"NARRATOR_NATS_CONVERSION_SUBJECT"`
	QueueGroup             string `toml:"queue_group"               env:"NARRATOR_NATS_QUEUE_GROUP"`
	TextObjectStoreBucket  string `toml:"text_object_store_bucket"  env:"NARRATOR_NATS_TEXT_BUCKET"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket" env:"NARRATOR_NATS_AUDIO_BUCKET"`
}

// Config is the root configuration structure.
type Config struct {
	Paths     PathsConfig     `toml:"paths"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Synthesis SynthesisConfig `toml:"synthesis"`
	Google    GoogleConfig    `toml:"google"`
	HTTPTTS   HTTPTTSConfig   `toml:"http_tts"`
	Media     MediaConfig     `toml:"media"`
	Translate TranslateConfig `toml:"translate"`
	History   HistoryConfig   `toml:"history"`
	NATS      NATSConfig      `toml:"nats"`
}

// Load loads project.toml through the configurator, then applies defaults,
// NARRATOR_* environment overrides and validation.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile reads an explicit TOML file instead of searching for
// project.toml.
func LoadFile(path string) (*Config, error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read configuration %s: %w", path, readErr)
	}

	return Decode(data)
}

// Decode parses TOML data and finishes it like Load.
func Decode(data []byte) (*Config, error) {
	var cfg Config

	decodeErr := toml.Unmarshal(data, &cfg)
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, decodeErr)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	envErr := cfg.ApplyEnv()
	if envErr != nil {
		return nil, envErr
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() error {
	parseErr := env.Parse(c)
	if parseErr != nil {
		return fmt.Errorf("%w: environment: %w", ErrInvalidConfig, parseErr)
	}

	return nil
}

// ApplyDefaults fills every empty setting that has a default.
func (c *Config) ApplyDefaults() {
	setDefault(&c.Paths.BaseLogsDir, filepath.Join(os.TempDir(), "narrator", "logs"))
	setDefault(&c.Paths.ScratchDir, scratch.DefaultDir())

	if c.Chunking.Budget == 0 {
		c.Chunking.Budget = DefaultBudget
	}

	setDefault(&c.Chunking.Unit, text.Bytes.String())
	setDefault(&c.Chunking.Strategy, text.Words.String())

	setDefault(&c.Synthesis.Backend, BackendGoogle)
	setDefault(&c.Synthesis.Prosody, string(tts.ProsodyMarkup))
	setDefault(&c.Synthesis.Encoding, string(core.EncodingMP3))

	if c.Synthesis.RequestsPerMinute == 0 {
		c.Synthesis.RequestsPerMinute = DefaultRequestsPerMinute
	}

	if c.Synthesis.CallTimeoutSeconds == 0 {
		c.Synthesis.CallTimeoutSeconds = DefaultCallTimeoutSeconds
	}

	if c.Synthesis.SpeakingRate == 0 {
		c.Synthesis.SpeakingRate = 1.0
	}

	if c.HTTPTTS.TimeoutSeconds == 0 {
		c.HTTPTTS.TimeoutSeconds = DefaultHTTPTimeoutSeconds
	}

	setDefault(&c.Media.FFmpegCommand, DefaultFFmpegCommand)
	setDefault(&c.Media.FFprobeCommand, DefaultFFprobeCommand)

	if c.Media.ConcatTimeoutSeconds == 0 {
		c.Media.ConcatTimeoutSeconds = DefaultConcatTimeoutSeconds
	}

	setDefault(&c.Translate.Location, "us-central1")
	setDefault(&c.Translate.Model, "general/nmt")
	setDefault(&c.History.Path, filepath.Join(c.Paths.ScratchDir, "history.db"))

	setDefault(&c.NATS.ConversionSubject, DefaultConversionSubject)
	setDefault(&c.NATS.QueueGroup, DefaultQueueGroup)
	setDefault(&c.NATS.TextObjectStoreBucket, DefaultTextBucket)
	setDefault(&c.NATS.AudioObjectStoreBucket, DefaultAudioBucket)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Chunking.Budget <= 0 {
		return fmt.Errorf("%w: chunking.budget must be positive, got %d", ErrInvalidConfig, c.Chunking.Budget)
	}

	_, chunkErr := c.ChunkingOptions()
	if chunkErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, chunkErr)
	}

	_, sequencerErr := c.SequencerConfig()
	if sequencerErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, sequencerErr)
	}

	_, encodingErr := core.ParseEncoding(c.Synthesis.Encoding)
	if encodingErr != nil {
		return fmt.Errorf("%w: synthesis.encoding: %w", ErrInvalidConfig, encodingErr)
	}

	switch c.Synthesis.Backend {
	case BackendGoogle:
	case BackendHTTP:
		if c.HTTPTTS.URL == "" {
			return fmt.Errorf("%w: http_tts.url is required for the http backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown synthesis.backend %q", ErrInvalidConfig, c.Synthesis.Backend)
	}

	if c.Synthesis.RequestsPerMinute < 0 || c.Synthesis.CallTimeoutSeconds < 0 ||
		c.Synthesis.CacheTTLMinutes < 0 || c.Media.ConcatTimeoutSeconds < 0 || c.HTTPTTS.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: limits and timeouts must not be negative", ErrInvalidConfig)
	}

	if c.Synthesis.SpeakingRate < core.MinSpeakingRate || c.Synthesis.SpeakingRate > core.MaxSpeakingRate {
		return fmt.Errorf("%w: synthesis.speaking_rate %.2f out of range", ErrInvalidConfig, c.Synthesis.SpeakingRate)
	}

	if c.Synthesis.Pitch < core.MinPitch || c.Synthesis.Pitch > core.MaxPitch {
		return fmt.Errorf("%w: synthesis.pitch %.1f out of range", ErrInvalidConfig, c.Synthesis.Pitch)
	}

	_, ffmpegErr := media.ParseCommand(c.Media.FFmpegCommand)
	if ffmpegErr != nil {
		return fmt.Errorf("%w: media.ffmpeg_command: %w", ErrInvalidConfig, ffmpegErr)
	}

	_, ffprobeErr := media.ParseCommand(c.Media.FFprobeCommand)
	if ffprobeErr != nil {
		return fmt.Errorf("%w: media.ffprobe_command: %w", ErrInvalidConfig, ffprobeErr)
	}

	effectsErr := c.Media.Effects.Validate()
	if effectsErr != nil {
		return fmt.Errorf("%w: media.effects: %w", ErrInvalidConfig, effectsErr)
	}

	return nil
}

// ChunkingOptions converts the chunking section. With synthesis.escape_text
// fragments are measured after escaping. The budget still excludes the
// <speak> and <prosody> wrapper, so it must stay below the request limit of
// the backend (5000 bytes for Cloud Text-to-Speech).
func (c *Config) ChunkingOptions() (text.Options, error) {
	unit, unitErr := text.ParseUnit(c.Chunking.Unit)
	if unitErr != nil {
		return text.Options{}, unitErr
	}

	strategy, strategyErr := text.ParseStrategy(c.Chunking.Strategy)
	if strategyErr != nil {
		return text.Options{}, strategyErr
	}

	opts := text.Options{Budget: c.Chunking.Budget, Unit: unit, Strategy: strategy}
	if c.Synthesis.EscapeText {
		opts.Expand = ssml.Escape
	}

	return opts, nil
}

// SequencerConfig converts the synthesis section.
func (c *Config) SequencerConfig() (tts.SequencerConfig, error) {
	prosody, prosodyErr := tts.ParseProsodyTarget(c.Synthesis.Prosody)
	if prosodyErr != nil {
		return tts.SequencerConfig{}, prosodyErr
	}

	return tts.SequencerConfig{
		Prosody:           prosody,
		RequestsPerMinute: c.Synthesis.RequestsPerMinute,
		CallTimeout:       time.Duration(c.Synthesis.CallTimeoutSeconds) * time.Second,
		EscapeText:        c.Synthesis.EscapeText,
	}, nil
}

// ConcatTimeout returns the merge deadline.
func (c *Config) ConcatTimeout() time.Duration {
	return time.Duration(c.Media.ConcatTimeoutSeconds) * time.Second
}

// HTTPTimeout returns the per-request timeout of the HTTP backend.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTTS.TimeoutSeconds) * time.Second
}

// CacheTTL returns how long synthesis results are cached; zero disables
// the cache.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Synthesis.CacheTTLMinutes) * time.Minute
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
