package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for moonolog.
type Config struct {
	Speech  SpeechConfig
	Audio   AudioConfig
	Session SessionConfig
	Storage StorageConfig
}

// SpeechConfig controls the streaming recognition provider.
type SpeechConfig struct {
	APIKey     string
	APIBaseURL string
	Model      string
	Language   string
}

// AudioConfig controls microphone capture.
type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

// SessionConfig controls capture-session plumbing.
type SessionConfig struct {
	ChunkSize      int
	StreamingGrace time.Duration
}

// StorageConfig locates the durable state database.
type StorageConfig struct {
	Path string
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	statePath := strings.TrimSpace(os.Getenv("MOONOLOG_STATE_DB"))
	if statePath == "" {
		dataDir, err := resolveDataDir()
		if err != nil {
			return Config{}, err
		}
		statePath = filepath.Join(dataDir, "moonolog", "moonolog.db")
	}

	cfg := Config{
		Speech: SpeechConfig{
			APIKey:     strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL: envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:      envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:   envOrDefault("MOONOLOG_LANGUAGE", "en-US"),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("MOONOLOG_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("MOONOLOG_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     envOrDefault("MOONOLOG_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      envOrDefaultInt("MOONOLOG_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("MOONOLOG_CHANNELS", 1),
		},
		Session: SessionConfig{
			ChunkSize:      envOrDefaultInt("MOONOLOG_AUDIO_CHUNK_SIZE", 4096),
			StreamingGrace: time.Duration(envOrDefaultInt("MOONOLOG_STREAMING_GRACE_MS", 1000)) * time.Millisecond,
		},
		Storage: StorageConfig{Path: statePath},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.StreamingGrace < 0 {
		cfg.Session.StreamingGrace = 0
	}

	return cfg, nil
}

// resolveDataDir selects XDG_DATA_HOME when available, otherwise
// ~/.local/share.
func resolveDataDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine home directory")
	}
	return filepath.Join(home, ".local", "share"), nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
