package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("MOONOLOG_STATE_DB", "")
	t.Setenv("DEEPGRAM_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Speech.Language != "en-US" {
		t.Fatalf("unexpected language: %q", cfg.Speech.Language)
	}
	if cfg.Speech.Model != "nova-2" {
		t.Fatalf("unexpected model: %q", cfg.Speech.Model)
	}
	if cfg.Audio.RecorderCommand != "ffmpeg" || cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.Session.ChunkSize != 4096 || cfg.Session.StreamingGrace != time.Second {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}

	want := filepath.Join(home, ".local", "share", "moonolog", "moonolog.db")
	if cfg.Storage.Path != want {
		t.Fatalf("unexpected storage path: %q", cfg.Storage.Path)
	}
}

func TestLoadHonorsOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MOONOLOG_STATE_DB", "/tmp/custom.db")
	t.Setenv("MOONOLOG_LANGUAGE", "ja-JP")
	t.Setenv("MOONOLOG_SAMPLE_RATE", "44100")
	t.Setenv("MOONOLOG_AUDIO_CHUNK_SIZE", "8192")
	t.Setenv("DEEPGRAM_API_KEY", "  key-with-spaces  ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Storage.Path != "/tmp/custom.db" {
		t.Fatalf("unexpected storage path: %q", cfg.Storage.Path)
	}
	if cfg.Speech.Language != "ja-JP" {
		t.Fatalf("unexpected language: %q", cfg.Speech.Language)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Fatalf("unexpected sample rate: %d", cfg.Audio.SampleRate)
	}
	if cfg.Session.ChunkSize != 8192 {
		t.Fatalf("unexpected chunk size: %d", cfg.Session.ChunkSize)
	}
	if cfg.Speech.APIKey != "key-with-spaces" {
		t.Fatalf("api key not trimmed: %q", cfg.Speech.APIKey)
	}
}

func TestLoadClampsInvalidValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MOONOLOG_SAMPLE_RATE", "-1")
	t.Setenv("MOONOLOG_CHANNELS", "0")
	t.Setenv("MOONOLOG_AUDIO_CHUNK_SIZE", "12")
	t.Setenv("MOONOLOG_STREAMING_GRACE_MS", "-200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Fatalf("invalid audio values not clamped: %+v", cfg.Audio)
	}
	if cfg.Session.ChunkSize != 4096 {
		t.Fatalf("tiny chunk size not clamped: %d", cfg.Session.ChunkSize)
	}
	if cfg.Session.StreamingGrace != 0 {
		t.Fatalf("negative grace not clamped: %v", cfg.Session.StreamingGrace)
	}
}

func TestResolveDataDirPrefersXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	t.Setenv("MOONOLOG_STATE_DB", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !strings.HasPrefix(cfg.Storage.Path, "/custom/data") {
		t.Fatalf("expected XDG data dir, got %q", cfg.Storage.Path)
	}
}
