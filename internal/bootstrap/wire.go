// Package bootstrap assembles the application graph: configuration, durable
// storage, the state store, the topic catalog, and both capture coordinators
// behind the orchestrator.
package bootstrap

import (
	"fmt"
	"log/slog"

	"moonolog/internal/audio"
	"moonolog/internal/config"
	"moonolog/internal/logging"
	"moonolog/internal/ports"
	"moonolog/internal/providers/deepgram"
	"moonolog/internal/record"
	"moonolog/internal/speech"
	"moonolog/internal/storage"
	"moonolog/internal/store"
	"moonolog/internal/topics"
	"moonolog/internal/usecase"
)

// App is the wired application graph.
type App struct {
	Config       config.Config
	Logger       *slog.Logger
	Storage      ports.StateStorage
	Store        *store.Store
	Topics       *topics.Catalog
	Speech       *speech.Coordinator
	Record       *record.Coordinator
	Orchestrator *usecase.Orchestrator
}

// Build wires the graph. A durable storage backend that cannot be opened is
// replaced with the unavailable one: the app still starts, with empty
// defaults and discarded writes.
func Build(cfg config.Config, logger *slog.Logger, events ports.EventSink) (*App, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	var stateStorage ports.StateStorage
	sqliteStorage, err := storage.OpenSQLite(cfg.Storage.Path)
	if err != nil {
		logger.Warn("durable storage unavailable, state will not persist",
			"path", cfg.Storage.Path, "error", err)
		stateStorage = storage.Unavailable{}
	} else {
		stateStorage = sqliteStorage
	}

	catalog, err := topics.Load()
	if err != nil {
		_ = stateStorage.Close()
		return nil, fmt.Errorf("load topic catalog: %w", err)
	}

	appStore := store.New(stateStorage, logger)

	capture := audio.NewCapture(cfg.Audio.RecorderCommand)
	provider := deepgram.NewProvider(deepgram.Config{
		APIKey:     cfg.Speech.APIKey,
		APIBaseURL: cfg.Speech.APIBaseURL,
		Model:      cfg.Speech.Model,
		Language:   cfg.Speech.Language,
	})

	speechCoordinator := speech.NewCoordinator(provider, capture, appStore, events, logger, speech.Config{
		Audio: ports.AudioConfig{
			SampleRate:   cfg.Audio.SampleRate,
			Channels:     cfg.Audio.Channels,
			InputFormat:  cfg.Audio.InputFormat,
			InputDevice:  cfg.Audio.InputDevice,
			OutputFormat: "s16le",
		},
		Streaming: ports.StreamingConfig{
			SampleRate:     cfg.Audio.SampleRate,
			Channels:       cfg.Audio.Channels,
			Encoding:       "linear16",
			Language:       cfg.Speech.Language,
			InterimResults: true,
		},
		ChunkSize:      cfg.Session.ChunkSize,
		StreamingGrace: cfg.Session.StreamingGrace,
	})

	recordCoordinator := record.NewCoordinator(capture, events, logger, record.Config{
		Audio: ports.AudioConfig{
			SampleRate:   cfg.Audio.SampleRate,
			Channels:     cfg.Audio.Channels,
			InputFormat:  cfg.Audio.InputFormat,
			InputDevice:  cfg.Audio.InputDevice,
			OutputFormat: "webm",
		},
		MimeType:  "audio/webm",
		ChunkSize: cfg.Session.ChunkSize,
	})

	orchestrator := usecase.NewOrchestrator(speechCoordinator, recordCoordinator, appStore, events, logger)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Storage:      stateStorage,
		Store:        appStore,
		Topics:       catalog,
		Speech:       speechCoordinator,
		Record:       recordCoordinator,
		Orchestrator: orchestrator,
	}, nil
}

// Close releases long-lived resources.
func (a *App) Close() error {
	return a.Storage.Close()
}
