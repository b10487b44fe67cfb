package main

import (
	"context"
	"errors"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"moonolog/internal/bootstrap"
	"moonolog/internal/config"
	"moonolog/internal/domain"
	"moonolog/internal/logging"
)

const (
	eventCapture   = "moonolog:capture"
	eventInterim   = "moonolog:interim"
	eventProgress  = "moonolog:progress"
	eventRecording = "moonolog:recording"
	eventStreak    = "moonolog:streak"
	eventTopic     = "moonolog:topic"
	eventError     = "moonolog:error"
)

// App is the Wails application root. It implements ports.EventSink so the
// backend can push state changes to the frontend.
type App struct {
	ctx context.Context

	services *bootstrap.App
	logs     logging.Runtime
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	logs, err := logging.New()
	if err != nil {
		logs = logging.Runtime{Logger: logging.Discard()}
	}
	a.logs = logs

	cfg, err := config.Load()
	if err != nil {
		a.bootErr = err
		a.CaptureError(domain.ErrorCodeStartup, err.Error())
		return
	}

	services, err := bootstrap.Build(cfg, logs.Logger, a)
	if err != nil {
		a.bootErr = err
		a.CaptureError(domain.ErrorCodeStartup, err.Error())
		return
	}
	a.services = services

	services.Store.Hydrate(ctx)
	services.Store.SetCurrentTopic(services.Topics.Today(time.Now()))

	a.StreakChanged(services.Store.StreakSummary())
	a.emitTopic()
	logs.Logger.Info("application started", "log_path", logs.Path)
}

func (a *App) shutdown(_ context.Context) {
	if a.services != nil {
		a.services.Orchestrator.StopCapture(context.Background())
		if err := a.services.Close(); err != nil {
			a.logs.Logger.Warn("shutdown close failed", "error", err)
		}
	}
	_ = a.logs.Close()
}

// ToggleCapture flips both capture modalities together from the mic button.
func (a *App) ToggleCapture() (domain.CaptureStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.CaptureStatus{}, err
	}
	return a.services.Orchestrator.ToggleCapture(a.ctx)
}

// GetCaptureStatus returns the combined capture status.
func (a *App) GetCaptureStatus() domain.CaptureStatus {
	if a.services == nil {
		if a.bootErr != nil {
			return domain.CaptureStatus{Error: a.bootErr.Error()}
		}
		return domain.CaptureStatus{}
	}
	return a.services.Orchestrator.Status()
}

// GetStreak returns the current habit record.
func (a *App) GetStreak() domain.StreakSummary {
	if a.services == nil {
		return domain.StreakSummary{}
	}
	return a.services.Store.StreakSummary()
}

// ResetStreak clears the habit record, sessions included.
func (a *App) ResetStreak() (domain.StreakSummary, error) {
	if err := a.requireReady(); err != nil {
		return domain.StreakSummary{}, err
	}
	a.services.Store.ResetStreak()
	summary := a.services.Store.StreakSummary()
	a.StreakChanged(summary)
	return summary, nil
}

// GetRecordings returns the stored recording history, newest first.
func (a *App) GetRecordings() []domain.Recording {
	if a.services == nil {
		return nil
	}
	return a.services.Store.Recordings()
}

// RemoveRecording deletes one stored recording by id.
func (a *App) RemoveRecording(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Store.RemoveRecording(id)
	return nil
}

// ClearAllRecordings empties the recording history.
func (a *App) ClearAllRecordings() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Store.ClearAllRecordings()
	return nil
}

// GetCurrentTopic returns today's speaking prompt.
func (a *App) GetCurrentTopic() domain.Topic {
	if a.services == nil {
		return domain.Topic{}
	}
	topic, ok := a.services.Store.CurrentTopic()
	if !ok {
		return domain.Topic{}
	}
	return topic
}

// ShuffleTopic swaps the current prompt for a random one.
func (a *App) ShuffleTopic() (domain.Topic, error) {
	if err := a.requireReady(); err != nil {
		return domain.Topic{}, err
	}
	topic := a.services.Topics.Random()
	a.services.Store.SetCurrentTopic(topic)
	a.emitTopic()
	return topic, nil
}

// ToggleDebugMode flips the session-only debug flag.
func (a *App) ToggleDebugMode() (bool, error) {
	if err := a.requireReady(); err != nil {
		return false, err
	}
	return a.services.Store.ToggleDebugMode(), nil
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	return map[string]string{
		"provider":         "Deepgram",
		"model":            cfg.Speech.Model,
		"language":         cfg.Speech.Language,
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
		"statePath":        cfg.Storage.Path,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return errors.New("application is not initialized")
	}
	return nil
}

// CaptureStatusChanged emits combined capture lifecycle updates to the
// frontend.
func (a *App) CaptureStatusChanged(status domain.CaptureStatus, reason domain.CaptureReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventCapture, map[string]any{
		"status":  status,
		"reason":  string(reason),
		"message": captureReasonMessage(reason),
	})
}

// InterimTranscript emits live interim recognition text.
func (a *App) InterimTranscript(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventInterim, map[string]string{"text": text})
}

// RecordingProgress emits elapsed whole seconds while recording.
func (a *App) RecordingProgress(seconds int) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventProgress, map[string]int{"seconds": seconds})
}

// RecordingSaved emits a newly stored recording.
func (a *App) RecordingSaved(recording domain.Recording) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventRecording, recording)
}

// StreakChanged emits the updated habit record.
func (a *App) StreakChanged(summary domain.StreakSummary) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventStreak, summary)
}

// CaptureError emits backend errors to the UI.
func (a *App) CaptureError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) emitTopic() {
	if a.ctx == nil || a.services == nil {
		return
	}
	if topic, ok := a.services.Store.CurrentTopic(); ok {
		runtime.EventsEmit(a.ctx, eventTopic, topic)
	}
}

func captureReasonMessage(reason domain.CaptureReason) string {
	switch reason {
	case domain.CaptureReasonListeningStarted:
		return "Listening"
	case domain.CaptureReasonListeningEnded:
		return "Listening stopped"
	case domain.CaptureReasonRecordingStarted:
		return "Recording"
	case domain.CaptureReasonRecordingFinalized:
		return "Recording saved"
	case domain.CaptureReasonCaptureFailed:
		return "Could not start capture"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeSpeechUnsupported:
		return "Speech recognition is not available"
	case domain.ErrorCodeAudioUnsupported:
		return "Audio recording is not available"
	case domain.ErrorCodeMicDenied:
		return "Microphone access denied"
	case domain.ErrorCodeSpeechSession:
		return "Speech recognition issue"
	case domain.ErrorCodeAudioSession:
		return "Audio recording issue"
	case domain.ErrorCodePersistence:
		return "Saving state failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
