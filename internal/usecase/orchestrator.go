// Package usecase ties the two capture modalities together. The mic toggle
// starts and stops speech recognition and audio recording as one gesture, and
// a finished recording session is committed to the store exactly once.
package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"moonolog/internal/domain"
	"moonolog/internal/ports"
	"moonolog/internal/record"
	"moonolog/internal/speech"
	"moonolog/internal/store"
)

// Orchestrator coordinates both capture coordinators behind a single toggle.
type Orchestrator struct {
	speech *speech.Coordinator
	record *record.Coordinator
	state  *store.Store
	events ports.EventSink
	logger *slog.Logger

	// toggleMu serializes toggles so a start and a stop cannot interleave.
	toggleMu sync.Mutex
}

func NewOrchestrator(
	speechCoordinator *speech.Coordinator,
	recordCoordinator *record.Coordinator,
	state *store.Store,
	events ports.EventSink,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	o := &Orchestrator{
		speech: speechCoordinator,
		record: recordCoordinator,
		state:  state,
		events: events,
		logger: logger,
	}
	o.speech.SetNotify(o.handleStatusChange)
	o.record.SetNotify(o.handleStatusChange)
	o.record.SetOnComplete(o.handleCompletedClip)
	return o
}

// Status summarizes both modalities for the UI.
func (o *Orchestrator) Status() domain.CaptureStatus {
	speechSupported := o.speech.Supported()
	audioSupported := o.record.Supported()
	listening := o.speech.Active()
	recording := o.record.Active()

	errDetail := o.speech.Err()
	if errDetail == "" {
		errDetail = o.record.Err()
	}

	return domain.CaptureStatus{
		Listening:       listening,
		Recording:       recording,
		SpeechSupported: speechSupported,
		AudioSupported:  audioSupported,
		AnySupported:    speechSupported || audioSupported,
		AnyActive:       listening || recording,
		Error:           errDetail,
	}
}

// ToggleCapture flips both modalities together: starts whatever is supported
// when idle, stops everything otherwise. The resulting combined status is
// returned.
func (o *Orchestrator) ToggleCapture(ctx context.Context) (domain.CaptureStatus, error) {
	o.toggleMu.Lock()
	defer o.toggleMu.Unlock()

	if o.Status().AnyActive {
		o.stopAll(ctx)
		return o.Status(), nil
	}
	err := o.startAll(ctx)
	return o.Status(), err
}

// StartCapture starts whatever modalities are supported. It fails only when
// nothing could be started at all.
func (o *Orchestrator) StartCapture(ctx context.Context) error {
	o.toggleMu.Lock()
	defer o.toggleMu.Unlock()
	return o.startAll(ctx)
}

// StopCapture stops both modalities and blocks until both sessions are torn
// down.
func (o *Orchestrator) StopCapture(ctx context.Context) {
	o.toggleMu.Lock()
	defer o.toggleMu.Unlock()
	o.stopAll(ctx)
}

func (o *Orchestrator) startAll(ctx context.Context) error {
	speechSupported := o.speech.Supported()
	audioSupported := o.record.Supported()

	if !speechSupported && !audioSupported {
		detail := "no capture modality is available on this system"
		o.logger.Warn("capture toggle ignored", "reason", detail)
		o.events.CaptureError(domain.ErrorCodeStartup, detail)
		o.events.CaptureStatusChanged(o.Status(), domain.CaptureReasonCaptureFailed)
		return errors.New(detail)
	}

	var speechErr, recordErr error
	if speechSupported {
		speechErr = o.speech.StartListening(ctx)
	}
	if audioSupported {
		recordErr = o.record.StartRecording(ctx)
	}

	// Each modality degrades independently; only a total failure aborts.
	started := (speechSupported && speechErr == nil) || (audioSupported && recordErr == nil)
	if !started {
		o.events.CaptureStatusChanged(o.Status(), domain.CaptureReasonCaptureFailed)
		if speechErr != nil {
			return speechErr
		}
		return recordErr
	}
	return nil
}

func (o *Orchestrator) stopAll(ctx context.Context) {
	o.speech.StopListening(ctx)
	o.record.StopRecording()
}

// handleStatusChange keeps the store's combined capture flag in step with the
// coordinators and rebroadcasts the full status to the UI.
func (o *Orchestrator) handleStatusChange(reason domain.CaptureReason) {
	status := o.Status()
	o.state.SetRecording(status.AnyActive)
	o.events.CaptureStatusChanged(status, reason)
}

// handleCompletedClip commits a finished recording session to the store. The
// coordinator fires it at most once per session, so a session adds at most
// one recording.
func (o *Orchestrator) handleCompletedClip(clip domain.RecordingClip) {
	if clip.Duration <= 0 {
		o.logger.Warn("sub-second recording discarded")
		return
	}
	rec := o.state.AddRecording(clip.AudioBase64, clip.Duration)
	o.events.RecordingSaved(rec)
	o.logger.Info("recording saved", "id", rec.ID, "duration_s", rec.Duration)
}
