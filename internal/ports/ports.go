package ports

import (
	"context"
	"errors"
	"io"

	"moonolog/internal/domain"
)

// ErrMicDenied marks capture failures caused by a refused or busy microphone,
// as opposed to a missing capability. Capture implementations wrap it so
// coordinators can surface denial distinctly.
var ErrMicDenied = errors.New("microphone access denied")

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate   int
	Channels     int
	InputFormat  string
	InputDevice  string
	OutputFormat string // "s16le" for recognition PCM, "webm" for stored clips
}

// AudioSession is a live microphone capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Supported() bool
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic recognition settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	Language       string
	InterimResults bool
}

// SpeechSession is an active streaming-recognition session.
type SpeechSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// SpeechProvider starts streaming-recognition sessions.
type SpeechProvider interface {
	Supported() bool
	StartStreaming(ctx context.Context, cfg StreamingConfig) (SpeechSession, error)
}

// StateStorage is durable key-value storage for the app state snapshot.
// Implementations must never block startup: an unavailable backend loads
// nothing and discards writes.
type StateStorage interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
	Close() error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	CaptureStatusChanged(status domain.CaptureStatus, reason domain.CaptureReason)
	InterimTranscript(text string)
	RecordingProgress(seconds int)
	RecordingSaved(recording domain.Recording)
	StreakChanged(summary domain.StreakSummary)
	CaptureError(code domain.ErrorCode, detail string)
}
