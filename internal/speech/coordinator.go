// Package speech coordinates one streaming speech-recognition session at a
// time: microphone PCM is pumped into the provider, interim transcripts are
// forwarded to the UI, and finalized segments are accumulated. A session that
// ends with any finalized speech counts as a completed practice session.
package speech

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"moonolog/internal/domain"
	"moonolog/internal/ports"
	"moonolog/internal/store"
)

const streamFinishTimeout = 4 * time.Second

// Config carries the audio and streaming settings one recognition session
// runs with.
type Config struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	ChunkSize      int
	StreamingGrace time.Duration
}

// Coordinator owns the listening lifecycle. It is idle or listening, never
// both sessions at once; a start while listening and a stop while idle are
// no-ops.
type Coordinator struct {
	provider ports.SpeechProvider
	capture  ports.AudioCapture
	state    *store.Store
	events   ports.EventSink
	logger   *slog.Logger
	cfg      Config
	notify   func(reason domain.CaptureReason)

	mu         sync.Mutex
	current    *activeSession
	transcript string
	lastErr    string
}

type activeSession struct {
	cancel     context.CancelFunc
	audio      ports.AudioSession
	stream     ports.SpeechSession
	agg        *transcriptAggregator
	eventsDone chan struct{}
	audioDone  chan struct{}
	finishOnce sync.Once
}

func NewCoordinator(
	provider ports.SpeechProvider,
	capture ports.AudioCapture,
	state *store.Store,
	events ports.EventSink,
	logger *slog.Logger,
	cfg Config,
) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 4096
	}
	if cfg.StreamingGrace <= 0 {
		cfg.StreamingGrace = time.Second
	}
	return &Coordinator{
		provider: provider,
		capture:  capture,
		state:    state,
		events:   events,
		logger:   logger,
		cfg:      cfg,
		notify:   func(domain.CaptureReason) {},
	}
}

// SetNotify installs the status-change callback. The orchestrator uses it to
// rebuild and broadcast the combined capture status.
func (c *Coordinator) SetNotify(notify func(reason domain.CaptureReason)) {
	if notify == nil {
		notify = func(domain.CaptureReason) {}
	}
	c.mu.Lock()
	c.notify = notify
	c.mu.Unlock()
}

// Supported reports whether the speech modality can run at all: it needs both
// a configured provider and a working microphone.
func (c *Coordinator) Supported() bool {
	return c.provider != nil && c.capture != nil &&
		c.provider.Supported() && c.capture.Supported()
}

// State reports the coordinator lifecycle phase.
func (c *Coordinator) State() domain.SpeechState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return domain.SpeechStateListening
	}
	return domain.SpeechStateIdle
}

// Active reports whether a recognition session is running.
func (c *Coordinator) Active() bool {
	return c.State() == domain.SpeechStateListening
}

// Transcript returns the finalized transcript accumulated so far: the live
// session's while listening, the last completed session's otherwise.
func (c *Coordinator) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return c.current.agg.Final()
	}
	return c.transcript
}

// Err returns the most recent session error message, cleared on the next
// successful start.
func (c *Coordinator) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// StartListening opens a recognition session. Starting while already
// listening is a no-op so repeated toggles never stack sessions.
func (c *Coordinator) StartListening(ctx context.Context) error {
	if !c.Supported() {
		c.setErr("speech recognition is not available")
		c.events.CaptureError(domain.ErrorCodeSpeechUnsupported, "speech recognition is not available")
		return errors.New("speech recognition is not available")
	}

	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	sessionCtx, cancel := context.WithCancel(context.Background())

	stream, err := c.provider.StartStreaming(ctx, c.cfg.Streaming)
	if err != nil {
		cancel()
		c.setErr(err.Error())
		c.events.CaptureError(domain.ErrorCodeSpeechSession, err.Error())
		return err
	}

	audioSession, err := c.capture.Start(ctx, c.cfg.Audio)
	if err != nil {
		cancel()
		_ = stream.Close()
		code := domain.ErrorCodeSpeechSession
		if errors.Is(err, ports.ErrMicDenied) {
			code = domain.ErrorCodeMicDenied
		}
		c.setErr(err.Error())
		c.events.CaptureError(code, err.Error())
		return err
	}

	active := &activeSession{
		cancel:     cancel,
		audio:      audioSession,
		stream:     stream,
		agg:        newTranscriptAggregator(),
		eventsDone: make(chan struct{}),
		audioDone:  make(chan struct{}),
	}

	c.mu.Lock()
	if c.current != nil {
		// Lost the race to another start; release what we opened.
		c.mu.Unlock()
		cancel()
		_ = audioSession.Stop()
		_ = stream.Close()
		return nil
	}
	c.current = active
	c.transcript = ""
	c.lastErr = ""
	notify := c.notify
	c.mu.Unlock()

	c.state.SetListening(true)

	go c.consumeTranscriptEvents(active)
	go c.pumpAudio(sessionCtx, active)
	go func() {
		// The provider can end the session on its own (network drop, server
		// close). Finish then too, not only on an explicit stop.
		<-active.eventsDone
		c.finish(active)
	}()

	c.logger.Info("listening started")
	notify(domain.CaptureReasonListeningStarted)
	return nil
}

// StopListening ends the current session and blocks until it is fully torn
// down. Stopping while idle is a no-op.
func (c *Coordinator) StopListening(ctx context.Context) {
	c.mu.Lock()
	active := c.current
	c.mu.Unlock()
	if active == nil {
		return
	}

	if err := active.audio.Stop(); err != nil {
		c.logger.Warn("microphone stop reported error", "error", err)
	}

	// Let buffered audio drain into the provider before closing the send
	// side, so trailing words still get finalized.
	select {
	case <-time.After(c.cfg.StreamingGrace):
	case <-ctx.Done():
	}
	_ = active.stream.CloseSend()
	c.waitForStream(active.stream)

	c.finish(active)
}

func (c *Coordinator) consumeTranscriptEvents(active *activeSession) {
	defer close(active.eventsDone)

	for event := range active.stream.Events() {
		switch event.Kind {
		case domain.TranscriptKindFinal:
			active.agg.Append(event.Text)
		case domain.TranscriptKindInterim:
			c.events.InterimTranscript(event.Text)
		}
	}
}

func (c *Coordinator) pumpAudio(ctx context.Context, active *activeSession) {
	defer close(active.audioDone)

	buf := make([]byte, c.cfg.ChunkSize)
	for {
		n, readErr := active.audio.Read(buf)
		if n > 0 {
			if sendErr := active.stream.SendAudio(buf[:n]); sendErr != nil {
				if ctx.Err() == nil {
					c.logger.Warn("audio send failed", "error", sendErr)
				}
				return
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) && ctx.Err() == nil {
				c.logger.Warn("audio read failed", "error", readErr)
			}
			return
		}
	}
}

// finish is the single terminal path for a session, whether the user stopped
// it or the provider did. It releases the microphone and the stream
// unconditionally, then applies the session outcome.
func (c *Coordinator) finish(active *activeSession) {
	active.finishOnce.Do(func() {
		active.cancel()
		_ = active.audio.Stop()
		_ = active.stream.Close()
		<-active.eventsDone
		<-active.audioDone

		transcript := active.agg.Final()
		streamErr := active.stream.Wait()

		c.mu.Lock()
		if c.current == active {
			c.current = nil
		}
		c.transcript = transcript
		if streamErr != nil {
			c.lastErr = streamErr.Error()
		}
		notify := c.notify
		c.mu.Unlock()

		c.state.SetListening(false)

		if streamErr != nil {
			c.logger.Warn("speech session ended with error", "error", streamErr)
			c.events.CaptureError(domain.ErrorCodeSpeechSession, streamErr.Error())
		}

		if strings.TrimSpace(transcript) != "" {
			if summary, changed := c.state.UpdateStreak(); changed {
				c.events.StreakChanged(summary)
			}
		}

		c.logger.Info("listening ended", "transcript_chars", len(transcript))
		notify(domain.CaptureReasonListeningEnded)
	})
}

func (c *Coordinator) waitForStream(stream ports.SpeechSession) {
	done := make(chan error, 1)
	go func() { done <- stream.Wait() }()

	select {
	case <-done:
	case <-time.After(streamFinishTimeout):
		c.logger.Warn("recognition stream did not finish in time, forcing close")
		_ = stream.Close()
	}
}

func (c *Coordinator) setErr(detail string) {
	c.mu.Lock()
	c.lastErr = detail
	c.mu.Unlock()
}

// transcriptAggregator accumulates finalized segments only. Interim
// transcripts are display-only and never committed.
type transcriptAggregator struct {
	mu     sync.Mutex
	finals []string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

func (a *transcriptAggregator) Append(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	a.mu.Lock()
	a.finals = append(a.finals, text)
	a.mu.Unlock()
}

func (a *transcriptAggregator) Final() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.Join(a.finals, " ")
}
