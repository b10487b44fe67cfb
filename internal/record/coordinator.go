// Package record coordinates one audio recording session at a time: encoded
// chunks are buffered in memory, elapsed seconds are ticked out to the UI,
// and a finished session is turned into a single base64 data-URI clip.
package record

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"moonolog/internal/domain"
	"moonolog/internal/ports"
)

// Config carries the capture settings one recording session runs with.
type Config struct {
	Audio            ports.AudioConfig
	MimeType         string
	ChunkSize        int
	ProgressInterval time.Duration
}

// Coordinator owns the recording lifecycle. It is idle or recording, never
// both sessions at once; a start while recording and a stop while idle are
// no-ops.
type Coordinator struct {
	capture ports.AudioCapture
	events  ports.EventSink
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time

	notify     func(reason domain.CaptureReason)
	onComplete func(clip domain.RecordingClip)

	mu       sync.Mutex
	current  *recordingSession
	lastClip domain.RecordingClip
	lastErr  string
}

type recordingSession struct {
	cancel    context.CancelFunc
	audio     ports.AudioSession
	startedAt time.Time

	// buf is written only by the read loop; it is safe to read once
	// readDone is closed.
	buf      bytes.Buffer
	readErr  error
	readDone chan struct{}

	tickerStop chan struct{}
	finishOnce sync.Once
}

func NewCoordinator(capture ports.AudioCapture, events ports.EventSink, logger *slog.Logger, cfg Config) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MimeType == "" {
		cfg.MimeType = "audio/webm"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 4096
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = time.Second
	}
	return &Coordinator{
		capture:    capture,
		events:     events,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
		notify:     func(domain.CaptureReason) {},
		onComplete: func(domain.RecordingClip) {},
	}
}

// SetNotify installs the status-change callback.
func (c *Coordinator) SetNotify(notify func(reason domain.CaptureReason)) {
	if notify == nil {
		notify = func(domain.CaptureReason) {}
	}
	c.mu.Lock()
	c.notify = notify
	c.mu.Unlock()
}

// SetOnComplete installs the completed-clip callback. It fires at most once
// per session, and only when the session produced audio.
func (c *Coordinator) SetOnComplete(onComplete func(clip domain.RecordingClip)) {
	if onComplete == nil {
		onComplete = func(domain.RecordingClip) {}
	}
	c.mu.Lock()
	c.onComplete = onComplete
	c.mu.Unlock()
}

// SetClock overrides the wall clock, primarily for tests.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Supported reports whether audio recording can run on this system.
func (c *Coordinator) Supported() bool {
	return c.capture != nil && c.capture.Supported()
}

// State reports the coordinator lifecycle phase.
func (c *Coordinator) State() domain.RecordState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return domain.RecordStateRecording
	}
	return domain.RecordStateIdle
}

// Active reports whether a recording session is running.
func (c *Coordinator) Active() bool {
	return c.State() == domain.RecordStateRecording
}

// LastClip returns the most recently finished clip. A session that captured
// no audio leaves an empty clip.
func (c *Coordinator) LastClip() domain.RecordingClip {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastClip
}

// Err returns the most recent session error message, cleared on the next
// successful start.
func (c *Coordinator) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// StartRecording opens a capture session. Starting while already recording is
// a no-op so repeated toggles never stack sessions.
func (c *Coordinator) StartRecording(ctx context.Context) error {
	if !c.Supported() {
		c.setErr("audio recording is not available")
		c.events.CaptureError(domain.ErrorCodeAudioUnsupported, "audio recording is not available")
		return errors.New("audio recording is not available")
	}

	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	sessionCtx, cancel := context.WithCancel(context.Background())

	audioSession, err := c.capture.Start(ctx, c.cfg.Audio)
	if err != nil {
		cancel()
		code := domain.ErrorCodeAudioSession
		if errors.Is(err, ports.ErrMicDenied) {
			code = domain.ErrorCodeMicDenied
		}
		c.setErr(err.Error())
		c.events.CaptureError(code, err.Error())
		return err
	}

	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		cancel()
		_ = audioSession.Stop()
		return nil
	}
	session := &recordingSession{
		cancel:     cancel,
		audio:      audioSession,
		startedAt:  c.now(),
		readDone:   make(chan struct{}),
		tickerStop: make(chan struct{}),
	}
	c.current = session
	c.lastClip = domain.RecordingClip{}
	c.lastErr = ""
	notify := c.notify
	c.mu.Unlock()

	go c.readAudio(sessionCtx, session)
	go c.tickProgress(session)

	c.logger.Info("recording started")
	notify(domain.CaptureReasonRecordingStarted)
	return nil
}

// StopRecording ends the current session and blocks until the clip is
// finalized. Stopping while idle is a no-op.
func (c *Coordinator) StopRecording() {
	c.mu.Lock()
	session := c.current
	c.mu.Unlock()
	if session == nil {
		return
	}

	if err := session.audio.Stop(); err != nil {
		c.logger.Warn("recorder stop reported error", "error", err)
	}
	<-session.readDone
	c.finish(session)
}

func (c *Coordinator) readAudio(ctx context.Context, session *recordingSession) {
	buf := make([]byte, c.cfg.ChunkSize)
	for {
		n, err := session.audio.Read(buf)
		if n > 0 {
			session.buf.Write(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				session.readErr = err
			}
			break
		}
	}
	close(session.readDone)

	// The recorder can die on its own; finalize then too, not only on an
	// explicit stop.
	c.finish(session)
}

func (c *Coordinator) tickProgress(session *recordingSession) {
	ticker := time.NewTicker(c.cfg.ProgressInterval)
	defer ticker.Stop()

	elapsed := 0
	for {
		select {
		case <-ticker.C:
			elapsed++
			c.events.RecordingProgress(elapsed)
		case <-session.tickerStop:
			return
		}
	}
}

// finish is the single terminal path for a session, whether the user stopped
// it or the recorder died. The microphone and the elapsed ticker are released
// unconditionally; the clip callback fires at most once.
func (c *Coordinator) finish(session *recordingSession) {
	session.finishOnce.Do(func() {
		session.cancel()
		close(session.tickerStop)
		_ = session.audio.Stop()
		<-session.readDone

		duration := int(c.nowFn()().Sub(session.startedAt).Seconds())
		if duration < 0 {
			duration = 0
		}

		clip := domain.RecordingClip{Duration: duration}
		if session.buf.Len() > 0 {
			clip.AudioBase64 = "data:" + c.cfg.MimeType + ";base64," +
				base64.StdEncoding.EncodeToString(session.buf.Bytes())
		}

		c.mu.Lock()
		if c.current == session {
			c.current = nil
		}
		c.lastClip = clip
		if session.readErr != nil {
			c.lastErr = session.readErr.Error()
		}
		notify := c.notify
		onComplete := c.onComplete
		c.mu.Unlock()

		if session.readErr != nil {
			c.logger.Warn("recording session ended with error", "error", session.readErr)
			c.events.CaptureError(domain.ErrorCodeAudioSession, session.readErr.Error())
		}

		if clip.AudioBase64 == "" {
			c.logger.Warn("recording produced no audio, clip discarded", "duration_s", duration)
		}

		c.logger.Info("recording finalized", "duration_s", duration, "bytes", session.buf.Len())
		notify(domain.CaptureReasonRecordingFinalized)

		if clip.AudioBase64 != "" {
			onComplete(clip)
		}
	})
}

func (c *Coordinator) nowFn() func() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Coordinator) setErr(detail string) {
	c.mu.Lock()
	c.lastErr = detail
	c.mu.Unlock()
}
