// Package audio captures microphone input through an ffmpeg subprocess. One
// capture can produce either raw PCM for recognition streaming or an encoded
// webm/opus stream for stored clips.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"moonolog/internal/ports"
)

// Capture creates microphone capture sessions backed by ffmpeg.
type Capture struct {
	command string
}

func NewCapture(command string) *Capture {
	if command == "" {
		command = "ffmpeg"
	}
	return &Capture{command: command}
}

// Supported reports whether the recorder binary is available on this system.
func (c *Capture) Supported() bool {
	_, err := exec.LookPath(c.command)
	return err == nil
}

func (c *Capture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
	}
	switch cfg.OutputFormat {
	case "", "s16le":
		args = append(args, "-f", "s16le", "-")
	case "webm":
		args = append(args, "-c:a", "libopus", "-f", "webm", "-")
	default:
		return nil, fmt.Errorf("unsupported output format %q", cfg.OutputFormat)
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create recorder stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recorder: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// An immediate exit means the device could not be opened at all; give
	// the recorder a moment to prove it is actually capturing.
	select {
	case err := <-waitErr:
		return nil, classifyStartFailure(err, stderr.String())
	case <-time.After(250 * time.Millisecond):
	}

	return &session{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

// classifyStartFailure distinguishes a refused device from other recorder
// failures so callers can surface them differently.
func classifyStartFailure(err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	lowered := strings.ToLower(detail)
	if strings.Contains(lowered, "permission denied") ||
		strings.Contains(lowered, "access denied") ||
		strings.Contains(lowered, "device or resource busy") {
		return fmt.Errorf("%w: %s", ports.ErrMicDenied, detail)
	}
	if err != nil {
		if detail != "" {
			return fmt.Errorf("recorder exited before capture started: %w: %s", err, detail)
		}
		return fmt.Errorf("recorder exited before capture started: %w", err)
	}
	if detail != "" {
		return fmt.Errorf("recorder exited before capture started: %s", detail)
	}
	return errors.New("recorder exited before capture started")
}

type session struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *session) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *session) Close() error {
	return s.Stop()
}

// Stop interrupts the recorder and waits for it to exit. It runs at most
// once; the microphone is released on every path.
func (s *session) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, strings.TrimSpace(s.stderr.String()))
		}
	})

	return s.stopErr
}

// normalizeStopErr drops the nonzero exit status an interrupted recorder
// reports on a clean stop.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
