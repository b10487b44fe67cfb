// Package store is the single source of truth for streak accounting, the
// rolling recording history, the current topic, and transient capture flags.
// A subset of fields is persisted to durable storage on every mutation and
// rehydrated once at startup.
package store

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"moonolog/internal/domain"
	"moonolog/internal/ports"
	"moonolog/internal/streak"
)

const (
	// StorageKey is the namespace key all persisted state lives under.
	StorageKey = "moonolog-storage"

	// RetentionLimit bounds the rolling recording history.
	RetentionLimit = 5

	// SchemaVersion tags the persisted envelope.
	SchemaVersion = 1

	fallbackTopicTitle = "Unknown Topic"
)

// persistedState is the durable subset of store fields. Transient flags and
// the current topic are excluded at serialization time.
type persistedState struct {
	Streak         int                `json:"streak"`
	LastSpokenDate *string            `json:"lastSpokenDate"`
	TotalSessions  int                `json:"totalSessions"`
	Recordings     []domain.Recording `json:"recordings"`
}

type envelope struct {
	State   persistedState `json:"state"`
	Version int            `json:"version"`
}

// Store owns all mutable application state. All access goes through its
// methods; callbacks from both capture modalities and UI bindings may touch
// it, so every method takes the mutex.
type Store struct {
	logger  *slog.Logger
	storage ports.StateStorage
	now     func() time.Time

	mu           sync.Mutex
	streak       domain.StreakState
	recordings   []domain.Recording
	currentTopic *domain.Topic
	listening    bool
	recording    bool
	debugMode    bool
	hydrated     bool
}

// Option adjusts store construction.
type Option func(*Store)

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New constructs an empty, not-yet-hydrated store.
func New(storage ports.StateStorage, logger *slog.Logger, opts ...Option) *Store {
	if storage == nil {
		storage = noopStorage{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Store{
		logger:  logger,
		storage: storage,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hydrate loads the persisted snapshot into memory exactly once and then
// runs the staleness check. Missing or unreadable snapshots leave the empty
// defaults in place; either way the store is hydrated afterwards.
func (s *Store) Hydrate(ctx context.Context) {
	value, found, err := s.storage.Load(ctx, StorageKey)

	s.mu.Lock()
	if s.hydrated {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.logger.Warn("state load failed, starting empty", "error", err)
	}
	if found && err == nil {
		var env envelope
		if uerr := json.Unmarshal(value, &env); uerr != nil {
			s.logger.Warn("state snapshot unreadable, starting empty", "error", uerr)
		} else {
			s.streak = domain.StreakState{
				Streak:        env.State.Streak,
				TotalSessions: env.State.TotalSessions,
			}
			if env.State.LastSpokenDate != nil {
				s.streak.LastSpokenDate = *env.State.LastSpokenDate
			}
			s.recordings = env.State.Recordings
		}
	}
	s.hydrated = true

	// A run broken by two or more missed days must not survive hydration:
	// left alone it would be wrongly extended by the next yesterday match.
	stale := streak.Stale(s.streak.LastSpokenDate, s.now())
	if stale {
		s.streak = domain.StreakState{}
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if stale {
		s.save(snapshot)
	}
}

// HasHydrated reports whether the persisted snapshot has been loaded.
func (s *Store) HasHydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// SetCurrentTopic replaces the current topic unconditionally.
func (s *Store) SetCurrentTopic(topic domain.Topic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentTopic = &topic
}

// CurrentTopic returns the current topic, if one is set.
func (s *Store) CurrentTopic() (domain.Topic, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentTopic == nil {
		return domain.Topic{}, false
	}
	return *s.currentTopic, true
}

// SetListening sets the transient speech-session flag.
func (s *Store) SetListening(listening bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listening = listening
}

// SetRecording sets the transient any-capture-active flag.
func (s *Store) SetRecording(recording bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = recording
}

// Listening reports whether a speech session is active.
func (s *Store) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Recording reports whether any capture modality is active.
func (s *Store) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// AddRecording stores a completed clip at the head of the history and evicts
// past the retention bound. The topic title is snapshotted, not referenced.
func (s *Store) AddRecording(audioBase64 string, durationSeconds int) domain.Recording {
	s.mu.Lock()
	now := s.now()
	title := fallbackTopicTitle
	if s.currentTopic != nil {
		title = s.currentTopic.Title
	}

	rec := domain.Recording{
		ID:          s.nextIDLocked(now.UnixMilli()),
		AudioBase64: audioBase64,
		Timestamp:   now.UnixMilli(),
		Duration:    durationSeconds,
		TopicTitle:  title,
	}

	s.recordings = append([]domain.Recording{rec}, s.recordings...)
	if len(s.recordings) > RetentionLimit {
		s.recordings = s.recordings[:RetentionLimit]
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.save(snapshot)
	return rec
}

// RemoveRecording deletes the matching entry; an absent id is a no-op.
func (s *Store) RemoveRecording(id string) {
	s.mu.Lock()
	kept := s.recordings[:0]
	for _, rec := range s.recordings {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	s.recordings = kept
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.save(snapshot)
}

// ClearAllRecordings empties the history.
func (s *Store) ClearAllRecordings() {
	s.mu.Lock()
	s.recordings = nil
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.save(snapshot)
}

// Recordings returns a copy of the history, newest first. Before hydration
// it returns nothing, never a stale on-disk value.
func (s *Store) Recordings() []domain.Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated {
		return nil
	}
	out := make([]domain.Recording, len(s.recordings))
	copy(out, s.recordings)
	return out
}

// UpdateStreak marks one completed session for the current day and reports
// whether the record changed. Repeated calls within one calendar day are
// no-ops.
func (s *Store) UpdateStreak() (domain.StreakSummary, bool) {
	s.mu.Lock()
	next, changed := streak.Advance(s.streak, s.now())
	var snapshot []byte
	if changed {
		s.streak = next
		snapshot = s.snapshotLocked()
	}
	summary := s.summaryLocked()
	s.mu.Unlock()

	if changed {
		s.save(snapshot)
	}
	return summary, changed
}

// ResetStreak clears the full habit record, sessions included.
func (s *Store) ResetStreak() {
	s.mu.Lock()
	s.streak = domain.StreakState{}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.save(snapshot)
}

// StreakState returns the raw persisted record, zeroed before hydration.
func (s *Store) StreakState() domain.StreakState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated {
		return domain.StreakState{}
	}
	return s.streak
}

// StreakSummary returns the UI-facing habit view, zeroed before hydration.
func (s *Store) StreakSummary() domain.StreakSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

// ToggleDebugMode flips the transient debug flag and returns the new value.
func (s *Store) ToggleDebugMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debugMode = !s.debugMode
	return s.debugMode
}

// DebugMode reports the transient debug flag.
func (s *Store) DebugMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debugMode
}

func (s *Store) summaryLocked() domain.StreakSummary {
	if !s.hydrated {
		return domain.StreakSummary{}
	}
	return domain.StreakSummary{
		Streak:           s.streak.Streak,
		TotalSessions:    s.streak.TotalSessions,
		IsCompletedToday: s.streak.LastSpokenDate == streak.Day(s.now()),
	}
}

// nextIDLocked derives a millisecond-timestamp id, bumped past the newest
// stored id so two clips landing in the same millisecond stay distinct.
func (s *Store) nextIDLocked(unixMilli int64) string {
	if len(s.recordings) > 0 {
		if prev, err := strconv.ParseInt(s.recordings[0].ID, 10, 64); err == nil && prev >= unixMilli {
			unixMilli = prev + 1
		}
	}
	return strconv.FormatInt(unixMilli, 10)
}

func (s *Store) snapshotLocked() []byte {
	state := persistedState{
		Streak:        s.streak.Streak,
		TotalSessions: s.streak.TotalSessions,
		Recordings:    make([]domain.Recording, len(s.recordings)),
	}
	copy(state.Recordings, s.recordings)
	if s.streak.LastSpokenDate != "" {
		last := s.streak.LastSpokenDate
		state.LastSpokenDate = &last
	}

	data, err := json.Marshal(envelope{State: state, Version: SchemaVersion})
	if err != nil {
		s.logger.Warn("state snapshot marshal failed", "error", err)
		return nil
	}
	return data
}

// save writes a snapshot fire-and-forget: a failed write is logged and the
// in-memory state stays authoritative.
func (s *Store) save(snapshot []byte) {
	if snapshot == nil {
		return
	}
	if err := s.storage.Save(context.Background(), StorageKey, snapshot); err != nil {
		s.logger.Warn("state save failed", "error", err)
	}
}

type noopStorage struct{}

func (noopStorage) Load(_ context.Context, _ string) ([]byte, bool, error) { return nil, false, nil }
func (noopStorage) Save(_ context.Context, _ string, _ []byte) error       { return nil }
func (noopStorage) Close() error                                           { return nil }
