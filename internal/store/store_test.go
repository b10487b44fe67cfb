package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"moonolog/internal/domain"
)

type fakeStorage struct {
	mu      sync.Mutex
	data    map[string][]byte
	saves   int
	loadErr error
	saveErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{data: map[string][]byte{}}
}

func (f *fakeStorage) Load(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, false, f.loadErr
	}
	value, ok := f.data[key]
	return value, ok, nil
}

func (f *fakeStorage) Save(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.data[key] = append([]byte(nil), value...)
	return nil
}

func (f *fakeStorage) Close() error { return nil }

func (f *fakeStorage) stored(t *testing.T) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.data[StorageKey]
	if !ok {
		t.Fatalf("nothing persisted under %q", StorageKey)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("persisted snapshot unreadable: %v", err)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestStore(t *testing.T) (*Store, *fakeStorage, *fakeClock) {
	t.Helper()
	storage := newFakeStorage()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	s := New(storage, nil, WithClock(clock.Now))
	s.Hydrate(context.Background())
	return s, storage, clock
}

func TestAddRecordingRetentionBound(t *testing.T) {
	t.Parallel()

	s, _, clock := newTestStore(t)
	base := clock.Now()
	for i := 0; i < RetentionLimit+1; i++ {
		clock.Set(base.Add(time.Duration(i) * time.Minute))
		s.AddRecording(fmt.Sprintf("data:audio/webm;base64,clip%d", i), i+1)
	}

	recordings := s.Recordings()
	if len(recordings) != RetentionLimit {
		t.Fatalf("expected %d recordings, got %d", RetentionLimit, len(recordings))
	}
	if !strings.HasSuffix(recordings[0].AudioBase64, "clip5") {
		t.Fatalf("expected newest first, got %q", recordings[0].AudioBase64)
	}
	for _, rec := range recordings {
		if strings.HasSuffix(rec.AudioBase64, "clip0") {
			t.Fatalf("expected oldest recording to be evicted")
		}
	}
}

func TestAddRecordingSnapshotsTopicTitle(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestStore(t)
	s.SetCurrentTopic(domain.Topic{ID: 1, Title: "My Morning Routine"})
	rec := s.AddRecording("data:audio/webm;base64,abc", 12)
	s.SetCurrentTopic(domain.Topic{ID: 2, Title: "A Place I Love"})

	got := s.Recordings()[0]
	if got.TopicTitle != "My Morning Routine" {
		t.Fatalf("topic title must be snapshotted, got %q", got.TopicTitle)
	}
	if got.ID != rec.ID || got.Duration != 12 {
		t.Fatalf("unexpected recording: %+v", got)
	}
}

func TestAddRecordingWithoutTopicUsesFallbackTitle(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestStore(t)
	rec := s.AddRecording("data:audio/webm;base64,abc", 3)
	if rec.TopicTitle != "Unknown Topic" {
		t.Fatalf("unexpected fallback title: %q", rec.TopicTitle)
	}
}

func TestAddRecordingIDsStayDistinctWithinOneMillisecond(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestStore(t)
	first := s.AddRecording("data:audio/webm;base64,a", 1)
	second := s.AddRecording("data:audio/webm;base64,b", 1)
	if first.ID == second.ID {
		t.Fatalf("ids collided: %q", first.ID)
	}
	if second.ID <= first.ID {
		t.Fatalf("ids must stay ordered: %q then %q", first.ID, second.ID)
	}
}

func TestRemoveRecordingMissingIDIsNoOp(t *testing.T) {
	t.Parallel()

	s, _, clock := newTestStore(t)
	base := clock.Now()
	for i := 0; i < 3; i++ {
		clock.Set(base.Add(time.Duration(i) * time.Second))
		s.AddRecording(fmt.Sprintf("data:audio/webm;base64,clip%d", i), 1)
	}
	before := s.Recordings()

	s.RemoveRecording("no-such-id")

	after := s.Recordings()
	if len(after) != len(before) {
		t.Fatalf("length changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if after[i].ID != before[i].ID {
			t.Fatalf("order changed at %d", i)
		}
	}
}

func TestRemoveRecordingDeletesAnyPosition(t *testing.T) {
	t.Parallel()

	s, _, clock := newTestStore(t)
	base := clock.Now()
	for i := 0; i < 3; i++ {
		clock.Set(base.Add(time.Duration(i) * time.Second))
		s.AddRecording(fmt.Sprintf("data:audio/webm;base64,clip%d", i), 1)
	}
	middle := s.Recordings()[1]

	s.RemoveRecording(middle.ID)

	for _, rec := range s.Recordings() {
		if rec.ID == middle.ID {
			t.Fatalf("recording %q still present", middle.ID)
		}
	}
	if len(s.Recordings()) != 2 {
		t.Fatalf("expected 2 recordings, got %d", len(s.Recordings()))
	}
}

func TestClearAllRecordings(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestStore(t)
	s.AddRecording("data:audio/webm;base64,abc", 1)
	s.ClearAllRecordings()
	if len(s.Recordings()) != 0 {
		t.Fatalf("expected empty history")
	}
}

func TestUpdateStreakSameDayIdempotent(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestStore(t)
	first, changed := s.UpdateStreak()
	if !changed || first.Streak != 1 || first.TotalSessions != 1 {
		t.Fatalf("unexpected first update: %+v changed=%v", first, changed)
	}
	if !first.IsCompletedToday {
		t.Fatalf("expected completed-today after update")
	}

	second, changed := s.UpdateStreak()
	if changed {
		t.Fatalf("same-day update must be a no-op")
	}
	if second.Streak != 1 || second.TotalSessions != 1 {
		t.Fatalf("same-day update inflated the record: %+v", second)
	}
}

func TestUpdateStreakScenario(t *testing.T) {
	t.Parallel()

	s, _, clock := newTestStore(t)

	clock.Set(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	s.UpdateStreak()
	if st := s.StreakState(); st.Streak != 1 || st.LastSpokenDate != "2024-01-01" || st.TotalSessions != 1 {
		t.Fatalf("after 2024-01-01: %+v", st)
	}

	clock.Set(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC))
	s.UpdateStreak()
	if st := s.StreakState(); st.Streak != 2 || st.LastSpokenDate != "2024-01-02" || st.TotalSessions != 2 {
		t.Fatalf("after 2024-01-02: %+v", st)
	}

	clock.Set(time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC))
	s.UpdateStreak()
	if st := s.StreakState(); st.Streak != 1 || st.LastSpokenDate != "2024-01-05" || st.TotalSessions != 3 {
		t.Fatalf("after 2024-01-05: %+v", st)
	}
}

func TestResetStreakClearsEverything(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestStore(t)
	s.UpdateStreak()
	s.ResetStreak()

	st := s.StreakState()
	if st.Streak != 0 || st.LastSpokenDate != "" || st.TotalSessions != 0 {
		t.Fatalf("expected full reset, got %+v", st)
	}
}

func TestPreHydrationReadsReturnDefaults(t *testing.T) {
	t.Parallel()

	storage := newFakeStorage()
	last := "2024-01-01"
	seed, err := json.Marshal(envelope{
		State: persistedState{
			Streak:         9,
			LastSpokenDate: &last,
			TotalSessions:  40,
			Recordings:     []domain.Recording{{ID: "1", AudioBase64: "data:audio/webm;base64,x"}},
		},
		Version: SchemaVersion,
	})
	if err != nil {
		t.Fatalf("seed marshal failed: %v", err)
	}
	storage.data[StorageKey] = seed

	clock := &fakeClock{now: time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)}
	s := New(storage, nil, WithClock(clock.Now))

	if summary := s.StreakSummary(); summary.Streak != 0 || summary.TotalSessions != 0 || summary.IsCompletedToday {
		t.Fatalf("pre-hydration summary must be zero: %+v", summary)
	}
	if recs := s.Recordings(); len(recs) != 0 {
		t.Fatalf("pre-hydration recordings must be empty, got %d", len(recs))
	}
	if s.HasHydrated() {
		t.Fatalf("store should not report hydrated yet")
	}

	s.Hydrate(context.Background())

	if st := s.StreakState(); st.Streak != 9 || st.TotalSessions != 40 {
		t.Fatalf("post-hydration state wrong: %+v", st)
	}
	if len(s.Recordings()) != 1 {
		t.Fatalf("post-hydration recordings missing")
	}
}

func TestHydrateStaleRecordIsFullyReset(t *testing.T) {
	t.Parallel()

	storage := newFakeStorage()
	last := "2024-01-01"
	seed, _ := json.Marshal(envelope{
		State:   persistedState{Streak: 6, LastSpokenDate: &last, TotalSessions: 6},
		Version: SchemaVersion,
	})
	storage.data[StorageKey] = seed

	clock := &fakeClock{now: time.Date(2024, 1, 4, 8, 0, 0, 0, time.UTC)}
	s := New(storage, nil, WithClock(clock.Now))
	s.Hydrate(context.Background())

	st := s.StreakState()
	if st.Streak != 0 || st.LastSpokenDate != "" || st.TotalSessions != 0 {
		t.Fatalf("expected stale record reset, got %+v", st)
	}

	persisted := storage.stored(t)
	state := persisted["state"].(map[string]any)
	if state["streak"].(float64) != 0 || state["lastSpokenDate"] != nil {
		t.Fatalf("reset must be written back: %+v", state)
	}
}

func TestHydrateYesterdayRecordSurvives(t *testing.T) {
	t.Parallel()

	storage := newFakeStorage()
	last := "2024-01-03"
	seed, _ := json.Marshal(envelope{
		State:   persistedState{Streak: 6, LastSpokenDate: &last, TotalSessions: 6},
		Version: SchemaVersion,
	})
	storage.data[StorageKey] = seed

	clock := &fakeClock{now: time.Date(2024, 1, 4, 8, 0, 0, 0, time.UTC)}
	s := New(storage, nil, WithClock(clock.Now))
	s.Hydrate(context.Background())

	if st := s.StreakState(); st.Streak != 6 || st.LastSpokenDate != "2024-01-03" {
		t.Fatalf("yesterday record must survive hydration: %+v", st)
	}
}

func TestHydrateIsIdempotent(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestStore(t)
	s.UpdateStreak()
	before := s.StreakState()

	s.Hydrate(context.Background())

	if after := s.StreakState(); after != before {
		t.Fatalf("second hydrate changed state: %+v -> %+v", before, after)
	}
}

func TestPersistedFormExcludesTransientFields(t *testing.T) {
	t.Parallel()

	s, storage, _ := newTestStore(t)
	s.SetCurrentTopic(domain.Topic{ID: 1, Title: "Topic"})
	s.SetListening(true)
	s.SetRecording(true)
	s.UpdateStreak()

	persisted := storage.stored(t)
	if persisted["version"].(float64) != SchemaVersion {
		t.Fatalf("missing schema version: %+v", persisted)
	}
	state := persisted["state"].(map[string]any)
	for _, key := range []string{"isListening", "isRecording", "hasHydrated", "currentTopic", "isDebugMode"} {
		if _, ok := state[key]; ok {
			t.Fatalf("transient field %q leaked into persisted form", key)
		}
	}
	for _, key := range []string{"streak", "lastSpokenDate", "totalSessions", "recordings"} {
		if _, ok := state[key]; !ok {
			t.Fatalf("persisted field %q missing", key)
		}
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	t.Parallel()

	storage := newFakeStorage()
	clock := &fakeClock{now: time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)}

	first := New(storage, nil, WithClock(clock.Now))
	first.Hydrate(context.Background())
	first.SetCurrentTopic(domain.Topic{ID: 3, Title: "Food I Enjoy"})
	first.UpdateStreak()
	first.AddRecording("data:audio/webm;base64,abc", 21)

	second := New(storage, nil, WithClock(clock.Now))
	second.Hydrate(context.Background())

	if got, want := second.StreakState(), first.StreakState(); got != want {
		t.Fatalf("streak state did not round-trip: %+v != %+v", got, want)
	}
	firstRecs, secondRecs := first.Recordings(), second.Recordings()
	if len(firstRecs) != len(secondRecs) {
		t.Fatalf("recordings did not round-trip: %d != %d", len(firstRecs), len(secondRecs))
	}
	for i := range firstRecs {
		if firstRecs[i] != secondRecs[i] {
			t.Fatalf("recording %d mismatch: %+v != %+v", i, firstRecs[i], secondRecs[i])
		}
	}
	if second.Listening() || second.Recording() {
		t.Fatalf("transient flags must default on reload")
	}
	if _, ok := second.CurrentTopic(); ok {
		t.Fatalf("current topic must not be persisted")
	}
}

func TestStorageFailuresAreSilent(t *testing.T) {
	t.Parallel()

	storage := newFakeStorage()
	storage.loadErr = fmt.Errorf("backend down")
	storage.saveErr = fmt.Errorf("backend down")

	s := New(storage, nil)
	s.Hydrate(context.Background())

	if !s.HasHydrated() {
		t.Fatalf("store must hydrate with defaults when storage is unavailable")
	}
	// Mutations still work in memory even though every write is dropped.
	s.UpdateStreak()
	if s.StreakState().Streak != 1 {
		t.Fatalf("in-memory state must stay authoritative")
	}
}

func TestToggleDebugMode(t *testing.T) {
	t.Parallel()

	s, storage, _ := newTestStore(t)
	saves := storage.saves
	if !s.ToggleDebugMode() || s.ToggleDebugMode() {
		t.Fatalf("debug mode must flip on each toggle")
	}
	if storage.saves != saves {
		t.Fatalf("debug toggle must never touch persisted state")
	}
}
