package domain

// Topic is one daily speaking prompt. Topics are owned by the topic catalog
// and immutable once loaded; the store only holds the current one.
type Topic struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Examples    []string `json:"examples"`
}

// Recording is one completed capture session kept in the rolling history.
type Recording struct {
	ID          string `json:"id"`
	AudioBase64 string `json:"audioBase64"`
	Timestamp   int64  `json:"timestamp"`
	Duration    int    `json:"duration"`
	TopicTitle  string `json:"topicTitle"`
}

// RecordingClip is the raw output of one finished audio capture session,
// before it is turned into a stored Recording.
type RecordingClip struct {
	AudioBase64 string
	Duration    int
}

// StreakState is the persisted habit record.
type StreakState struct {
	Streak         int    `json:"streak"`
	LastSpokenDate string `json:"lastSpokenDate"`
	TotalSessions  int    `json:"totalSessions"`
}

// StreakSummary is the UI-facing view of the habit record.
type StreakSummary struct {
	Streak           int  `json:"streak"`
	TotalSessions    int  `json:"totalSessions"`
	IsCompletedToday bool `json:"isCompletedToday"`
}

// SpeechState models the speech-recognition coordinator lifecycle.
type SpeechState string

const (
	SpeechStateIdle      SpeechState = "idle"
	SpeechStateListening SpeechState = "listening"
)

// RecordState models the audio-recording coordinator lifecycle.
type RecordState string

const (
	RecordStateIdle      RecordState = "idle"
	RecordStateRecording RecordState = "recording"
)

// CaptureReason provides a structured reason for capture status changes.
type CaptureReason string

const (
	CaptureReasonListeningStarted   CaptureReason = "listening_started"
	CaptureReasonListeningEnded     CaptureReason = "listening_ended"
	CaptureReasonRecordingStarted   CaptureReason = "recording_started"
	CaptureReasonRecordingFinalized CaptureReason = "recording_finalized"
	CaptureReasonCaptureFailed      CaptureReason = "capture_failed"
)

// ErrorCode identifies non-fatal capture and persistence errors.
type ErrorCode string

const (
	ErrorCodeStartup           ErrorCode = "startup"
	ErrorCodeSpeechUnsupported ErrorCode = "speech_unsupported"
	ErrorCodeAudioUnsupported  ErrorCode = "audio_unsupported"
	ErrorCodeMicDenied         ErrorCode = "mic_denied"
	ErrorCodeSpeechSession     ErrorCode = "speech_session"
	ErrorCodeAudioSession      ErrorCode = "audio_session"
	ErrorCodePersistence       ErrorCode = "persistence"
)

// TranscriptKind identifies whether a recognition event is interim or final.
type TranscriptKind string

const (
	TranscriptKindInterim TranscriptKind = "interim"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental recognition output from a provider.
type TranscriptEvent struct {
	Kind TranscriptKind `json:"kind"`
	Text string         `json:"text"`
}

// CaptureStatus summarizes both capture modalities for the UI.
type CaptureStatus struct {
	Listening       bool   `json:"listening"`
	Recording       bool   `json:"recording"`
	SpeechSupported bool   `json:"speechSupported"`
	AudioSupported  bool   `json:"audioSupported"`
	AnySupported    bool   `json:"anySupported"`
	AnyActive       bool   `json:"anyActive"`
	Error           string `json:"error,omitempty"`
}
