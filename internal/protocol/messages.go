package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message type tags used on the recognition channel. Every payload is a
// JSON object discriminated by its "type" field.
const (
	TypeTranscript    = "transcript"
	TypeStatus        = "status"
	TypeSpeechStarted = "speech_started"
	TypeUtteranceEnd  = "utterance_end"
	TypeError         = "error"

	TypeAudioChunk = "audio_chunk"
	TypeStart      = "start"
	TypeStop       = "stop"
)

// WordInfo carries per-word recognition detail, including alternatives
// the recognizer offers for low-confidence words.
type WordInfo struct {
	Word         string            `json:"word"`
	Start        float64           `json:"start"`
	End          float64           `json:"end"`
	Confidence   float64           `json:"confidence"`
	Alternatives []WordAlternative `json:"alternatives,omitempty"`
}

type WordAlternative struct {
	Word       string  `json:"word"`
	Confidence float64 `json:"confidence"`
}

// TranscriptEvent is a recognition hypothesis for one utterance. IsFinal
// distinguishes interim hypotheses from committed results.
type TranscriptEvent struct {
	Type       string     `json:"type"`
	IsFinal    bool       `json:"is_final"`
	Speaker    string     `json:"speaker"`
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
	Start      float64    `json:"start"`
	End        float64    `json:"end"`
	Words      []WordInfo `json:"words,omitempty"`
}

// StatusEvent reports backend connection status changes.
type StatusEvent struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SpeechStartedEvent signals speech activity. Informational only.
type SpeechStartedEvent struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

// UtteranceEndEvent signals the recognizer saw the end of an utterance.
// Informational only; segment ordering is driven by segment arrival.
type UtteranceEndEvent struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

// ErrorEvent surfaces a backend-reported error. It does not close the
// channel.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AudioChunk carries base64 PCM16 mono audio toward the recognizer.
type AudioChunk struct {
	Type      string  `json:"type"`
	Data      string  `json:"data"`
	Sequence  int     `json:"sequence"`
	Timestamp float64 `json:"timestamp"`
}

// StartCommand announces a new utterance stream together with language
// and keyterm hints for the recognizer.
type StartCommand struct {
	Type       string   `json:"type"`
	SessionID  string   `json:"session_id"`
	Language   string   `json:"language,omitempty"`
	SampleRate int      `json:"sample_rate,omitempty"`
	Keyterms   []string `json:"keyterms,omitempty"`
}

// StopCommand signals end-of-utterance to the recognizer.
type StopCommand struct {
	Type string `json:"type"`
}

// Event is implemented by every inbound message variant.
type Event interface {
	EventType() string
}

func (e TranscriptEvent) EventType() string    { return TypeTranscript }
func (e StatusEvent) EventType() string        { return TypeStatus }
func (e SpeechStartedEvent) EventType() string { return TypeSpeechStarted }
func (e UtteranceEndEvent) EventType() string  { return TypeUtteranceEnd }
func (e ErrorEvent) EventType() string         { return TypeError }

// ErrUnknownType reports an unrecognized message tag.
type ErrUnknownType struct {
	Tag string
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Tag)
}

type envelope struct {
	Type string `json:"type"`
}

// DecodeEvent parses an inbound payload into its typed variant. Unknown
// tags return *ErrUnknownType so callers can log and drop them.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode message envelope: %w", err)
	}
	switch env.Type {
	case TypeTranscript:
		var evt TranscriptEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("decode transcript event: %w", err)
		}
		return evt, nil
	case TypeStatus:
		var evt StatusEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("decode status event: %w", err)
		}
		return evt, nil
	case TypeSpeechStarted:
		var evt SpeechStartedEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("decode speech_started event: %w", err)
		}
		return evt, nil
	case TypeUtteranceEnd:
		var evt UtteranceEndEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("decode utterance_end event: %w", err)
		}
		return evt, nil
	case TypeError:
		var evt ErrorEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("decode error event: %w", err)
		}
		return evt, nil
	default:
		return nil, &ErrUnknownType{Tag: env.Type}
	}
}

// RenderDelta is an append-only document patch broadcast after the
// renderer applies a store change.
type RenderDelta struct {
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"` // segment, provisional, provisional_clear, edit, active
	SegmentID string    `json:"segment_id,omitempty"`
	Order     int       `json:"order,omitempty"`
	Text      string    `json:"text,omitempty"`
	Speaker   string    `json:"speaker,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus subjects. Recognition events arrive per session; audio and render
// deltas flow outward the same way.
const (
	SubjectRecognitionPrefix = "recognition.event" // recognition.event.<session>
	SubjectAudioPrefix       = "audio.chunk"       // audio.chunk.<session>
	SubjectControlPrefix     = "recognition.ctrl"  // recognition.ctrl.<session>
	SubjectRenderPrefix      = "render.delta"      // render.delta.<session>
	SubjectHearingControl    = "hearing.ctrl"      // runtime control plane
)

// Hearing control actions accepted on SubjectHearingControl.
const (
	ActionOpen          = "open"
	ActionStop          = "stop"
	ActionClose         = "close"
	ActionEdit          = "edit"
	ActionBookmark      = "bookmark"
	ActionAssignSpeaker = "assign_speaker"
	ActionScroll        = "scroll"
	ActionJumpLive      = "jump_live"
	ActionTick          = "tick"
)

// HearingCommand drives session lifecycle and review operations over
// the bus. Fields beyond Action and HearingID apply per action.
type HearingCommand struct {
	Action    string  `json:"action"`
	HearingID string  `json:"hearing_id"`
	CaseFile  string  `json:"case_file,omitempty"`
	Courtroom string  `json:"courtroom,omitempty"`
	SegmentID string  `json:"segment_id,omitempty"`
	Text      string  `json:"text,omitempty"`
	Position  float64 `json:"position,omitempty"`
	Note      string  `json:"note,omitempty"`
	Kind      string  `json:"kind,omitempty"`
	SpeakerID string  `json:"speaker_id,omitempty"`
	Role      string  `json:"role,omitempty"`
	Name      string  `json:"name,omitempty"`
	Distance  int     `json:"distance_px,omitempty"`
}

// RecognitionSubject returns the inbound event subject for a session.
func RecognitionSubject(sessionID string) string {
	return SubjectRecognitionPrefix + "." + sessionID
}

// AudioSubject returns the outbound audio subject for a session.
func AudioSubject(sessionID string) string {
	return SubjectAudioPrefix + "." + sessionID
}

// ControlSubject returns the outbound control subject for a session.
func ControlSubject(sessionID string) string {
	return SubjectControlPrefix + "." + sessionID
}

// RenderSubject returns the render delta subject for a session.
func RenderSubject(sessionID string) string {
	return SubjectRenderPrefix + "." + sessionID
}
