package transcript

import (
	"strings"
	"time"

	"github.com/actalabs/acta-core/internal/protocol"
)

// Word is the per-word recognition detail as it arrives on the wire.
type Word = protocol.WordInfo

// Segment is a finalized, speaker-attributed unit of the transcript.
// ID and Order are assigned once and never change; content fields mutate
// in place when a later hypothesis consolidates into the segment.
type Segment struct {
	ID             string
	SpeakerID      string
	TextRecognized string
	TextEnhanced   string
	TextUserEdited string
	StartTime      float64
	// EndTime <= StartTime means the recognizer did not report an end;
	// time lookups then assume a default duration.
	EndTime      float64
	Confidence   float64
	Words        []Word
	EditedByUser bool
	Order        int
	// Revision increments on every in-place mutation so a renderer can
	// detect content changes without diffing text.
	Revision int
}

// DisplayText returns the text to render: user edits win over enhanced
// text, which wins over the raw recognition.
func (s *Segment) DisplayText() string {
	if s.TextUserEdited != "" {
		return s.TextUserEdited
	}
	if s.TextEnhanced != "" {
		return s.TextEnhanced
	}
	return s.TextRecognized
}

func (s *Segment) wordCount() int {
	return len(strings.Fields(s.DisplayText()))
}

// ProvisionalState is the single ephemeral recognition hypothesis. It is
// always replaced wholesale or cleared, never patched.
type ProvisionalState struct {
	Text      string
	SpeakerID string
	Words     []Word
}

// ConnectionState describes the recognition channel.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

// BookmarkKind categorizes a marker for later review.
type BookmarkKind string

const (
	BookmarkRevision  BookmarkKind = "revision"
	BookmarkImportant BookmarkKind = "importante"
	BookmarkError     BookmarkKind = "error"
	BookmarkQuestion  BookmarkKind = "pregunta"
)

// Bookmark is a user-created marker, independent of segment lifecycle.
type Bookmark struct {
	ID        string
	Timestamp float64
	Note      string
	Kind      BookmarkKind
	SegmentID string
	CreatedAt time.Time
}

// Candidate is a final recognition event submitted for consolidation.
type Candidate struct {
	SpeakerID  string
	Text       string
	Confidence float64
	StartTime  float64
	EndTime    float64
	Words      []Word
}
