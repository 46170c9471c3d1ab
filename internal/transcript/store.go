package transcript

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/actalabs/acta-core/internal/config"
	"github.com/google/uuid"
)

// AddOutcome reports which consolidation branch handled a candidate.
type AddOutcome int

const (
	// OutcomeExtended means the candidate refined an existing segment in
	// place.
	OutcomeExtended AddOutcome = iota
	// OutcomeDuplicate means the candidate matched an existing segment
	// exactly and was discarded.
	OutcomeDuplicate
	// OutcomeAppended means the candidate became a new segment.
	OutcomeAppended
)

func (o AddOutcome) String() string {
	switch o {
	case OutcomeExtended:
		return "extended"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeAppended:
		return "appended"
	default:
		return "unknown"
	}
}

// Store is the canonical, session-scoped transcript state: the ordered
// finalized segments, the single provisional hypothesis, edit tracking
// and aggregate counters. All methods are safe for concurrent use; the
// bus delivery goroutine, playback ticker and editor callbacks all call
// into it.
type Store struct {
	cfg config.TranscriptConfig

	mu          sync.Mutex
	segments    []*Segment
	provisional *ProvisionalState
	edited      *orderedSet
	bookmarks   []Bookmark
	nextOrder   int
	totalWords  int
	clock       func() time.Time
}

func NewStore(cfg config.TranscriptConfig) *Store {
	return &Store{
		cfg:    cfg,
		edited: newOrderedSet(),
		clock:  time.Now,
	}
}

// AddSegment runs the three-branch consolidation algorithm on a final
// recognition event:
//
//  1. extension match: same speaker, start within the extension window
//     or candidate text containing the existing text; replace content in
//     place, keep id/order/edited flag.
//  2. duplicate rejection: same speaker, identical trimmed text, start
//     within the duplicate window; discard the candidate.
//  3. otherwise append at the next order index.
//
// Whichever branch runs, the provisional slot is cleared and the
// aggregate word count recomputed. The returned segment is a copy;
// interior pointers never leave the lock.
func (s *Store) AddSegment(cand Candidate) (*Segment, AddOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		s.provisional = nil
		s.recomputeWordCount()
	}()

	// Branch 1: extension/update match. First match in array order wins.
	for _, seg := range s.segments {
		if seg.SpeakerID != cand.SpeakerID {
			continue
		}
		closeStart := math.Abs(seg.StartTime-cand.StartTime) < s.cfg.ExtensionWindowSec
		refines := seg.TextRecognized != "" &&
			strings.Contains(cand.Text, seg.TextRecognized)
		if closeStart || refines {
			seg.TextRecognized = cand.Text
			seg.TextEnhanced = ""
			seg.EndTime = cand.EndTime
			seg.Confidence = cand.Confidence
			seg.Words = append([]Word(nil), cand.Words...)
			seg.Revision++
			return s.copySegment(seg), OutcomeExtended
		}
	}

	// Branch 2: duplicate rejection absorbs retransmits.
	candText := strings.TrimSpace(cand.Text)
	for _, seg := range s.segments {
		if seg.SpeakerID != cand.SpeakerID {
			continue
		}
		if strings.TrimSpace(seg.TextRecognized) == candText &&
			math.Abs(seg.StartTime-cand.StartTime) < s.cfg.DuplicateWindowSec {
			return s.copySegment(seg), OutcomeDuplicate
		}
	}

	// Branch 3: new segment at the next order index.
	seg := &Segment{
		ID:             uuid.NewString(),
		SpeakerID:      cand.SpeakerID,
		TextRecognized: cand.Text,
		StartTime:      cand.StartTime,
		EndTime:        cand.EndTime,
		Confidence:     cand.Confidence,
		Words:          append([]Word(nil), cand.Words...),
		Order:          s.nextOrder,
	}
	s.nextOrder++
	s.segments = append(s.segments, seg)
	return s.copySegment(seg), OutcomeAppended
}

// UpdateSegment records a user edit and returns a copy of the edited
// segment. The edited flag is one-way: once a segment is edited it
// stays edited. Unknown ids no-op.
func (s *Store) UpdateSegment(id, newText string) *Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seg := range s.segments {
		if seg.ID != id {
			continue
		}
		seg.TextUserEdited = newText
		seg.EditedByUser = true
		seg.Revision++
		s.edited.add(id)
		s.recomputeWordCount()
		return s.copySegment(seg)
	}
	return nil
}

// SetEnhancedText attaches enhancer output to a segment and returns a
// copy. User-edited segments keep their edit on top per the display
// priority; the enhanced text is still stored. Unknown ids no-op.
func (s *Store) SetEnhancedText(id, enhanced string) *Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seg := range s.segments {
		if seg.ID != id {
			continue
		}
		seg.TextEnhanced = enhanced
		seg.Revision++
		s.recomputeWordCount()
		return s.copySegment(seg)
	}
	return nil
}

// UpdateProvisional replaces the provisional slot wholesale.
func (s *Store) UpdateProvisional(text, speakerID string, words []Word) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provisional = &ProvisionalState{
		Text:      text,
		SpeakerID: speakerID,
		Words:     append([]Word(nil), words...),
	}
}

// ClearProvisional empties the provisional slot.
func (s *Store) ClearProvisional() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provisional = nil
}

// Provisional returns a copy of the current provisional hypothesis, or
// nil when the slot is empty.
func (s *Store) Provisional() *ProvisionalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provisional == nil {
		return nil
	}
	cp := *s.provisional
	cp.Words = append([]Word(nil), s.provisional.Words...)
	return &cp
}

// SegmentAtTime returns the segment active at playback position t: the
// first segment whose [start, end) range contains t, with a default
// duration assumed when the recognizer reported no end. Pure lookup, no
// side effects. Linear scan; sessions stay small enough that a binary
// search over the time-ordered array has not been needed yet.
func (s *Store) SegmentAtTime(t float64) *Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seg := range s.segments {
		end := seg.EndTime
		if end <= seg.StartTime {
			end = seg.StartTime + s.cfg.DefaultSegmentSec
		}
		if seg.StartTime <= t && t < end {
			cp := s.copySegment(seg)
			return cp
		}
	}
	return nil
}

// Segment returns a copy of the segment with the given id, or nil.
func (s *Store) Segment(id string) *Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seg := range s.segments {
		if seg.ID == id {
			return s.copySegment(seg)
		}
	}
	return nil
}

// Segments returns copies of all segments in order.
func (s *Store) Segments() []*Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copySegmentsFrom(0)
}

// SegmentsFrom returns copies of segments at index >= from, in order.
// Renderers use this to fetch only what their cursor has not seen.
func (s *Store) SegmentsFrom(from int) []*Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copySegmentsFrom(from)
}

func (s *Store) copySegmentsFrom(from int) []*Segment {
	if from < 0 {
		from = 0
	}
	if from >= len(s.segments) {
		return nil
	}
	out := make([]*Segment, 0, len(s.segments)-from)
	for _, seg := range s.segments[from:] {
		out = append(out, s.copySegment(seg))
	}
	return out
}

func (s *Store) copySegment(seg *Segment) *Segment {
	cp := *seg
	cp.Words = append([]Word(nil), seg.Words...)
	return &cp
}

// Len returns the number of finalized segments.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

// WordCount returns the aggregate word count over the display text of
// every segment.
func (s *Store) WordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalWords
}

// EditedSegmentIDs returns the ids of user-edited segments in the order
// the first edit to each occurred.
func (s *Store) EditedSegmentIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edited.values()
}

// AddBookmark records a review marker at a playback position.
func (s *Store) AddBookmark(timestamp float64, note string, kind BookmarkKind, segmentID string) Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kind == "" {
		kind = BookmarkRevision
	}
	bm := Bookmark{
		ID:        uuid.NewString(),
		Timestamp: timestamp,
		Note:      note,
		Kind:      kind,
		SegmentID: segmentID,
		CreatedAt: s.clock().UTC(),
	}
	s.bookmarks = append(s.bookmarks, bm)
	return bm
}

// Bookmarks returns all markers in creation order.
func (s *Store) Bookmarks() []Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Bookmark(nil), s.bookmarks...)
}

// Reset wipes all session state. Only a session teardown calls this;
// segments are never deleted individually.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = nil
	s.provisional = nil
	s.edited = newOrderedSet()
	s.bookmarks = nil
	s.nextOrder = 0
	s.totalWords = 0
}

func (s *Store) recomputeWordCount() {
	total := 0
	for _, seg := range s.segments {
		total += seg.wordCount()
	}
	s.totalWords = total
}

// orderedSet is an order-preserving unique-membership container used for
// edited-segment tracking.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (o *orderedSet) add(v string) {
	if _, ok := o.seen[v]; ok {
		return
	}
	o.seen[v] = struct{}{}
	o.items = append(o.items, v)
}

func (o *orderedSet) values() []string {
	return append([]string(nil), o.items...)
}
