package render

import (
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/actalabs/acta-core/internal/config"
	"github.com/actalabs/acta-core/internal/protocol"
	"github.com/actalabs/acta-core/internal/transcript"
)

// Publisher receives render deltas as they are applied. The session
// wires this to a bus publish; tests capture the deltas directly.
type Publisher func(protocol.RenderDelta)

// Syncer consumes consolidation store changes and drives minimal,
// append-only mutation of the rendered document. It owns the cursor of
// already-rendered segments, the single provisional node, the
// auto-scroll flag and the active-segment highlight.
type Syncer struct {
	cfg       config.RenderConfig
	store     *transcript.Store
	sessionID string
	logger    *slog.Logger
	publish   Publisher

	mu         sync.Mutex
	doc        Document
	cursor     int
	revisions  map[string]int
	activeID   string
	nearBottom bool
	scrolls    int
	clock      func() time.Time
}

func NewSyncer(cfg config.RenderConfig, store *transcript.Store, sessionID string, logger *slog.Logger, publish Publisher) *Syncer {
	if publish == nil {
		publish = func(protocol.RenderDelta) {}
	}
	return &Syncer{
		cfg:        cfg,
		store:      store,
		sessionID:  sessionID,
		logger:     logger.With(slog.String("component", "render-sync")),
		publish:    publish,
		revisions:  make(map[string]int),
		nearBottom: true,
		clock:      time.Now,
	}
}

// Sync reconciles the document with the store: appends nodes for
// segments past the cursor, re-renders nodes whose segment revision
// moved, and swaps the provisional node.
func (r *Syncer) Sync() {
	r.mu.Lock()
	defer r.mu.Unlock()

	appended := r.syncNewSegments()
	updated := r.syncRevisedSegments()
	r.syncProvisional()

	if (appended || updated) && r.nearBottom {
		r.scrolls++
	}
}

func (r *Syncer) syncNewSegments() bool {
	fresh := r.store.SegmentsFrom(r.cursor)
	if len(fresh) == 0 {
		return false
	}
	for _, seg := range fresh {
		node := r.buildNode(seg)
		// Speaker-label block only when the speaker changes relative to
		// the immediately preceding segment.
		if len(r.doc.Nodes) == 0 || r.doc.Nodes[len(r.doc.Nodes)-1].SpeakerID != seg.SpeakerID {
			node.SpeakerLabel = true
		}
		r.doc.Nodes = append(r.doc.Nodes, node)
		r.revisions[seg.ID] = seg.Revision
		r.cursor++
		r.publish(protocol.RenderDelta{
			SessionID: r.sessionID,
			Kind:      "segment",
			SegmentID: seg.ID,
			Order:     seg.Order,
			Text:      seg.DisplayText(),
			Speaker:   seg.SpeakerID,
			Timestamp: r.clock().UTC(),
		})
	}
	return true
}

func (r *Syncer) syncRevisedSegments() bool {
	changed := false
	for _, seg := range r.store.SegmentsFrom(0) {
		last, seen := r.revisions[seg.ID]
		if !seen || seg.Revision == last {
			continue
		}
		node := r.doc.Node(seg.ID)
		if node == nil {
			continue
		}
		refreshed := r.buildNode(seg)
		node.Words = refreshed.Words
		node.State = refreshed.State
		r.revisions[seg.ID] = seg.Revision
		changed = true
		r.publish(protocol.RenderDelta{
			SessionID: r.sessionID,
			Kind:      "edit",
			SegmentID: seg.ID,
			Order:     seg.Order,
			Text:      seg.DisplayText(),
			Speaker:   seg.SpeakerID,
			Timestamp: r.clock().UTC(),
		})
	}
	return changed
}

func (r *Syncer) syncProvisional() {
	p := r.store.Provisional()

	// The previous ephemeral node is removed unconditionally before any
	// replacement goes in, so the document never holds more than one.
	hadProvisional := r.doc.Provisional != nil
	r.doc.Provisional = nil

	if p == nil {
		if hadProvisional {
			r.publish(protocol.RenderDelta{
				SessionID: r.sessionID,
				Kind:      "provisional_clear",
				Timestamp: r.clock().UTC(),
			})
		}
		return
	}

	node := &SegmentNode{
		SpeakerID: p.SpeakerID,
		State:     NodeProvisional,
		Words:     r.buildWords(p.Words, p.Text),
	}
	r.doc.Provisional = node
	r.publish(protocol.RenderDelta{
		SessionID: r.sessionID,
		Kind:      "provisional",
		Text:      p.Text,
		Speaker:   p.SpeakerID,
		Timestamp: r.clock().UTC(),
	})
}

func (r *Syncer) buildNode(seg *transcript.Segment) *SegmentNode {
	state := NodeFinalized
	if seg.EditedByUser {
		state = NodeEditedFinalized
	}
	// Per-word confidence only applies while the raw recognition is on
	// display; edited or enhanced text has no word alignment.
	words := seg.Words
	if seg.DisplayText() != seg.TextRecognized {
		words = nil
	}
	return &SegmentNode{
		SegmentID: seg.ID,
		SpeakerID: seg.SpeakerID,
		State:     state,
		Words:     r.buildWords(words, seg.DisplayText()),
	}
}

// buildWords renders each word individually. When no per-word detail is
// available (user edits, enhancer output) the display text is split
// without confidence marks.
func (r *Syncer) buildWords(words []transcript.Word, fallback string) []WordSpan {
	if len(words) == 0 {
		var spans []WordSpan
		for _, w := range strings.Fields(fallback) {
			spans = append(spans, WordSpan{Text: w})
		}
		return spans
	}
	spans := make([]WordSpan, 0, len(words))
	for _, w := range words {
		spans = append(spans, WordSpan{
			Text:          w.Word,
			LowConfidence: r.isLowConfidence(w),
		})
	}
	return spans
}

// isLowConfidence applies the triple condition: below the confidence
// threshold, not a function word, and longer than the minimum rune
// count. All three must hold so short grammatical words are never
// flagged.
func (r *Syncer) isLowConfidence(w transcript.Word) bool {
	if w.Confidence >= r.cfg.LowConfidence {
		return false
	}
	if isFunctionWord(w.Word) {
		return false
	}
	return utf8.RuneCountInString(w.Word) > r.cfg.MinFlagWordRunes
}

// SetActive moves the active-segment highlight. Exactly one node is
// active at a time; the previous highlight clears before the new one
// applies. An empty id clears the highlight entirely.
func (r *Syncer) SetActive(segmentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if segmentID == r.activeID {
		return
	}
	if prev := r.doc.Node(r.activeID); prev != nil {
		prev.Active = false
	}
	r.activeID = segmentID
	if segmentID == "" {
		return
	}
	if node := r.doc.Node(segmentID); node != nil {
		node.Active = true
	}
	if r.nearBottom {
		r.scrolls++
	}
	r.publish(protocol.RenderDelta{
		SessionID: r.sessionID,
		Kind:      "active",
		SegmentID: segmentID,
		Timestamp: r.clock().UTC(),
	})
}

// HandleScroll recomputes the near-bottom flag from the viewport's
// distance to the document's bottom edge. It runs on every user scroll
// event and is the sole gate for auto-scrolling.
func (r *Syncer) HandleScroll(distanceFromBottomPX int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nearBottom = distanceFromBottomPX <= r.cfg.ScrollThresholdPX
}

// JumpToLive is the explicit user command: force the flag true and
// scroll to the end immediately.
func (r *Syncer) JumpToLive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nearBottom = true
	r.scrolls++
}

// AutoScrollEnabled reports the near-bottom flag.
func (r *Syncer) AutoScrollEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nearBottom
}

// ScrollRequests counts auto-scrolls issued so far.
func (r *Syncer) ScrollRequests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scrolls
}

// Document returns a shallow snapshot of the rendered document.
func (r *Syncer) Document() Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Document{Nodes: make([]*SegmentNode, len(r.doc.Nodes))}
	for i, n := range r.doc.Nodes {
		cp := *n
		snap.Nodes[i] = &cp
	}
	if r.doc.Provisional != nil {
		cp := *r.doc.Provisional
		snap.Provisional = &cp
	}
	return snap
}
