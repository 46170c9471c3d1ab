package render

import (
	"io"
	"log/slog"
	"testing"

	"github.com/actalabs/acta-core/internal/config"
	"github.com/actalabs/acta-core/internal/protocol"
	"github.com/actalabs/acta-core/internal/transcript"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestSyncer(t *testing.T) (*transcript.Store, *Syncer, *[]protocol.RenderDelta) {
	t.Helper()
	cfg := config.Default()
	store := transcript.NewStore(cfg.Transcript)
	var deltas []protocol.RenderDelta
	syncer := NewSyncer(cfg.Render, store, "session-1", newLogger(), func(d protocol.RenderDelta) {
		deltas = append(deltas, d)
	})
	return store, syncer, &deltas
}

func TestAppendsNewSegmentsWithSpeakerLabels(t *testing.T) {
	store, syncer, _ := newTestSyncer(t)

	store.AddSegment(transcript.Candidate{SpeakerID: "SPEAKER_00", Text: "Buenos dias", StartTime: 0, EndTime: 2})
	store.AddSegment(transcript.Candidate{SpeakerID: "SPEAKER_00", Text: "tomen asiento", StartTime: 5, EndTime: 7})
	store.AddSegment(transcript.Candidate{SpeakerID: "SPEAKER_01", Text: "gracias senor juez", StartTime: 8, EndTime: 10})
	syncer.Sync()

	doc := syncer.Document()
	if len(doc.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(doc.Nodes))
	}
	if !doc.Nodes[0].SpeakerLabel {
		t.Fatal("first node must carry a speaker label")
	}
	if doc.Nodes[1].SpeakerLabel {
		t.Fatal("same-speaker continuation must not repeat the label")
	}
	if !doc.Nodes[2].SpeakerLabel {
		t.Fatal("speaker change must introduce a label")
	}

	// Re-syncing without store changes must append nothing.
	syncer.Sync()
	if got := len(syncer.Document().Nodes); got != 3 {
		t.Fatalf("expected idempotent sync, got %d nodes", got)
	}
}

func TestLowConfidenceTripleCondition(t *testing.T) {
	store, syncer, _ := newTestSyncer(t)

	store.AddSegment(transcript.Candidate{
		SpeakerID: "SPEAKER_00",
		Text:      "la resolucion de el tribunal",
		StartTime: 0,
		EndTime:   3,
		Words: []transcript.Word{
			{Word: "la", Confidence: 0.2},         // function word: never flagged
			{Word: "resolucion", Confidence: 0.5}, // flagged
			{Word: "de", Confidence: 0.1},         // function word and short
			{Word: "el", Confidence: 0.3},         // function word
			{Word: "no", Confidence: 0.4},         // function word, 2 runes
			{Word: "si", Confidence: 0.4},         // short even if unknown (<=2 runes)
			{Word: "tribunal", Confidence: 0.9},   // confident: not flagged
		},
	})
	syncer.Sync()

	words := syncer.Document().Nodes[0].Words
	want := []bool{false, true, false, false, false, false, false}
	for i, flagged := range want {
		if words[i].LowConfidence != flagged {
			t.Fatalf("word %q: expected flagged=%v", words[i].Text, flagged)
		}
	}
}

func TestProvisionalSingleNode(t *testing.T) {
	store, syncer, deltas := newTestSyncer(t)

	store.UpdateProvisional("Se da por", "SPEAKER_00", nil)
	syncer.Sync()
	store.UpdateProvisional("Se da por instalada", "SPEAKER_00", nil)
	syncer.Sync()

	doc := syncer.Document()
	if doc.ProvisionalCount() != 1 {
		t.Fatalf("expected exactly one provisional node, got %d", doc.ProvisionalCount())
	}
	if doc.Provisional.Text() != "Se da por instalada" {
		t.Fatalf("expected replacement, got %q", doc.Provisional.Text())
	}
	if doc.Provisional.State != NodeProvisional {
		t.Fatalf("unexpected state %s", doc.Provisional.State)
	}

	// Final arrival clears the store provisional; a sync removes the
	// ephemeral node and appends the finalized one.
	store.AddSegment(transcript.Candidate{SpeakerID: "SPEAKER_00", Text: "Se da por instalada la audiencia.", StartTime: 0, EndTime: 3})
	syncer.Sync()

	doc = syncer.Document()
	if doc.ProvisionalCount() != 0 {
		t.Fatal("provisional node must be removed after finalization")
	}
	if len(doc.Nodes) != 1 || doc.Nodes[0].State != NodeFinalized {
		t.Fatalf("expected one finalized node, got %+v", doc.Nodes)
	}

	var kinds []string
	for _, d := range *deltas {
		kinds = append(kinds, d.Kind)
	}
	// Last two deltas: the finalized segment append, then the
	// provisional clear.
	if kinds[len(kinds)-2] != "segment" || kinds[len(kinds)-1] != "provisional_clear" {
		t.Fatalf("unexpected delta sequence %v", kinds)
	}
}

func TestEditRerendersNode(t *testing.T) {
	store, syncer, _ := newTestSyncer(t)

	seg, _ := store.AddSegment(transcript.Candidate{SpeakerID: "SPEAKER_00", Text: "la audiensia", StartTime: 0, EndTime: 2})
	syncer.Sync()

	store.UpdateSegment(seg.ID, "La audiencia.")
	syncer.Sync()

	doc := syncer.Document()
	node := doc.Node(seg.ID)
	if node == nil {
		t.Fatal("expected node present")
	}
	if node.State != NodeEditedFinalized {
		t.Fatalf("expected editedFinalized, got %s", node.State)
	}
	if node.Text() != "La audiencia." {
		t.Fatalf("expected edited text, got %q", node.Text())
	}
}

func TestActiveHighlightExclusive(t *testing.T) {
	store, syncer, _ := newTestSyncer(t)

	a, _ := store.AddSegment(transcript.Candidate{SpeakerID: "SPEAKER_00", Text: "primera", StartTime: 0, EndTime: 3})
	b, _ := store.AddSegment(transcript.Candidate{SpeakerID: "SPEAKER_01", Text: "segunda", StartTime: 3, EndTime: 6})
	syncer.Sync()

	syncer.SetActive(a.ID)
	syncer.SetActive(b.ID)

	doc := syncer.Document()
	activeCount := 0
	for _, n := range doc.Nodes {
		if n.Active {
			activeCount++
			if n.SegmentID != b.ID {
				t.Fatal("wrong node highlighted")
			}
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active node, got %d", activeCount)
	}

	syncer.SetActive("")
	for _, n := range syncer.Document().Nodes {
		if n.Active {
			t.Fatal("expected highlight cleared")
		}
	}
}

func TestAutoScrollGate(t *testing.T) {
	store, syncer, _ := newTestSyncer(t)

	// Near the bottom: new content scrolls.
	store.AddSegment(transcript.Candidate{SpeakerID: "SPEAKER_00", Text: "uno", StartTime: 0, EndTime: 1})
	syncer.Sync()
	if syncer.ScrollRequests() != 1 {
		t.Fatalf("expected 1 scroll, got %d", syncer.ScrollRequests())
	}

	// User scrolled up past the threshold: flag drops, no auto-scroll.
	syncer.HandleScroll(500)
	if syncer.AutoScrollEnabled() {
		t.Fatal("expected auto-scroll disabled")
	}
	store.AddSegment(transcript.Candidate{SpeakerID: "SPEAKER_00", Text: "dos", StartTime: 5, EndTime: 6})
	syncer.Sync()
	if syncer.ScrollRequests() != 1 {
		t.Fatal("auto-scroll must not fire while the user reads history")
	}

	// Back within the threshold.
	syncer.HandleScroll(40)
	if !syncer.AutoScrollEnabled() {
		t.Fatal("expected auto-scroll re-enabled")
	}

	// Explicit jump-to-live forces the flag and scrolls immediately.
	syncer.HandleScroll(500)
	syncer.JumpToLive()
	if !syncer.AutoScrollEnabled() {
		t.Fatal("jump-to-live must force the flag")
	}
	if syncer.ScrollRequests() != 2 {
		t.Fatalf("expected immediate scroll, got %d", syncer.ScrollRequests())
	}
}
