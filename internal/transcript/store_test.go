package transcript

import (
	"fmt"
	"sync"
	"testing"

	"github.com/actalabs/acta-core/internal/config"
)

func newTestStore() *Store {
	return NewStore(config.Default().Transcript)
}

func TestInterimThenFinal(t *testing.T) {
	s := newTestStore()

	s.UpdateProvisional("Se da por", "SPEAKER_00", nil)
	s.UpdateProvisional("Se da por instalada", "SPEAKER_00", nil)

	if p := s.Provisional(); p == nil || p.Text != "Se da por instalada" {
		t.Fatalf("expected latest provisional, got %+v", p)
	}

	seg, outcome := s.AddSegment(Candidate{
		SpeakerID:  "SPEAKER_00",
		Text:       "Se da por instalada la audiencia.",
		Confidence: 0.95,
		StartTime:  0,
		EndTime:    3,
	})
	if outcome != OutcomeAppended {
		t.Fatalf("expected append, got %v", outcome)
	}
	if s.Len() != 1 {
		t.Fatalf("expected one segment, got %d", s.Len())
	}
	if seg.TextRecognized != "Se da por instalada la audiencia." {
		t.Fatalf("unexpected text %q", seg.TextRecognized)
	}
	if s.Provisional() != nil {
		t.Fatal("provisional should be cleared after a final arrival")
	}
}

func TestExtensionSupersedesByStartWindow(t *testing.T) {
	s := newTestStore()

	first, _ := s.AddSegment(Candidate{
		SpeakerID: "SPEAKER_00",
		Text:      "Buenos dias",
		StartTime: 0,
		EndTime:   2,
	})

	second, outcome := s.AddSegment(Candidate{
		SpeakerID: "SPEAKER_00",
		Text:      "Buenos dias senor juez",
		StartTime: 0.3,
	})
	if outcome != OutcomeExtended {
		t.Fatalf("expected extension, got %v", outcome)
	}
	if s.Len() != 1 {
		t.Fatalf("expected one segment after extension, got %d", s.Len())
	}
	if second.ID != first.ID || second.Order != first.Order {
		t.Fatal("extension must preserve id and order")
	}
	if second.TextRecognized != "Buenos dias senor juez" {
		t.Fatalf("expected superseding text, got %q", second.TextRecognized)
	}
}

func TestExtensionBySubstringRefinement(t *testing.T) {
	s := newTestStore()

	first, _ := s.AddSegment(Candidate{
		SpeakerID: "SPEAKER_01",
		Text:      "el acusado reconoce",
		StartTime: 12.0,
		EndTime:   14.0,
	})

	// Start falls outside the extension window but the candidate text
	// contains the existing text, so it is a refinement of the same
	// utterance.
	seg, outcome := s.AddSegment(Candidate{
		SpeakerID: "SPEAKER_01",
		Text:      "Senor juez, el acusado reconoce los hechos",
		StartTime: 13.2,
		EndTime:   16.0,
	})
	if outcome != OutcomeExtended {
		t.Fatalf("expected extension, got %v", outcome)
	}
	if seg.ID != first.ID {
		t.Fatal("refinement must land on the original segment")
	}
}

func TestDuplicateRetransmitIdempotent(t *testing.T) {
	s := newTestStore()

	cand := Candidate{
		SpeakerID: "SPEAKER_00",
		Text:      "Gracias",
		StartTime: 10,
		EndTime:   10.8,
	}
	first, outcome := s.AddSegment(cand)
	if outcome != OutcomeAppended {
		t.Fatalf("expected append, got %v", outcome)
	}

	// The extension branch runs before duplicate rejection and matches
	// on start-time proximity, so a byte-identical retransmit
	// consolidates in place; either way exactly one segment survives.
	second, _ := s.AddSegment(cand)
	if s.Len() != 1 {
		t.Fatalf("expected one segment after retransmit, got %d", s.Len())
	}
	if second.ID != first.ID {
		t.Fatal("retransmit must not mint a new segment")
	}
}

func TestDuplicateRejectionDistinctUtterances(t *testing.T) {
	s := newTestStore()

	s.AddSegment(Candidate{SpeakerID: "SPEAKER_00", Text: "Gracias", StartTime: 10, EndTime: 10.5})
	// Same trimmed text from the same speaker within the duplicate
	// window but outside the extension window: discarded.
	seg, outcome := s.AddSegment(Candidate{SpeakerID: "SPEAKER_00", Text: "  Gracias  ", StartTime: 10.7})
	if outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate rejection, got %v", outcome)
	}
	if s.Len() != 1 {
		t.Fatalf("expected one segment, got %d", s.Len())
	}
	if seg == nil || seg.StartTime != 10 {
		t.Fatal("duplicate rejection must leave the original untouched")
	}

	// Same text far away in time is a genuinely new utterance.
	_, outcome = s.AddSegment(Candidate{SpeakerID: "SPEAKER_00", Text: "Gracias", StartTime: 42})
	if outcome != OutcomeAppended {
		t.Fatalf("expected append for distant repeat, got %v", outcome)
	}
	if s.Len() != 2 {
		t.Fatalf("expected two segments, got %d", s.Len())
	}
}

func TestReturnedSegmentIsSnapshot(t *testing.T) {
	s := newTestStore()

	held, _ := s.AddSegment(Candidate{
		SpeakerID: "SPEAKER_00",
		Text:      "buenos dias",
		StartTime: 0,
		EndTime:   2,
		Words:     []Word{{Word: "buenos"}, {Word: "dias"}},
	})

	extended, outcome := s.AddSegment(Candidate{SpeakerID: "SPEAKER_00", Text: "buenos dias senor juez", StartTime: 0.2, EndTime: 3})
	if outcome != OutcomeExtended {
		t.Fatalf("expected extension, got %v", outcome)
	}
	if held.TextRecognized != "buenos dias" {
		t.Fatalf("earlier return value must not follow later mutations, got %q", held.TextRecognized)
	}

	edited := s.UpdateSegment(held.ID, "Buenos días, señor juez.")
	if extended.EditedByUser || extended.TextUserEdited != "" {
		t.Fatal("earlier return value must not follow a later edit")
	}

	s.SetEnhancedText(held.ID, "Buenos días, señor juez")
	if edited.TextEnhanced != "" {
		t.Fatal("earlier return value must not follow later enhancement")
	}

	// Mutating a returned value must not reach the store.
	held.Words[0].Word = "mutado"
	held.TextRecognized = "mutado"
	if got := s.Segment(held.ID).TextRecognized; got != "buenos dias senor juez" {
		t.Fatalf("store state leaked to a caller, got %q", got)
	}
}

func TestConcurrentConsolidationAndReads(t *testing.T) {
	s := newTestStore()
	held, _ := s.AddSegment(Candidate{
		SpeakerID: "SPEAKER_00",
		Text:      "buenos dias",
		StartTime: 0,
		EndTime:   1,
		Words:     []Word{{Word: "buenos"}, {Word: "dias"}},
	})

	// One goroutine keeps extending the segment while another reads the
	// value an earlier call returned, the way persistence and enhancement
	// paths do. The race detector flags any shared interior state.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.AddSegment(Candidate{
				SpeakerID: "SPEAKER_00",
				Text:      fmt.Sprintf("buenos dias %d", i),
				StartTime: 0.1,
				EndTime:   2,
				Words:     []Word{{Word: "buenos"}},
			})
		}
	}()
	var sink int
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			sink += len(held.TextRecognized) + len(held.Words)
		}
	}()
	wg.Wait()

	if sink == 0 {
		t.Fatal("reader observed empty snapshot")
	}
	if s.Len() != 1 {
		t.Fatalf("expected one segment after extensions, got %d", s.Len())
	}
}

func TestOrderingStability(t *testing.T) {
	s := newTestStore()

	var ids []string
	for i := 0; i < 8; i++ {
		seg, _ := s.AddSegment(Candidate{
			SpeakerID: fmt.Sprintf("SPEAKER_%02d", i%3),
			Text:      fmt.Sprintf("intervencion numero %d", i),
			StartTime: float64(i * 10),
			EndTime:   float64(i*10 + 5),
		})
		ids = append(ids, seg.ID)
	}

	segs := s.Segments()
	if len(segs) != 8 {
		t.Fatalf("expected 8 segments, got %d", len(segs))
	}
	for i, seg := range segs {
		if seg.Order != i {
			t.Fatalf("expected strictly increasing order, got %d at index %d", seg.Order, i)
		}
		if seg.ID != ids[i] {
			t.Fatalf("segment position changed at index %d", i)
		}
	}
}

func TestProvisionalExclusivity(t *testing.T) {
	s := newTestStore()

	for i := 0; i < 20; i++ {
		s.UpdateProvisional(fmt.Sprintf("hipotesis %d", i), "SPEAKER_00", nil)
	}
	p := s.Provisional()
	if p == nil {
		t.Fatal("expected one provisional")
	}
	if p.Text != "hipotesis 19" {
		t.Fatalf("expected last hypothesis to win, got %q", p.Text)
	}

	s.ClearProvisional()
	if s.Provisional() != nil {
		t.Fatal("expected empty provisional after clear")
	}
}

func TestUpdateSegmentEditIsMonotonic(t *testing.T) {
	s := newTestStore()

	seg, _ := s.AddSegment(Candidate{SpeakerID: "SPEAKER_00", Text: "la audiensia queda instalada", StartTime: 0, EndTime: 2})

	edited := s.UpdateSegment(seg.ID, "La audiencia queda instalada.")
	if edited == nil || !edited.EditedByUser {
		t.Fatal("expected edited flag set")
	}
	if edited.DisplayText() != "La audiencia queda instalada." {
		t.Fatalf("user edit must win display priority, got %q", edited.DisplayText())
	}

	// A later consolidation of the same utterance keeps the edit flag.
	after, outcome := s.AddSegment(Candidate{SpeakerID: "SPEAKER_00", Text: "la audiencia queda instalada para hoy", StartTime: 0.1, EndTime: 3})
	if outcome != OutcomeExtended {
		t.Fatalf("expected extension, got %v", outcome)
	}
	if !after.EditedByUser {
		t.Fatal("edited flag must never reset")
	}
	if after.DisplayText() != "La audiencia queda instalada." {
		t.Fatal("user edit must survive consolidation")
	}

	if s.UpdateSegment("missing-id", "x") != nil {
		t.Fatal("unknown id must no-op")
	}

	ids := s.EditedSegmentIDs()
	if len(ids) != 1 || ids[0] != seg.ID {
		t.Fatalf("unexpected edited ids %v", ids)
	}
	// Re-editing must not duplicate the membership entry.
	s.UpdateSegment(seg.ID, "La audiencia queda instalada hoy.")
	if len(s.EditedSegmentIDs()) != 1 {
		t.Fatal("edited tracking must be unique-membership")
	}
}

func TestDisplayPriority(t *testing.T) {
	s := newTestStore()
	seg, _ := s.AddSegment(Candidate{SpeakerID: "SPEAKER_00", Text: "texto reconocido", StartTime: 0, EndTime: 1})

	if got := s.Segment(seg.ID).DisplayText(); got != "texto reconocido" {
		t.Fatalf("expected recognized text, got %q", got)
	}

	s.SetEnhancedText(seg.ID, "Texto mejorado.")
	if got := s.Segment(seg.ID).DisplayText(); got != "Texto mejorado." {
		t.Fatalf("expected enhanced text, got %q", got)
	}

	s.UpdateSegment(seg.ID, "Texto del digitador.")
	if got := s.Segment(seg.ID).DisplayText(); got != "Texto del digitador." {
		t.Fatalf("expected user edit, got %q", got)
	}
}

func TestWordCountFollowsDisplayText(t *testing.T) {
	s := newTestStore()
	seg, _ := s.AddSegment(Candidate{SpeakerID: "SPEAKER_00", Text: "uno dos tres", StartTime: 0, EndTime: 1})
	s.AddSegment(Candidate{SpeakerID: "SPEAKER_01", Text: "cuatro cinco", StartTime: 5, EndTime: 6})

	if got := s.WordCount(); got != 5 {
		t.Fatalf("expected 5 words, got %d", got)
	}

	s.UpdateSegment(seg.ID, "uno dos tres cuatro")
	if got := s.WordCount(); got != 6 {
		t.Fatalf("expected 6 words after edit, got %d", got)
	}
}

func TestSegmentAtTime(t *testing.T) {
	s := newTestStore()
	a, _ := s.AddSegment(Candidate{SpeakerID: "SPEAKER_00", Text: "primera", StartTime: 0, EndTime: 3})
	b, _ := s.AddSegment(Candidate{SpeakerID: "SPEAKER_01", Text: "segunda", StartTime: 3, EndTime: 6})
	c, _ := s.AddSegment(Candidate{SpeakerID: "SPEAKER_00", Text: "sin fin", StartTime: 20})

	cases := []struct {
		t    float64
		want string
	}{
		{0, a.ID},
		{2.99, a.ID},
		{3, b.ID},
		{5.5, b.ID},
		{20, c.ID},
		{24.9, c.ID}, // absent end treated as start + default duration
	}
	for _, tc := range cases {
		got := s.SegmentAtTime(tc.t)
		if got == nil || got.ID != tc.want {
			t.Fatalf("SegmentAtTime(%v): expected %s, got %+v", tc.t, tc.want, got)
		}
	}

	for _, outside := range []float64{-1, 6, 19.99, 25, 100} {
		if got := s.SegmentAtTime(outside); got != nil {
			t.Fatalf("SegmentAtTime(%v): expected none, got %s", outside, got.ID)
		}
	}
}

func TestBookmarksIndependentOfSegments(t *testing.T) {
	s := newTestStore()
	bm := s.AddBookmark(42.5, "revisar objecion", BookmarkImportant, "")
	if bm.ID == "" || bm.CreatedAt.IsZero() {
		t.Fatal("bookmark must get id and timestamp")
	}
	s.AddBookmark(61.0, "", "", "")

	all := s.Bookmarks()
	if len(all) != 2 {
		t.Fatalf("expected 2 bookmarks, got %d", len(all))
	}
	if all[1].Kind != BookmarkRevision {
		t.Fatalf("expected default kind, got %s", all[1].Kind)
	}
}

func TestResetWipesEverything(t *testing.T) {
	s := newTestStore()
	s.AddSegment(Candidate{SpeakerID: "SPEAKER_00", Text: "algo", StartTime: 0, EndTime: 1})
	s.UpdateProvisional("parcial", "SPEAKER_00", nil)
	s.AddBookmark(1, "nota", BookmarkRevision, "")

	s.Reset()

	if s.Len() != 0 || s.Provisional() != nil || len(s.Bookmarks()) != 0 || s.WordCount() != 0 {
		t.Fatal("reset must wipe all state")
	}

	// Order restarts from zero for a fresh session.
	seg, _ := s.AddSegment(Candidate{SpeakerID: "SPEAKER_00", Text: "nuevo", StartTime: 0, EndTime: 1})
	if seg.Order != 0 {
		t.Fatalf("expected order 0 after reset, got %d", seg.Order)
	}
}
