package transcript

import "sync"

// ActiveTracker maps the continuous playback clock to the segment active
// at that position. It is called on every playback tick (commonly 10-60
// times per second) and keeps no state beyond the active pointer, so
// ticks are cheap and self-correcting: a tick that races a segment
// arrival is fixed by the next one.
type ActiveTracker struct {
	store *Store

	mu     sync.Mutex
	active string
}

func NewActiveTracker(store *Store) *ActiveTracker {
	return &ActiveTracker{store: store}
}

// Tick looks up the segment at playback position t and updates the
// active pointer if it changed. It returns the active segment (nil when
// none covers t) and whether the pointer moved.
func (a *ActiveTracker) Tick(t float64) (*Segment, bool) {
	seg := a.store.SegmentAtTime(t)

	a.mu.Lock()
	defer a.mu.Unlock()

	id := ""
	if seg != nil {
		id = seg.ID
	}
	if id == a.active {
		return seg, false
	}
	a.active = id
	return seg, true
}

// ActiveID returns the id of the currently active segment, or empty.
func (a *ActiveTracker) ActiveID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Reset clears the active pointer, e.g. when playback stops.
func (a *ActiveTracker) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = ""
}
