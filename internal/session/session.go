// Package session wires one hearing together: the recognition stream,
// the consolidation store, the rendered document, audio recording and
// archive persistence.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/actalabs/acta-core/internal/archive"
	"github.com/actalabs/acta-core/internal/bus"
	"github.com/actalabs/acta-core/internal/config"
	"github.com/actalabs/acta-core/internal/enhance"
	"github.com/actalabs/acta-core/internal/protocol"
	"github.com/actalabs/acta-core/internal/render"
	"github.com/actalabs/acta-core/internal/speakers"
	"github.com/actalabs/acta-core/internal/streamclient"
	"github.com/actalabs/acta-core/internal/transcript"
	"github.com/google/uuid"
)

// Session is the per-hearing aggregate. One session owns one stream
// client, one consolidation store and one rendered document; all of its
// methods are safe for concurrent use.
type Session struct {
	id      string
	hearing archive.Hearing
	cfg     config.Config
	logger  *slog.Logger

	store    *transcript.Store
	roster   *speakers.Roster
	tracker  *transcript.ActiveTracker
	syncer   *render.Syncer
	client   *streamclient.Client
	archive  *archive.Store
	enhancer enhance.Enhancer
	rec      *recorder
	metrics  sessionMetrics

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	debouncers map[string]*debouncer
	seq        int
	closed     bool
}

// New assembles a session for the given hearing. The bus client may be
// nil, in which case render deltas are not published.
func New(parent context.Context, cfg config.Config, b *bus.Client, arch *archive.Store, enhancer enhance.Enhancer, hearing archive.Hearing, logger *slog.Logger) (*Session, error) {
	if hearing.ID == "" {
		hearing.ID = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		id:         hearing.ID,
		hearing:    hearing,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "session"), slog.String("session", hearing.ID)),
		store:      transcript.NewStore(cfg.Transcript),
		roster:     speakers.NewRoster(),
		archive:    arch,
		enhancer:   enhancer,
		metrics:    newSessionMetrics(),
		ctx:        ctx,
		cancel:     cancel,
		debouncers: make(map[string]*debouncer),
	}
	s.tracker = transcript.NewActiveTracker(s.store)

	var publish render.Publisher
	if cfg.Render.PublishDeltas && b != nil {
		nc := b.Conn()
		publish = func(delta protocol.RenderDelta) {
			payload, err := json.Marshal(delta)
			if err != nil {
				return
			}
			if err := nc.Publish(protocol.RenderSubject(delta.SessionID), payload); err != nil {
				s.logger.Warn("publish render delta failed", slog.String("error", err.Error()))
			}
		}
	}
	s.syncer = render.NewSyncer(cfg.Render, s.store, s.id, logger, publish)

	s.client = streamclient.New(cfg.Stream, s.id, enhance.Keyterms(cfg.Stream.KeytermLimit), streamclient.Callbacks{
		OnTranscript:    s.handleTranscript,
		OnStatus:        s.handleStatus,
		OnSpeechStarted: func(protocol.SpeechStartedEvent) {},
		OnUtteranceEnd:  s.handleUtteranceEnd,
		OnError:         s.handleStreamError,
		OnStateChange:   s.handleStateChange,
	}, logger)

	if cfg.Session.RecordAudio {
		rec, err := newRecorder(cfg.Session.AudioDir, s.id, cfg.Stream.SampleRate, cfg.Stream.Channels)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("open audio recorder: %w", err)
		}
		s.rec = rec
		s.hearing.AudioPath = rec.Path()
	}

	if s.hearing.Status == "" {
		s.hearing.Status = archive.HearingPending
	}
	if err := arch.UpsertHearing(ctx, s.hearing); err != nil {
		if s.rec != nil {
			if cerr := s.rec.Close(); cerr != nil {
				s.logger.Warn("audio record close failed", slog.String("error", cerr.Error()))
			}
		}
		cancel()
		return nil, fmt.Errorf("register hearing: %w", err)
	}

	return s, nil
}

// ID returns the session (hearing) identifier.
func (s *Session) ID() string { return s.id }

// Start marks the hearing in progress and opens the recognition
// channel.
func (s *Session) Start() error {
	if err := s.archive.SetHearingStatus(s.ctx, s.id, archive.HearingInProgress); err != nil {
		s.logger.Warn("hearing status update failed", slog.String("error", err.Error()))
	}
	return s.client.Connect()
}

// SendAudio forwards one PCM frame to the recognizer, teeing it into
// the WAV record when recording is enabled.
func (s *Session) SendAudio(pcm []byte) error {
	if s.rec != nil {
		if err := s.rec.Append(pcm); err != nil {
			s.logger.Warn("audio record write failed", slog.String("error", err.Error()))
		}
	}
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	s.metrics.recordAudio(s.ctx, s.id, len(pcm))
	return s.client.SendAudioChunk(pcm, seq)
}

func (s *Session) handleTranscript(ev protocol.TranscriptEvent) {
	if ev.Speaker != "" {
		s.roster.Ensure(ev.Speaker)
	}

	if !ev.IsFinal {
		s.store.UpdateProvisional(ev.Text, ev.Speaker, ev.Words)
		s.syncer.Sync()
		return
	}

	seg, outcome := s.store.AddSegment(transcript.Candidate{
		SpeakerID:  ev.Speaker,
		Text:       ev.Text,
		Confidence: ev.Confidence,
		StartTime:  ev.Start,
		EndTime:    ev.End,
		Words:      ev.Words,
	})
	s.syncer.Sync()
	s.metrics.recordSegment(s.ctx, s.id, outcome.String())

	if outcome == transcript.OutcomeDuplicate || seg == nil {
		return
	}
	if err := s.archive.SaveSegment(s.ctx, s.id, seg); err != nil {
		s.logger.Warn("segment persist failed", slog.String("segment", seg.ID), slog.String("error", err.Error()))
	}
	if s.cfg.Enhance.Enabled && s.enhancer != nil {
		go s.enhanceSegment(seg.ID, seg.TextRecognized, s.roster.Label(seg.SpeakerID))
	}
}

func (s *Session) enhanceSegment(segmentID, text, speaker string) {
	res, err := s.enhancer.Enhance(s.ctx, enhance.Request{SegmentID: segmentID, Text: text, Speaker: speaker})
	if err != nil {
		s.logger.Warn("enhance failed", slog.String("segment", segmentID), slog.String("error", err.Error()))
		return
	}
	seg := s.store.SetEnhancedText(segmentID, res.Text)
	if seg == nil {
		return
	}
	s.syncer.Sync()
	if err := s.archive.SaveSegment(s.ctx, s.id, seg); err != nil {
		s.logger.Warn("segment persist failed", slog.String("segment", segmentID), slog.String("error", err.Error()))
	}
}

func (s *Session) handleStatus(ev protocol.StatusEvent) {
	s.logger.Debug("stream status", slog.String("status", ev.Status))
}

func (s *Session) handleUtteranceEnd(protocol.UtteranceEndEvent) {
	s.store.ClearProvisional()
	s.syncer.Sync()
}

func (s *Session) handleStreamError(message string) {
	s.logger.Warn("recognition stream error", slog.String("error", message))
}

func (s *Session) handleStateChange(state transcript.ConnectionState) {
	s.logger.Info("stream state changed", slog.String("state", string(state)))
}

// EditSegment applies a user edit immediately and schedules its
// persistence after the configured quiet period. Persistence is
// fire-and-forget: failures are logged and never surface to the editor.
func (s *Session) EditSegment(segmentID, text string) error {
	seg := s.store.UpdateSegment(segmentID, text)
	if seg == nil {
		return fmt.Errorf("unknown segment %q", segmentID)
	}
	s.syncer.Sync()
	s.metrics.recordEdit(s.ctx, s.id)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session closed")
	}
	d, ok := s.debouncers[segmentID]
	if !ok {
		d = newDebouncer(time.Duration(s.cfg.Session.EditDebounceMS) * time.Millisecond)
		s.debouncers[segmentID] = d
	}
	s.mu.Unlock()

	d.Trigger(func() {
		if err := s.archive.SaveEdit(s.ctx, segmentID, text); err != nil {
			s.logger.Warn("edit persist failed", slog.String("segment", segmentID), slog.String("error", err.Error()))
		}
	})
	return nil
}

// AddBookmark records a marker at the given position.
func (s *Session) AddBookmark(position float64, note string, kind transcript.BookmarkKind, segmentID string) transcript.Bookmark {
	bm := s.store.AddBookmark(position, note, kind, segmentID)
	if err := s.archive.SaveBookmark(s.ctx, s.id, bm); err != nil {
		s.logger.Warn("bookmark persist failed", slog.String("bookmark", bm.ID), slog.String("error", err.Error()))
	}
	return bm
}

// AssignSpeaker gives a diarized speaker a courtroom role and name.
func (s *Session) AssignSpeaker(speakerID string, role speakers.Role, name string) speakers.Speaker {
	return s.roster.Assign(speakerID, role, name)
}

// Roster returns the speaker roster in first-seen order.
func (s *Session) Roster() []speakers.Speaker { return s.roster.List() }

// PlaybackTick advances the playback clock and moves the active
// highlight when the position crosses into a different segment.
func (s *Session) PlaybackTick(position float64) {
	seg, changed := s.tracker.Tick(position)
	if !changed {
		return
	}
	if seg == nil {
		s.syncer.SetActive("")
		return
	}
	s.syncer.SetActive(seg.ID)
}

// StopPlayback clears the active highlight.
func (s *Session) StopPlayback() {
	s.tracker.Reset()
	s.syncer.SetActive("")
}

// HandleScroll forwards a viewport scroll to the auto-scroll gate.
func (s *Session) HandleScroll(distanceFromBottomPX int) {
	s.syncer.HandleScroll(distanceFromBottomPX)
}

// JumpToLive re-enables auto-scroll and jumps to the document end.
func (s *Session) JumpToLive() { s.syncer.JumpToLive() }

// StopTranscription ends recognition but keeps the session open for
// review and editing.
func (s *Session) StopTranscription() error {
	if err := s.client.Stop(); err != nil {
		return err
	}
	if err := s.archive.SetHearingStatus(s.ctx, s.id, archive.HearingTranscribed); err != nil {
		s.logger.Warn("hearing status update failed", slog.String("error", err.Error()))
	}
	return nil
}

// Close tears the session down: debounce timers are cancelled, the
// stream disconnects permanently, the recorder closes and a final
// snapshot of segments, bookmarks and roster lands in the archive.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.debouncers
	s.debouncers = make(map[string]*debouncer)
	s.mu.Unlock()

	for _, d := range pending {
		d.Cancel()
	}
	s.client.Disconnect()

	var firstErr error
	if s.rec != nil {
		if err := s.rec.Close(); err != nil {
			firstErr = err
		}
	}

	for _, seg := range s.store.Segments() {
		if err := s.archive.SaveSegment(s.ctx, s.id, seg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.archive.SaveRoster(s.ctx, s.id, s.roster.List()); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.archive.SetHearingStatus(s.ctx, s.id, archive.HearingInReview); err != nil && firstErr == nil {
		firstErr = err
	}

	s.cancel()
	return firstErr
}

// ConnectionState reports the recognition channel state.
func (s *Session) ConnectionState() transcript.ConnectionState {
	return s.client.State()
}

// Document returns a snapshot of the rendered view.
func (s *Session) Document() render.Document {
	return s.syncer.Document()
}

// Store exposes the consolidation store.
func (s *Session) Store() *transcript.Store { return s.store }
