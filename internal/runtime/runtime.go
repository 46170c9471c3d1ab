// Package runtime hosts the daemon shell: the embedded broker, the
// shared bus connection, the archive, the session registry controlled
// over the bus, the health endpoints and telemetry.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/actalabs/acta-core/internal/archive"
	"github.com/actalabs/acta-core/internal/bus"
	"github.com/actalabs/acta-core/internal/config"
	"github.com/actalabs/acta-core/internal/enhance"
	"github.com/actalabs/acta-core/internal/natsserver"
	"github.com/actalabs/acta-core/internal/protocol"
	"github.com/actalabs/acta-core/internal/session"
	"github.com/actalabs/acta-core/internal/speakers"
	"github.com/actalabs/acta-core/internal/transcript"
	"github.com/nats-io/nats.go"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	embedded *natsserver.EmbeddedServer
	bus      *bus.Client
	archive  *archive.Store
	enhancer enhance.Enhancer

	mu       sync.Mutex
	sessions map[string]*session.Session
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*session.Session),
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded broker: %w", err)
	}
	r.embedded = embedded

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	r.bus = busClient

	if r.cfg.Render.PublishDeltas {
		maxAge := time.Duration(r.cfg.Archive.RetentionDays) * 24 * time.Hour
		if err := busClient.EnsureRenderStream(maxAge); err != nil {
			return fmt.Errorf("provision render stream: %w", err)
		}
	}

	arch, err := archive.Open(ctx, r.cfg.Archive, r.logger)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	r.archive = arch

	enhancer, err := enhance.New(r.cfg.Enhance)
	if err != nil {
		return fmt.Errorf("setup enhancer: %w", err)
	}
	r.enhancer = enhancer

	ctrlSub, err := busClient.Conn().Subscribe(protocol.SubjectHearingControl, func(msg *nats.Msg) {
		r.handleControl(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe hearing control: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := ctrlSub.Drain(); err != nil {
		r.logger.Warn("control drain error", slog.String("error", err.Error()))
	}
	r.closeAllSessions()

	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	r.bus.Close()
	if err := r.archive.Close(); err != nil {
		r.logger.Error("archive close error", slog.String("error", err.Error()))
	}
	r.embedded.Shutdown()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// OpenSession creates and starts a session for the given hearing.
func (r *Runtime) OpenSession(ctx context.Context, hearing archive.Hearing) (*session.Session, error) {
	s, err := session.New(ctx, r.cfg, r.bus, r.archive, r.enhancer, hearing, r.logger)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.sessions[s.ID()]; exists {
		r.mu.Unlock()
		s.Close()
		return nil, fmt.Errorf("hearing %q already open", s.ID())
	}
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	if err := s.Start(); err != nil {
		r.mu.Lock()
		delete(r.sessions, s.ID())
		r.mu.Unlock()
		s.Close()
		return nil, err
	}
	return s, nil
}

// Session looks up an open session by hearing id.
func (r *Runtime) Session(hearingID string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[hearingID]
	return s, ok
}

// CloseSession tears a session down and removes it from the registry.
func (r *Runtime) CloseSession(hearingID string) error {
	r.mu.Lock()
	s, ok := r.sessions[hearingID]
	delete(r.sessions, hearingID)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown hearing %q", hearingID)
	}
	return s.Close()
}

func (r *Runtime) closeAllSessions() {
	r.mu.Lock()
	open := r.sessions
	r.sessions = make(map[string]*session.Session)
	r.mu.Unlock()

	for id, s := range open {
		if err := s.Close(); err != nil {
			r.logger.Warn("session close error", slog.String("session", id), slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) handleControl(ctx context.Context, msg *nats.Msg) {
	var cmd protocol.HearingCommand
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		r.logger.Warn("malformed hearing command", slog.String("error", err.Error()))
		return
	}
	if err := r.dispatchControl(ctx, cmd); err != nil {
		r.logger.Warn("hearing command failed",
			slog.String("action", cmd.Action),
			slog.String("hearing", cmd.HearingID),
			slog.String("error", err.Error()))
	}
}

func (r *Runtime) dispatchControl(ctx context.Context, cmd protocol.HearingCommand) error {
	if cmd.Action == protocol.ActionOpen {
		_, err := r.OpenSession(ctx, archive.Hearing{
			ID:        cmd.HearingID,
			CaseFile:  cmd.CaseFile,
			Courtroom: cmd.Courtroom,
		})
		return err
	}

	s, ok := r.Session(cmd.HearingID)
	if !ok {
		return fmt.Errorf("unknown hearing %q", cmd.HearingID)
	}

	switch cmd.Action {
	case protocol.ActionStop:
		return s.StopTranscription()
	case protocol.ActionClose:
		return r.CloseSession(cmd.HearingID)
	case protocol.ActionEdit:
		return s.EditSegment(cmd.SegmentID, cmd.Text)
	case protocol.ActionBookmark:
		s.AddBookmark(cmd.Position, cmd.Note, transcript.BookmarkKind(cmd.Kind), cmd.SegmentID)
		return nil
	case protocol.ActionAssignSpeaker:
		s.AssignSpeaker(cmd.SpeakerID, speakers.Role(cmd.Role), cmd.Name)
		return nil
	case protocol.ActionScroll:
		s.HandleScroll(cmd.Distance)
		return nil
	case protocol.ActionJumpLive:
		s.JumpToLive()
		return nil
	case protocol.ActionTick:
		s.PlaybackTick(cmd.Position)
		return nil
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.bus.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
