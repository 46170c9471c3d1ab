package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/actalabs/acta-core/internal/config"
	"github.com/actalabs/acta-core/internal/speakers"
	"github.com/actalabs/acta-core/internal/transcript"
	_ "modernc.org/sqlite"
)

// Hearing is the court-session record segments hang off.
type Hearing struct {
	ID        string
	CaseFile  string
	Courtroom string
	Status    string
	AudioPath string
	CreatedAt time.Time
}

// Hearing status values follow the session lifecycle.
const (
	HearingPending     = "pendiente"
	HearingInProgress  = "en_curso"
	HearingTranscribed = "transcrita"
	HearingInReview    = "en_revision"
	HearingFinalized   = "finalizada"
)

// Store wraps SQLite persistence for hearings, finalized segments, user
// edits, bookmarks and the speaker roster. Retention mode "ephemeral"
// turns every call into a no-op, mirroring a session with persistence
// disabled.
type Store struct {
	db    *sql.DB
	cfg   config.ArchiveConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the archive according to config.
func Open(ctx context.Context, cfg config.ArchiveConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("archive vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("archive prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS hearings (
    hearing_id TEXT PRIMARY KEY,
    case_file TEXT,
    courtroom TEXT,
    status TEXT NOT NULL,
    audio_path TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS segments (
    segment_id TEXT PRIMARY KEY,
    hearing_id TEXT NOT NULL,
    speaker_id TEXT NOT NULL,
    text_recognized TEXT NOT NULL,
    text_enhanced TEXT,
    text_edited TEXT,
    start_time REAL NOT NULL,
    end_time REAL,
    confidence REAL NOT NULL,
    edited_by_user INTEGER NOT NULL DEFAULT 0,
    seq INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(hearing_id) REFERENCES hearings(hearing_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_segments_hearing_seq ON segments(hearing_id, seq);
CREATE TABLE IF NOT EXISTS bookmarks (
    bookmark_id TEXT PRIMARY KEY,
    hearing_id TEXT NOT NULL,
    position REAL NOT NULL,
    note TEXT,
    kind TEXT NOT NULL,
    segment_id TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(hearing_id) REFERENCES hearings(hearing_id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS roster (
    hearing_id TEXT NOT NULL,
    speaker_id TEXT NOT NULL,
    role TEXT NOT NULL,
    label TEXT NOT NULL,
    name TEXT,
    color TEXT,
    seq INTEGER NOT NULL,
    PRIMARY KEY(hearing_id, speaker_id),
    FOREIGN KEY(hearing_id) REFERENCES hearings(hearing_id) ON DELETE CASCADE
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertHearing ensures a hearing row exists, refreshing its mutable
// fields.
func (s *Store) UpsertHearing(ctx context.Context, h Hearing) error {
	if s.db == nil {
		return nil
	}
	if h.Status == "" {
		h.Status = HearingPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hearings(hearing_id, case_file, courtroom, status, audio_path, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hearing_id) DO UPDATE SET
		   case_file=excluded.case_file, courtroom=excluded.courtroom,
		   status=excluded.status, audio_path=excluded.audio_path`,
		h.ID, h.CaseFile, h.Courtroom, h.Status, h.AudioPath, s.clock().UTC())
	return err
}

// SetHearingStatus advances the hearing lifecycle.
func (s *Store) SetHearingStatus(ctx context.Context, hearingID, status string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE hearings SET status=? WHERE hearing_id=?`, status, hearingID)
	return err
}

// SaveSegment writes a finalized segment, replacing any earlier row for
// the same id so consolidation updates land on the stored copy too.
func (s *Store) SaveSegment(ctx context.Context, hearingID string, seg *transcript.Segment) error {
	if s.db == nil {
		return nil
	}
	edited := 0
	if seg.EditedByUser {
		edited = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO segments(segment_id, hearing_id, speaker_id, text_recognized, text_enhanced,
		   text_edited, start_time, end_time, confidence, edited_by_user, seq, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(segment_id) DO UPDATE SET
		   text_recognized=excluded.text_recognized, text_enhanced=excluded.text_enhanced,
		   text_edited=excluded.text_edited, end_time=excluded.end_time,
		   confidence=excluded.confidence, edited_by_user=excluded.edited_by_user`,
		seg.ID, hearingID, seg.SpeakerID, seg.TextRecognized, nullable(seg.TextEnhanced),
		nullable(seg.TextUserEdited), seg.StartTime, seg.EndTime, seg.Confidence,
		edited, seg.Order, s.clock().UTC())
	return err
}

// SaveEdit records a user edit for a stored segment. This is the
// fire-and-forget persistence target: callers log failures and move on.
func (s *Store) SaveEdit(ctx context.Context, segmentID, textEdited string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE segments SET text_edited=?, edited_by_user=1 WHERE segment_id=?`,
		textEdited, segmentID)
	return err
}

// SaveBookmark persists a review marker.
func (s *Store) SaveBookmark(ctx context.Context, hearingID string, bm transcript.Bookmark) error {
	if s.db == nil {
		return nil
	}
	created := bm.CreatedAt
	if created.IsZero() {
		created = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bookmarks(bookmark_id, hearing_id, position, note, kind, segment_id, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		bm.ID, hearingID, bm.Timestamp, bm.Note, string(bm.Kind), nullable(bm.SegmentID), created)
	return err
}

// SaveRoster persists the speaker roster for a hearing.
func (s *Store) SaveRoster(ctx context.Context, hearingID string, roster []speakers.Speaker) error {
	if s.db == nil {
		return nil
	}
	for _, sp := range roster {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO roster(hearing_id, speaker_id, role, label, name, color, seq)
			 VALUES(?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(hearing_id, speaker_id) DO UPDATE SET
			   role=excluded.role, label=excluded.label, name=excluded.name, color=excluded.color`,
			hearingID, sp.ID, string(sp.Role), sp.Label, nullable(sp.Name), sp.Color, sp.Order)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListSegments retrieves stored segments in transcript order.
func (s *Store) ListSegments(ctx context.Context, hearingID string) ([]*transcript.Segment, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT segment_id, speaker_id, text_recognized, text_enhanced, text_edited,
		   start_time, end_time, confidence, edited_by_user, seq
		 FROM segments WHERE hearing_id = ? ORDER BY seq ASC`, hearingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*transcript.Segment
	for rows.Next() {
		var seg transcript.Segment
		var enhanced, edited sql.NullString
		var end sql.NullFloat64
		var editedFlag int
		if err := rows.Scan(&seg.ID, &seg.SpeakerID, &seg.TextRecognized, &enhanced, &edited,
			&seg.StartTime, &end, &seg.Confidence, &editedFlag, &seg.Order); err != nil {
			return nil, err
		}
		seg.TextEnhanced = enhanced.String
		seg.TextUserEdited = edited.String
		seg.EndTime = end.Float64
		seg.EditedByUser = editedFlag != 0
		out = append(out, &seg)
	}
	return out, rows.Err()
}

// ListBookmarks retrieves a hearing's markers in creation order.
func (s *Store) ListBookmarks(ctx context.Context, hearingID string) ([]transcript.Bookmark, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT bookmark_id, position, note, kind, segment_id, created_at
		 FROM bookmarks WHERE hearing_id = ? ORDER BY created_at ASC`, hearingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []transcript.Bookmark
	for rows.Next() {
		var bm transcript.Bookmark
		var segID sql.NullString
		var kind string
		var created string
		if err := rows.Scan(&bm.ID, &bm.Timestamp, &bm.Note, &kind, &segID, &created); err != nil {
			return nil, err
		}
		bm.Kind = transcript.BookmarkKind(kind)
		bm.SegmentID = segID.String
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			bm.CreatedAt = ts
		}
		out = append(out, bm)
	}
	return out, rows.Err()
}

// Prune applies configured retention.
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM segments WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM hearings WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxHearings > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM hearings WHERE hearing_id IN (
			SELECT hearing_id FROM hearings ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxHearings)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
