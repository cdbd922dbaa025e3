// Package sessionstore implements the Session Store: the durable table of
// sessions keyed by team pair and by session id, backed by an embedded
// relational engine (mattn/go-sqlite3) through jmoiron/sqlx, mirroring the
// teacher's sqlx-based sqlite repositories (internal/secrets/sqlite_store.go,
// internal/workflow/repository/sqlite.go).
package sessionstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/irisorch/iris/internal/ierrors"
)

// Status is the lifecycle state of a Session row.
type Status string

const (
	StatusActive         Status = "active"
	StatusCompactPending Status = "compact_pending"
	StatusArchived       Status = "archived"
)

// Session is one row of the store.
type Session struct {
	ID           int64     `db:"id"`
	FromTeam     string    `db:"from_team"`
	ToTeam       string    `db:"to_team"`
	SessionID    string    `db:"session_id"`
	CreatedAt    time.Time `db:"-"`
	LastUsedAt   time.Time `db:"-"`
	MessageCount int       `db:"message_count"`
	Status       Status    `db:"-"`

	// CreatedAtMs/LastUsedMs/StatusRaw are the actual scan targets: the
	// schema stores epoch-millisecond integers and a bare string, which
	// CreatedAt/LastUsedAt/Status convert to and from on either side of a
	// query.
	CreatedAtMs int64  `db:"created_at"`
	LastUsedMs  int64  `db:"last_used_at"`
	StatusRaw   string `db:"status"`
}

// normalize fills the typed CreatedAt/LastUsedAt/Status fields from the raw
// columns sqlx just scanned into.
func (s *Session) normalize() {
	s.CreatedAt = time.UnixMilli(s.CreatedAtMs).UTC()
	s.LastUsedAt = time.UnixMilli(s.LastUsedMs).UTC()
	s.Status = Status(s.StatusRaw)
}

// Filters narrows a List call.
type Filters struct {
	FromTeam string
	ToTeam   string
	Status   Status
	Limit    int
}

// Stats summarizes the store's contents.
type Stats struct {
	Total         int
	Active        int
	Archived      int
	TotalMessages int
}

// Store is the durable session table.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if necessary) the sqlite database at path and ensures
// its schema exists.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", path))
	if err != nil {
		return nil, ierrors.Configuration(fmt.Sprintf("opening session store at %q: %v", path, err))
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_team TEXT NOT NULL,
	to_team TEXT NOT NULL,
	session_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_used_at INTEGER NOT NULL,
	message_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active'
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_session_id ON sessions(session_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_team_pair ON sessions(from_team, to_team) WHERE status != 'archived';
CREATE INDEX IF NOT EXISTS idx_sessions_last_used_at ON sessions(last_used_at);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return ierrors.Configuration(fmt.Sprintf("initializing session store schema: %v", err))
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func nowMillis() int64 { return time.Now().UTC().UnixMilli() }

const selectCols = `id, from_team, to_team, session_id, created_at, last_used_at, message_count, status`

// Create inserts a new session row. It fails if (fromTeam,toTeam) already
// exists among non-archived rows, or if sessionId exists in any row.
func (s *Store) Create(fromTeam, toTeam, sessionID string) (*Session, error) {
	existing, err := s.GetByTeamPair(fromTeam, toTeam)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ierrors.New(ierrors.KindValidation, fmt.Sprintf("session already exists for (%s,%s)", fromTeam, toTeam))
	}
	if byID, err := s.GetBySessionId(sessionID); err != nil {
		return nil, err
	} else if byID != nil {
		return nil, ierrors.New(ierrors.KindValidation, fmt.Sprintf("sessionId %q already exists", sessionID))
	}

	now := nowMillis()
	res, err := s.db.Exec(
		`INSERT INTO sessions (from_team, to_team, session_id, created_at, last_used_at, message_count, status)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		fromTeam, toTeam, sessionID, now, now, StatusActive,
	)
	if err != nil {
		return nil, ierrors.Transport("failed to insert session", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, ierrors.Transport("failed to read inserted session id", err)
	}
	sess := &Session{
		ID:           id,
		FromTeam:     fromTeam,
		ToTeam:       toTeam,
		SessionID:    sessionID,
		MessageCount: 0,
		CreatedAtMs:  now,
		LastUsedMs:   now,
		StatusRaw:    string(StatusActive),
	}
	sess.normalize()
	return sess, nil
}

// GetByTeamPair returns the session for (fromTeam, toTeam), if any.
func (s *Store) GetByTeamPair(fromTeam, toTeam string) (*Session, error) {
	var sess Session
	err := s.db.Get(&sess,
		`SELECT `+selectCols+` FROM sessions WHERE from_team = ? AND to_team = ? AND status != 'archived'`,
		fromTeam, toTeam,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ierrors.Transport("failed to query session by team pair", err)
	}
	sess.normalize()
	return &sess, nil
}

// GetBySessionId returns the session with the given session id, if any.
func (s *Store) GetBySessionId(sessionID string) (*Session, error) {
	var sess Session
	err := s.db.Get(&sess, `SELECT `+selectCols+` FROM sessions WHERE session_id = ?`, sessionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ierrors.Transport("failed to query session by id", err)
	}
	sess.normalize()
	return &sess, nil
}

// List returns sessions matching filters, ordered by lastUsedAt descending.
func (s *Store) List(f Filters) ([]*Session, error) {
	query := `SELECT ` + selectCols + ` FROM sessions WHERE 1=1`
	var args []interface{}
	if f.FromTeam != "" {
		query += ` AND from_team = ?`
		args = append(args, f.FromTeam)
	}
	if f.ToTeam != "" {
		query += ` AND to_team = ?`
		args = append(args, f.ToTeam)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY last_used_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	var out []*Session
	if err := s.db.Select(&out, query, args...); err != nil {
		return nil, ierrors.Transport("failed to list sessions", err)
	}
	for _, sess := range out {
		sess.normalize()
	}
	return out, nil
}

// UpdateLastUsed sets lastUsedAt to now.
func (s *Store) UpdateLastUsed(sessionID string) error {
	_, err := s.db.Exec(`UPDATE sessions SET last_used_at = ? WHERE session_id = ?`, nowMillis(), sessionID)
	if err != nil {
		return ierrors.Transport("failed to update last_used_at", err)
	}
	return nil
}

// IncrementMessageCount bumps message_count by delta (default 1 by callers).
func (s *Store) IncrementMessageCount(sessionID string, delta int) error {
	_, err := s.db.Exec(`UPDATE sessions SET message_count = message_count + ?, last_used_at = ? WHERE session_id = ?`,
		delta, nowMillis(), sessionID)
	if err != nil {
		return ierrors.Transport("failed to increment message_count", err)
	}
	return nil
}

// UpdateStatus transitions a session's status.
func (s *Store) UpdateStatus(sessionID string, status Status) error {
	_, err := s.db.Exec(`UPDATE sessions SET status = ? WHERE session_id = ?`, string(status), sessionID)
	if err != nil {
		return ierrors.Transport("failed to update status", err)
	}
	return nil
}

// Delete removes the row for sessionID.
func (s *Store) Delete(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return ierrors.Transport("failed to delete session", err)
	}
	return nil
}

// DeleteByTeamPair removes the row for (fromTeam, toTeam).
func (s *Store) DeleteByTeamPair(fromTeam, toTeam string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE from_team = ? AND to_team = ?`, fromTeam, toTeam)
	if err != nil {
		return ierrors.Transport("failed to delete session by team pair", err)
	}
	return nil
}

// GetStats summarizes the store.
func (s *Store) GetStats() (Stats, error) {
	var stats Stats
	row := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(message_count),0) FROM sessions`)
	if err := row.Scan(&stats.Total, &stats.TotalMessages); err != nil {
		return stats, ierrors.Transport("failed to read session stats", err)
	}
	row = s.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE status = 'active'`)
	if err := row.Scan(&stats.Active); err != nil {
		return stats, ierrors.Transport("failed to read active session stats", err)
	}
	row = s.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE status = 'archived'`)
	if err := row.Scan(&stats.Archived); err != nil {
		return stats, ierrors.Transport("failed to read archived session stats", err)
	}
	return stats, nil
}
