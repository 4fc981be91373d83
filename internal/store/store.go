package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/matchdesk/matchdesk/internal/hub"
	"github.com/matchdesk/matchdesk/internal/match"
)

// ErrCurrentConflict rejects a write that would leave two matches
// flagged current. The text is surfaced verbatim to operators.
var ErrCurrentConflict = errors.New("There is already a current match")

var ErrNotFound = errors.New("match not found")

// Publisher receives current-match change notifications after a write
// commits. The broadcast hub satisfies it; tests inject a fake.
type Publisher interface {
	PublishMatch(ev hub.MatchEvent)
}

// Config holds the parameters for opening a match store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// file is created if it does not exist. Use ":memory:" with
	// PoolSize 1 in tests.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative.
	PoolSize int

	// Publisher receives match-changed events. Required.
	Publisher Publisher

	// Logger receives operational messages. Required.
	Logger *zap.Logger
}

// Store persists matches in embedded SQLite with the veto sequence in
// a single JSON column. It owns the single-current-match invariant:
// the flag is flipped with one conditional UPDATE, never a check
// followed by a separate write.
type Store struct {
	pool      *sqlitex.Pool
	publisher Publisher
	logger    *zap.Logger
}

const schema = `CREATE TABLE IF NOT EXISTS matches (
	id TEXT PRIMARY KEY,
	current INTEGER NOT NULL DEFAULT 0,
	left_id TEXT,
	left_wins INTEGER NOT NULL DEFAULT 0,
	right_id TEXT,
	right_wins INTEGER NOT NULL DEFAULT 0,
	match_type TEXT NOT NULL,
	vetos TEXT NOT NULL DEFAULT '[]'
)`

const matchColumns = "id, current, left_id, left_wins, right_id, right_wins, match_type, vetos"

// Open creates the connection pool, applies pragmas and creates the
// schema. The caller must Close the store when done.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: Path is required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("store: Publisher is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("store: Logger is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", cfg.Path, err)
	}

	cfg.Logger.Info("match store opened", zap.String("path", cfg.Path), zap.Int("pool_size", poolSize))
	return &Store{pool: pool, publisher: cfg.Publisher, logger: cfg.Logger}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteTransient(conn, schema, nil); err != nil {
		return fmt.Errorf("store: creating schema: %w", err)
	}
	return nil
}

// Close closes the underlying pool. Blocks until borrowed connections
// are returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

// ListAll returns every match.
func (s *Store) ListAll(ctx context.Context) ([]match.Match, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	matches := []match.Match{}
	err = sqlitex.Execute(conn, "SELECT "+matchColumns+" FROM matches", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			m, err := scanMatch(stmt)
			if err != nil {
				return err
			}
			matches = append(matches, m)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing matches: %w", err)
	}
	return matches, nil
}

// GetByID returns one match or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*match.Match, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)
	return getByID(conn, id)
}

func getByID(conn *sqlite.Conn, id string) (*match.Match, error) {
	var found *match.Match
	err := sqlitex.Execute(conn, "SELECT "+matchColumns+" FROM matches WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			m, err := scanMatch(stmt)
			if err != nil {
				return err
			}
			found = &m
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: getting match %s: %w", id, err)
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// GetCurrent returns the match flagged current, or nil when there is
// none.
func (s *Store) GetCurrent(ctx context.Context) (*match.Match, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var found *match.Match
	err = sqlitex.Execute(conn, "SELECT "+matchColumns+" FROM matches WHERE current = 1", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			m, err := scanMatch(stmt)
			if err != nil {
				return err
			}
			found = &m
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: getting current match: %w", err)
	}
	return found, nil
}

// Create inserts a match under a fresh id and returns the id. The
// incoming current flag is stored as given; callers route "become
// current" through SetCurrent.
func (s *Store) Create(ctx context.Context, m match.Match) (string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", err
	}
	defer s.pool.Put(conn)

	m.ID = uuid.NewString()
	vetos, err := encodeVetos(m.Vetos)
	if err != nil {
		return "", err
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO matches (id, current, left_id, left_wins, right_id, right_wins, match_type, vetos)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				m.ID, boolToInt(m.Current),
				textOrNull(m.Left.ID), m.Left.Wins,
				textOrNull(m.Right.ID), m.Right.Wins,
				string(m.MatchType), vetos,
			},
		})
	if err != nil {
		return "", fmt.Errorf("store: creating match: %w", err)
	}
	return m.ID, nil
}

// Update persists a match's sides, type and veto sequence in one
// transaction. If the write would flag a second match current it is
// rejected with ErrCurrentConflict. When the match is, or was, the
// current one, subscribers are notified after the commit so they
// reconcile even for score-only edits of the live match.
func (s *Store) Update(ctx context.Context, m match.Match) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	vetos, err := encodeVetos(m.Vetos)
	if err != nil {
		return err
	}

	wasCurrent := false
	commit := func() (err error) {
		defer sqlitex.Save(conn)(&err)

		prev, err := getByID(conn, m.ID)
		if err != nil {
			return err
		}
		wasCurrent = prev.Current

		if m.Current {
			other, err := otherCurrentExists(conn, m.ID)
			if err != nil {
				return err
			}
			if other {
				return ErrCurrentConflict
			}
		}

		return sqlitex.Execute(conn,
			`UPDATE matches SET current = ?, left_id = ?, left_wins = ?, right_id = ?, right_wins = ?, match_type = ?, vetos = ?
			 WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{
					boolToInt(m.Current),
					textOrNull(m.Left.ID), m.Left.Wins,
					textOrNull(m.Right.ID), m.Right.Wins,
					string(m.MatchType), vetos,
					m.ID,
				},
			})
	}
	if err := commit(); err != nil {
		return err
	}

	if m.Current || wasCurrent {
		s.publisher.PublishMatch(hub.MatchEvent{ID: m.ID, Current: m.Current})
	}
	return nil
}

// SetCurrent flips the current flag. Enabling is a single conditional
// UPDATE that only succeeds while no other match holds the flag, so
// concurrent callers cannot both win. Disabling always succeeds for an
// existing match. Subscribers are notified on success.
func (s *Store) SetCurrent(ctx context.Context, id string, current bool) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if current {
		err = sqlitex.Execute(conn,
			`UPDATE matches SET current = 1
			 WHERE id = ? AND NOT EXISTS (SELECT 1 FROM matches WHERE current = 1 AND id <> ?)`,
			&sqlitex.ExecOptions{Args: []any{id, id}})
		if err != nil {
			return fmt.Errorf("store: setting current match: %w", err)
		}
		if conn.Changes() == 0 {
			// Either the row is missing or another match holds the
			// flag; look once more to report the right error.
			if _, err := getByID(conn, id); err != nil {
				return err
			}
			return ErrCurrentConflict
		}
	} else {
		err = sqlitex.Execute(conn,
			"UPDATE matches SET current = 0 WHERE id = ?",
			&sqlitex.ExecOptions{Args: []any{id}})
		if err != nil {
			return fmt.Errorf("store: clearing current match: %w", err)
		}
		if conn.Changes() == 0 {
			return ErrNotFound
		}
	}

	s.publisher.PublishMatch(hub.MatchEvent{ID: id, Current: current})
	return nil
}

// Remove deletes a match. Removing the current match notifies
// subscribers with current=false so they stop treating it as live.
func (s *Store) Remove(ctx context.Context, id string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	wasCurrent := false
	commit := func() (err error) {
		defer sqlitex.Save(conn)(&err)

		prev, err := getByID(conn, id)
		if err != nil {
			return err
		}
		wasCurrent = prev.Current

		return sqlitex.Execute(conn, "DELETE FROM matches WHERE id = ?",
			&sqlitex.ExecOptions{Args: []any{id}})
	}
	if err := commit(); err != nil {
		return err
	}

	if wasCurrent {
		s.publisher.PublishMatch(hub.MatchEvent{ID: id, Current: false})
	}
	return nil
}

func otherCurrentExists(conn *sqlite.Conn, id string) (bool, error) {
	exists := false
	err := sqlitex.Execute(conn,
		"SELECT 1 FROM matches WHERE current = 1 AND id <> ?",
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(*sqlite.Stmt) error {
				exists = true
				return nil
			},
		})
	return exists, err
}

func scanMatch(stmt *sqlite.Stmt) (match.Match, error) {
	m := match.Match{
		ID:      stmt.ColumnText(0),
		Current: stmt.ColumnInt(1) != 0,
		Left: match.Side{
			ID:   columnTextPtr(stmt, 2),
			Wins: stmt.ColumnInt(3),
		},
		Right: match.Side{
			ID:   columnTextPtr(stmt, 4),
			Wins: stmt.ColumnInt(5),
		},
		MatchType: match.Type(stmt.ColumnText(6)),
	}
	if err := json.Unmarshal([]byte(stmt.ColumnText(7)), &m.Vetos); err != nil {
		return match.Match{}, fmt.Errorf("store: decoding vetos for match %s: %w", m.ID, err)
	}
	return m, nil
}

func encodeVetos(vetos []match.Veto) (string, error) {
	if vetos == nil {
		vetos = []match.Veto{}
	}
	data, err := json.Marshal(vetos)
	if err != nil {
		return "", fmt.Errorf("store: encoding vetos: %w", err)
	}
	return string(data), nil
}

func columnTextPtr(stmt *sqlite.Stmt, col int) *string {
	if stmt.ColumnType(col) == sqlite.TypeNull {
		return nil
	}
	v := stmt.ColumnText(col)
	return &v
}

func textOrNull(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
