package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "stockbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (backend, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", pragma), logx.Err(err))
		}
	}
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode = WAL").Scan(&mode); err != nil {
		log.Warn("sqlite journal mode not set", logx.String("path", path), logx.Err(err))
	} else if !strings.EqualFold(mode, "wal") {
		log.Warn("sqlite not in WAL mode", logx.String("path", path), logx.String("journal_mode", mode))
	}

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(string(b), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) addCommand(ctx context.Context, owner, key string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_commands(owner, command, created_at) VALUES(?,?,?)
		 ON CONFLICT(owner, command) DO NOTHING`,
		owner, key, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	return duplicateIfNone(res)
}

func (s *sqliteStore) removeCommand(ctx context.Context, owner, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_commands WHERE owner = ? AND command = ?`, owner, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) listCommands(ctx context.Context, owner string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT command FROM scheduled_commands WHERE owner = ? ORDER BY id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) hasCommand(ctx context.Context, owner, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM scheduled_commands WHERE owner = ? AND command = ?`, owner, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *sqliteStore) addHint(ctx context.Context, h Hint) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_hints(provider, src, dst) VALUES(?,?,?)
		 ON CONFLICT(provider, src) DO NOTHING`,
		h.Provider, h.Src, h.Dst,
	)
	if err != nil {
		return err
	}
	return duplicateIfNone(res)
}

func (s *sqliteStore) removeHint(ctx context.Context, provider, dst string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM provider_hints WHERE provider = ? AND dst = ? COLLATE NOCASE`, provider, dst)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) listHints(ctx context.Context, provider string) ([]Hint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT provider, src, dst FROM provider_hints WHERE provider = ? ORDER BY id`, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Hint
	for rows.Next() {
		var h Hint
		if err := rows.Scan(&h.Provider, &h.Src, &h.Dst); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *sqliteStore) lookupHint(ctx context.Context, provider, src string) (string, bool, error) {
	var dst string
	err := s.db.QueryRowContext(ctx, `SELECT dst FROM provider_hints WHERE provider = ? AND src = ?`, provider, src).Scan(&dst)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return dst, true, nil
}

func duplicateIfNone(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}
