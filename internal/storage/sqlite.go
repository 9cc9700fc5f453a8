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

	"relaybot/internal/recipient"
	"relaybot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Backend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
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

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Load() (recipient.Set, error) {
	rows, err := s.db.Query(`SELECT chat_id, category FROM recipients`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := recipient.NewSet()
	for rows.Next() {
		var id int64
		var cat string
		if err := rows.Scan(&id, &cat); err != nil {
			return nil, err
		}
		switch recipient.Category(cat) {
		case recipient.User, recipient.Group, recipient.Channel:
			set.Add(id, recipient.Category(cat))
		default:
			s.log.Warn("skipping recipient with unknown category", logx.Int64("chat_id", id), logx.String("category", cat))
		}
	}
	return set, rows.Err()
}

// Save rewrites the recipients table to match the given set. The whole
// replace runs in one transaction so a crash never leaves a partial copy.
func (s *sqliteStore) Save(set recipient.Set) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM recipients`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO recipients(chat_id, category) VALUES(?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, cat := range recipient.Categories() {
		for id := range set[cat] {
			if _, err := stmt.Exec(id, string(cat)); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor_id, chat_id, action, target, ok, fail, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.ActorID, e.ChatID, e.Action,
		nullStr(e.Target), e.OK, e.Fail, nullStr(e.Error), e.TookMS,
	)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
