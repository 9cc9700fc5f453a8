package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"relaybot/internal/recipient"
	"relaybot/pkg/logx"
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON document backend (default)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records an operator action. Keep it compact and schema-stable.
type AuditEntry struct {
	At      time.Time `json:"at"`
	ActorID int64     `json:"actor_id"`
	ChatID  int64     `json:"chat_id"`
	Action  string    `json:"action"`
	Target  string    `json:"target,omitempty"`
	OK      int       `json:"ok"`
	Fail    int       `json:"fail"`
	Error   string    `json:"error,omitempty"`
	TookMS  int64     `json:"took_ms"`
}

// Backend is the persistence API used by the registry and the command layer.
type Backend interface {
	Load() (recipient.Set, error)
	Save(recipient.Set) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured backend.
func Open(cfg Config, log logx.Logger) (Backend, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
