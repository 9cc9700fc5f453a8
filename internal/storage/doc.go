// Package storage provides the persistence layer used by the bot.
//
// It currently supports:
//   - Recipient set durability (load at startup, write-through saves)
//   - Audit log appends (operator actions)
//
// Two drivers exist: "file" (human-readable JSON plus a JSONL audit sidecar)
// and "sqlite" (single database file, WAL mode).
package storage
