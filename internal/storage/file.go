package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"relaybot/internal/recipient"
	"relaybot/pkg/logx"
)

// fileStore persists the recipient set as a single human-readable JSON
// document and appends audit entries to a JSONL sidecar.
//
// Files:
//   - <path>                  {"users":[...],"groups":[...],"channels":[...]}
//   - <prefix>.audit.jsonl    append-only JSON Lines
//
// Saves are atomic (temp file + rename) so a crash mid-write never corrupts
// the last good copy.
type fileStore struct {
	log logx.Logger

	mu        sync.Mutex
	path      string
	auditFile *os.File
}

type setDocument struct {
	Users    []int64 `json:"users"`
	Groups   []int64 `json:"groups"`
	Channels []int64 `json:"channels"`
}

func openFile(cfg Config, log logx.Logger) (Backend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	auditPath := filepath.Join(dir, base) + ".audit.jsonl"
	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{log: log, path: path, auditFile: af}, nil
}

func (s *fileStore) Load() (recipient.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Info("no existing recipient file; starting empty", logx.String("path", s.path))
		return recipient.NewSet(), nil
	}
	if err != nil {
		return nil, err
	}

	var doc setDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}

	set := recipient.NewSet()
	for _, id := range doc.Users {
		set.Add(id, recipient.User)
	}
	for _, id := range doc.Groups {
		set.Add(id, recipient.Group)
	}
	for _, id := range doc.Channels {
		set.Add(id, recipient.Channel)
	}
	return set, nil
}

func (s *fileStore) Save(set recipient.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := setDocument{
		Users:    sortedIDs(set[recipient.User]),
		Groups:   sortedIDs(set[recipient.Group]),
		Channels: sortedIDs(set[recipient.Channel]),
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}

// sortedIDs keeps the serialized document stable so identical sets produce
// identical files.
func sortedIDs(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
