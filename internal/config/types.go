// Package config loads and watches the bot configuration. YAML and JSON are
// both accepted; YAML is coerced to JSON so one strict decoder
// (DisallowUnknownFields) covers both formats.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the whole configuration document.
//
// All durations are Go duration strings (e.g. "50ms", "10s").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Admin     AdminConfig     `json:"admin"`
	Broadcast BroadcastConfig `json:"broadcast,omitempty"`
	Cleanup   CleanupConfig   `json:"cleanup,omitempty"`
	Storage   StorageConfig   `json:"storage"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
	Messages  MessagesConfig  `json:"messages,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is the long-poll timeout (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// AdminConfig gates the operator commands: a message is privileged when it
// comes from the admin group or from a listed user ID.
type AdminConfig struct {
	GroupID int64   `json:"group_id,omitempty"`
	UserIDs []int64 `json:"user_ids,omitempty"`
}

type BroadcastConfig struct {
	// SendInterval is the minimum delay between consecutive dispatches
	// (default "50ms").
	SendInterval string `json:"send_interval,omitempty"`
}

// CleanupConfig enables scheduled cleanup sweeps.
type CleanupConfig struct {
	Enabled bool `json:"enabled,omitempty"`
	// Schedule is a cron spec, e.g. "0 4 * * 1" for weekly.
	Schedule string `json:"schedule,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // "file" (default) or "sqlite"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console,omitempty"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// MessagesConfig holds the user-facing texts that operators may want to
// customize without a rebuild.
type MessagesConfig struct {
	// Welcome is the /start reply in private chats.
	Welcome string `json:"welcome,omitempty"`
	// Greeting is sent after the bot joins a group (best-effort).
	Greeting string `json:"greeting,omitempty"`
}

// Validate checks the fields the bot cannot run without.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if c.Cleanup.Enabled && strings.TrimSpace(c.Cleanup.Schedule) == "" {
		return errors.New("cleanup.schedule is required when cleanup.enabled")
	}
	if _, err := durationField("broadcast.send_interval", c.Broadcast.SendInterval, 0); err != nil {
		return err
	}
	if _, err := durationField("telegram.poll_timeout", c.Telegram.PollTimeout, 0); err != nil {
		return err
	}
	if _, err := durationField("storage.busy_timeout", c.Storage.BusyTimeout, 0); err != nil {
		return err
	}
	return nil
}

// SendInterval returns the parsed broadcast pacing interval.
func (c *Config) SendInterval() time.Duration {
	d, err := durationField("broadcast.send_interval", c.Broadcast.SendInterval, 50*time.Millisecond)
	if err != nil {
		return 50 * time.Millisecond
	}
	return d
}

// PollTimeout returns the parsed long-poll timeout.
func (c *Config) PollTimeout() time.Duration {
	d, err := durationField("telegram.poll_timeout", c.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// BusyTimeout returns the parsed sqlite busy timeout.
func (c *Config) BusyTimeout() time.Duration {
	d, err := durationField("storage.busy_timeout", c.Storage.BusyTimeout, 0)
	if err != nil {
		return 0
	}
	return d
}

// durationField parses one of the duration-string config fields. Unset fields
// take the default; set fields must be valid, positive Go durations.
func durationField(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be > 0", path)
	}
	return d, nil
}
