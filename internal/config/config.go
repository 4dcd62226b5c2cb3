// Package config holds runtime settings for the everyday CLI and daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config is resolved as Default, then EVERYDAY_* environment variables,
// then command-line flags.
type Config struct {
	DataDir  string // root of the database and media files
	DBFile   string // SQLite file name inside DataDir
	MediaDir string // persisted images; defaults to DataDir

	TokenKey string // HS256 key for session tokens
	Token    string // explicit session token; the token file is used when empty

	ColorTimeout time.Duration
	SkipSync     bool // record new memories as local_only

	RemoteDSN     string // Postgres mirror; empty disables remote sync
	RemoteBaseURL string

	SyncInterval time.Duration
	SyncBatch    int
	MaxAttempts  int

	ListenAddr string
	TLSCert    string
	TLSKey     string
	Dev        bool
}

// Default returns settings rooted at the user's data directory.
func Default() Config {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".local", "share")
	}
	return Config{
		DataDir:       filepath.Join(dir, "everyday"),
		DBFile:        "everyday.db",
		ColorTimeout:  3 * time.Second,
		RemoteBaseURL: "https://media.everyday.local",
		SyncInterval:  30 * time.Second,
		SyncBatch:     20,
		MaxAttempts:   5,
		ListenAddr:    "127.0.0.1:8443",
	}
}

// DBPath is the full path of the SQLite database.
func (c Config) DBPath() string { return filepath.Join(c.DataDir, c.DBFile) }

// MediaRoot is where memory images are persisted.
func (c Config) MediaRoot() string {
	if c.MediaDir != "" {
		return c.MediaDir
	}
	return c.DataDir
}

// FromEnv overlays EVERYDAY_* variables on c. lookup is os.LookupEnv in production.
func FromEnv(c Config, lookup func(string) (string, bool)) (Config, error) {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	str("EVERYDAY_DATA_DIR", &c.DataDir)
	str("EVERYDAY_DB_FILE", &c.DBFile)
	str("EVERYDAY_MEDIA_DIR", &c.MediaDir)
	str("EVERYDAY_TOKEN_KEY", &c.TokenKey)
	str("EVERYDAY_TOKEN", &c.Token)
	str("EVERYDAY_REMOTE_DSN", &c.RemoteDSN)
	str("EVERYDAY_REMOTE_BASE_URL", &c.RemoteBaseURL)
	str("EVERYDAY_LISTEN_ADDR", &c.ListenAddr)
	str("EVERYDAY_TLS_CERT", &c.TLSCert)
	str("EVERYDAY_TLS_KEY", &c.TLSKey)

	for _, d := range []struct {
		name string
		dst  *time.Duration
	}{
		{"EVERYDAY_COLOR_TIMEOUT", &c.ColorTimeout},
		{"EVERYDAY_SYNC_INTERVAL", &c.SyncInterval},
	} {
		if v, ok := lookup(d.name); ok {
			p, err := time.ParseDuration(v)
			if err != nil {
				return c, fmt.Errorf("%s: %w", d.name, err)
			}
			*d.dst = p
		}
	}
	for _, n := range []struct {
		name string
		dst  *int
	}{
		{"EVERYDAY_SYNC_BATCH", &c.SyncBatch},
		{"EVERYDAY_MAX_ATTEMPTS", &c.MaxAttempts},
	} {
		if v, ok := lookup(n.name); ok {
			p, err := strconv.Atoi(v)
			if err != nil {
				return c, fmt.Errorf("%s: %w", n.name, err)
			}
			*n.dst = p
		}
	}
	for _, b := range []struct {
		name string
		dst  *bool
	}{
		{"EVERYDAY_SKIP_SYNC", &c.SkipSync},
		{"EVERYDAY_DEV", &c.Dev},
	} {
		if v, ok := lookup(b.name); ok {
			p, err := strconv.ParseBool(v)
			if err != nil {
				return c, fmt.Errorf("%s: %w", b.name, err)
			}
			*b.dst = p
		}
	}
	return c, nil
}

// Validate rejects settings no command can run with.
func (c Config) Validate() error {
	if c.DataDir == "" || c.DBFile == "" {
		return fmt.Errorf("data dir and db file are required")
	}
	if c.SyncBatch <= 0 || c.MaxAttempts <= 0 {
		return fmt.Errorf("sync batch and max attempts must be positive")
	}
	return nil
}
