package auth

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ConfigDir returns the per-user configuration directory.
func ConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "everyday")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "everyday")
}

// TokenPath is where the current session token is stored.
func TokenPath() string { return filepath.Join(ConfigDir(), "token.json") }

// SaveToken writes tok to path with owner-only permissions.
func SaveToken(path string, tok Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tok); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// LoadToken reads the token at path. Expired tokens are reported as ErrExpired.
func LoadToken(path string, now time.Time) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var tf Token
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" {
		return "", ErrInvalidToken
	}
	if now.After(tf.ExpiresAt) {
		return "", ErrExpired
	}
	return tf.AccessToken, nil
}

// CurrentUser resolves the signed-in user from an explicit token or, when that
// is empty, from the token file. Any failure means signed out and yields "".
func CurrentUser(s *Sessions, explicit, path string, log *zap.Logger) string {
	tok := explicit
	if tok == "" {
		var err error
		tok, err = LoadToken(path, s.now())
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warn("session token unusable, continuing signed out", zap.Error(err))
			}
			return ""
		}
	}
	uid, err := s.UserID(tok)
	if err != nil {
		log.Warn("session token rejected, continuing signed out", zap.Error(err))
		return ""
	}
	return uid
}
