// Package media persists picked images into app-owned storage and resolves
// their display colors.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeUserChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Files stores memory images under <root>/memories/<user>/<day>/<memoryID>.<ext>.
type Files struct {
	root string
}

// NewFiles returns a Files rooted at the app documents directory.
func NewFiles(root string) *Files { return &Files{root: root} }

// Root returns the documents directory.
func (f *Files) Root() string { return f.root }

// Extension returns the file extension of a URI or path, without the dot,
// ignoring any query string. It falls back to "jpg".
func Extension(uri string) string {
	p := uri
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	base := path.Base(filepath.ToSlash(p))
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 || dot == len(base)-1 {
		return "jpg"
	}
	return base[dot+1:]
}

// LocalPath turns a file:// URI or plain path into a filesystem path.
func LocalPath(uri string) (string, error) {
	if !strings.Contains(uri, "://") {
		return uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported uri scheme %q", u.Scheme)
	}
	return filepath.FromSlash(u.Path), nil
}

// Persist copies the source image into durable per-user, per-day storage named
// after memoryID and returns the destination path. An existing file at the
// destination is replaced.
func (f *Files) Persist(ctx context.Context, sourceURI, userID, dayKey, memoryID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := LocalPath(sourceURI)
	if err != nil {
		return "", err
	}

	safeUser := unsafeUserChars.ReplaceAllString(userID, "_")
	dir := filepath.Join(f.root, "memories", safeUser, dayKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create memory dir: %w", err)
	}
	dst := filepath.Join(dir, memoryID+"."+Extension(sourceURI))

	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("persist memory image: %w", err)
	}
	return dst, nil
}

// Remove deletes a persisted image. A missing file is not an error.
func (f *Files) Remove(localURI string) error {
	p, err := LocalPath(localURI)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
