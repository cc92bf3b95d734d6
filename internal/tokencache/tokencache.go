// Package tokencache persists sessions between runs so repeated commands do
// not have to drive the full login flow every time.
//
// Each account gets one TOML file in the cache folder, named after a hash of
// the account email so filenames stay portable and do not leak the address.
package tokencache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ubuntu/decorate"

	ecotrend "github.com/ecotrend/go-ecotrend-ista"
	"github.com/ecotrend/go-ecotrend-ista/internal/fileutils"
)

// ErrNotFound is returned when no usable cached session exists for an account.
var ErrNotFound = errors.New("no cached session")

// Manager loads and stores cached sessions.
type Manager struct {
	path string
	now  func() time.Time
}

type cacheFile struct {
	Email   string           `toml:"email"`
	Session ecotrend.Session `toml:"session"`
}

type options struct {
	now func() time.Time
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// WithTimeProvider overrides the clock. Tests only.
func WithTimeProvider(now func() time.Time) Options {
	return func(o *options) {
		o.now = now
	}
}

// New returns a new Manager storing sessions in the given folder.
func New(path string, args ...Options) *Manager {
	opts := options{now: time.Now}
	for _, opt := range args {
		opt(&opts)
	}
	return &Manager{path: path, now: opts.now}
}

// Load returns the cached session of the given account.
//
// A session whose refresh token already expired is useless, it is treated the
// same as a missing one and removed from disk.
func (m Manager) Load(email string) (ecotrend.Session, error) {
	path := m.sessionFile(email)

	var cache cacheFile
	if _, err := toml.DecodeFile(path, &cache); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ecotrend.Session{}, ErrNotFound
		}
		slog.Warn("Could not read cached session", "file", path, "error", err)
		return ecotrend.Session{}, fmt.Errorf("could not read cached session: %v", err)
	}

	if expired(cache.Session, m.now()) {
		slog.Debug("Cached session expired, removing it", "file", path)
		_ = os.Remove(path)
		return ecotrend.Session{}, ErrNotFound
	}

	return cache.Session, nil
}

// Store writes the session of the given account atomically, replacing any
// previous one.
func (m Manager) Store(email string, session ecotrend.Session) (err error) {
	defer decorate.OnError(&err, "could not store session:")

	if err := os.MkdirAll(m.path, 0700); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cacheFile{Email: email, Session: session}); err != nil {
		return err
	}

	return fileutils.AtomicWrite(m.sessionFile(email), buf.Bytes())
}

// Remove deletes the cached session of the given account. Removing a session
// that does not exist is not an error.
func (m Manager) Remove(email string) error {
	if err := os.Remove(m.sessionFile(email)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not remove cached session: %v", err)
	}
	return nil
}

func (m Manager) sessionFile(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return filepath.Join(m.path, hex.EncodeToString(sum[:8])+".toml")
}

// expired reports whether nothing in the session can still authenticate a
// request at the given time.
func expired(s ecotrend.Session, now time.Time) bool {
	if s.AccessToken != "" && now.Before(s.AccessExpiry) {
		return false
	}
	if s.RefreshToken != "" && now.Before(s.RefreshExpiry) {
		return false
	}
	return true
}
