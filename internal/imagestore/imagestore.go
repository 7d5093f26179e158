// Package imagestore is the Image Store: a short-lived local blob store
// for rendered images with type/size validation and periodic eviction.
// Format detection uses only the standard library (image.DecodeConfig with
// the png/jpeg/gif decoders blank-imported) — there is no ecosystem
// image-validation library anywhere in the retrieved pack, the same
// situation brennhill-gasoline's internal/upload/validators.go is in for
// its own stdlib-only input validation.
package imagestore

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"thefinals-leaderboard-bot/internal/apperr"
	"thefinals-leaderboard-bot/internal/logging"
)

const (
	maxSizeBytes    = 10 * 1024 * 1024
	defaultLifetime = 24 * time.Hour
	sweepInterval   = time.Hour
	fileMode        = 0o644
)

var allowedFormats = map[string]bool{
	"png":  true,
	"jpeg": true,
	"gif":  true,
}

// Record is one stored image's metadata.
type Record struct {
	ID        string
	Path      string
	CreatedAt time.Time
	ExpiresAt time.Time
	Size      int64
}

// Store owns the on-disk directory and in-memory metadata cache.
type Store struct {
	dir string

	mu      sync.RWMutex
	records map[string]Record

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open ensures dir exists and starts the hourly eviction sweep.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Internal("creating image store directory", err)
	}
	s := &Store{
		dir:     dir,
		records: make(map[string]Record),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go s.sweepLoop()
	return s, nil
}

// Save validates and writes data as a new image, returning its id.
// lifetime<=0 uses the default 24h lifetime.
func (s *Store) Save(data []byte, lifetime time.Duration) (string, error) {
	if int64(len(data)) > maxSizeBytes {
		return "", apperr.Validation("image exceeds maximum size of 10 MB", nil)
	}
	format, err := detectFormat(data)
	if err != nil {
		return "", apperr.Validation("unrecognized image format", err)
	}
	if !allowedFormats[format] {
		return "", apperr.Validation("image format "+format+" is not allowed", nil)
	}
	if lifetime <= 0 {
		lifetime = defaultLifetime
	}

	id := uuid.NewString()
	path := filepath.Join(s.dir, id+"."+extensionFor(format))
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return "", apperr.Internal("writing image file", err)
	}

	now := time.Now()
	rec := Record{
		ID:        id,
		Path:      path,
		CreatedAt: now,
		ExpiresAt: now.Add(lifetime),
		Size:      int64(len(data)),
	}
	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()

	return id, nil
}

// GetPath returns the file path for id, or "" if unknown/expired. An entry
// missing from the in-memory cache but still present on disk with a valid
// format is lazily recovered into the cache rather than treated as absent.
func (s *Store) GetPath(id string) (string, bool) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()

	if ok {
		if time.Now().After(rec.ExpiresAt) {
			s.mu.Lock()
			delete(s.records, id)
			s.mu.Unlock()
			_ = os.Remove(rec.Path)
			return "", false
		}
		return rec.Path, true
	}

	return s.recoverFromDisk(id)
}

func (s *Store) recoverFromDisk(id string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(s.dir, id+".*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	path := matches[0]
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	format, err := detectFormat(data)
	if err != nil || !allowedFormats[format] {
		return "", false
	}

	now := time.Now()
	rec := Record{
		ID:        id,
		Path:      path,
		CreatedAt: info.ModTime(),
		ExpiresAt: now.Add(defaultLifetime),
		Size:      info.Size(),
	}
	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()
	return path, true
}

func extensionFor(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

func detectFormat(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	return format, nil
}

func (s *Store) sweepLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	log := logging.ForComponent("imagestore")
	for {
		select {
		case <-ticker.C:
			s.sweep(log)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) sweep(log zerolog.Logger) {
	now := time.Now()
	var expired []Record

	s.mu.Lock()
	for id, rec := range s.records {
		if now.After(rec.ExpiresAt) {
			expired = append(expired, rec)
			delete(s.records, id)
		}
	}
	s.mu.Unlock()

	for _, rec := range expired {
		_ = os.Remove(rec.Path)
	}
	if len(expired) > 0 {
		log.Info().Int("count", len(expired)).Msg("swept expired images")
	}
}

// SweepDirectory deletes every file under the store's directory older than
// retention (by modification time) and evicts any matching in-memory
// records, independent of the hourly background sweep. retention<=0 uses
// the default 24h lifetime. Intended for a standalone one-shot sweep
// process running against a directory shared with (but not owned by) a
// live server, so it reads the filesystem directly rather than relying on
// an in-memory cache it never populated.
func (s *Store) SweepDirectory(retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = defaultLifetime
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, apperr.Internal("reading image store directory", err)
	}

	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			continue
		}
		removed++
	}

	s.mu.Lock()
	for id, rec := range s.records {
		if _, err := os.Stat(rec.Path); err != nil {
			delete(s.records, id)
		}
	}
	s.mu.Unlock()

	return removed, nil
}

// Close stops the background sweep.
func (s *Store) Close(ctx context.Context) {
	close(s.stopCh)
	select {
	case <-s.doneCh:
	case <-ctx.Done():
	}
}
