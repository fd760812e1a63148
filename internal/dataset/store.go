// Package dataset stores uploaded CSV files and builds previews of them.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/vizai/internal/logger"
	"github.com/shehryarbajwa/vizai/pkg/models"
)

var (
	ErrNotCSV   = errors.New("only .csv files are accepted")
	ErrTooLarge = errors.New("dataset exceeds upload limit")
	ErrBadName  = errors.New("invalid file name")
)

// Store keeps one directory of uploads per session under a root dir.
type Store struct {
	dir      string
	maxBytes int64
	log      zerolog.Logger
}

// NewStore creates the root directory if needed. maxBytes <= 0 disables the limit.
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dataset dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes, log: logger.With("dataset")}, nil
}

// Save writes r as the session's dataset. The stored name is the base of
// filename, and that name is also the path handed to the model and sandbox.
func (s *Store) Save(sessionID, filename string, r io.Reader) (*models.Dataset, error) {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" || strings.HasPrefix(name, ".") {
		return nil, ErrBadName
	}
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return nil, ErrNotCSV
	}

	sessionDir := filepath.Join(s.dir, sessionID)
	// a session holds at most one dataset
	if err := os.RemoveAll(sessionDir); err != nil {
		return nil, fmt.Errorf("failed to clear dataset dir: %w", err)
	}
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dataset dir: %w", err)
	}

	localPath := filepath.Join(sessionDir, name)
	f, err := os.Create(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer f.Close()

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		os.RemoveAll(sessionDir)
		return nil, fmt.Errorf("failed to write dataset: %w", err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		os.RemoveAll(sessionDir)
		return nil, ErrTooLarge
	}

	s.log.Info().Str("session", sessionID).Str("name", name).Int64("bytes", n).Msg("dataset saved")
	return &models.Dataset{
		Name:       name,
		Path:       "./" + name,
		LocalPath:  localPath,
		Size:       n,
		UploadedAt: time.Now(),
	}, nil
}

// Remove deletes everything stored for a session.
func (s *Store) Remove(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return os.RemoveAll(filepath.Join(s.dir, sessionID))
}
