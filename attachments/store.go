// Package attachments stores uploaded files on disk and describes them for messages.
package attachments

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Store writes uploads under a flat directory with random names.
// The original file name only lives in the returned descriptor.
type Store struct {
	log      *slog.Logger
	dir      string
	baseURL  string
	maxBytes int64
}

func NewStore(log *slog.Logger, dir, baseURL string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("attachments dir: %w", err)
	}
	return &Store{log: log, dir: dir, baseURL: strings.TrimSuffix(baseURL, "/"), maxBytes: maxBytes}, nil
}

// Save copies at most maxBytes from r, sniffs the content type and returns the descriptor
// to embed in a message. The declared name is kept for display only.
func (s *Store) Save(name string, r io.Reader) (domain.Attachment, error) {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return domain.Attachment{}, err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	// One extra byte tells an exact fit from an overflow
	size, err := io.Copy(tmp, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return domain.Attachment{}, err
	}
	if size > s.maxBytes {
		return domain.Attachment{}, fmt.Errorf("%w: limit is %d bytes", errors.ErrAttachmentTooLarge, s.maxBytes)
	}
	if err := tmp.Sync(); err != nil {
		return domain.Attachment{}, err
	}

	detected, err := mimetype.DetectFile(tmp.Name())
	if err != nil {
		return domain.Attachment{}, err
	}
	stored := uuid.NewString() + detected.Extension()
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, stored)); err != nil {
		return domain.Attachment{}, err
	}
	s.log.Debug("Attachment stored", "name", name, "stored", stored, "size", size, "mime_type", detected.String())

	return domain.Attachment{
		Name:     displayName(name, stored),
		URL:      s.baseURL + "/" + stored,
		Size:     size,
		MimeType: detected.String(),
	}, nil
}

// Open returns a stored file by its generated name, rejecting anything that is not one.
func (s *Store) Open(stored string) (*os.File, string, error) {
	if stored == "" || stored != filepath.Base(stored) || strings.HasPrefix(stored, ".") {
		return nil, "", errors.ErrNotFound
	}
	path := filepath.Join(s.dir, stored)
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, "", errors.ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		_ = file.Close()
		return nil, "", err
	}
	return file, detected.String(), nil
}

func displayName(name, fallback string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return fallback
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}
