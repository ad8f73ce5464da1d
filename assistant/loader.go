package assistant

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"chat-hub/domain/mimetypes"

	"github.com/gabriel-vasile/mimetype"
)

// LoadDirectory indexes every text document found under dir, recursively.
// Files whose sniffed type is not plain text are skipped.
func (r *Retriever) LoadDirectory(dir string) (int, error) {
	documents := 0
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		detected, err := mimetype.DetectFile(path)
		if err != nil {
			return fmt.Errorf("sniff %s: %w", path, err)
		}
		if _, ok := mimetypes.Matches(detected.String(), mimetypes.TextPlain); !ok {
			r.log.Debug("Skipping non text document", "path", path, "mime_type", detected.String())
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		source, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if _, err := r.Index(filepath.ToSlash(source), title, string(content)); err != nil {
			return err
		}
		documents++
		return nil
	})
	if err != nil {
		return documents, err
	}
	r.log.Info("Assistant documents loaded", "dir", dir, "documents", documents)
	return documents, nil
}
