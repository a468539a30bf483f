package attachments

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/opslane/access-portal/internal"
)

// Store persists task checklist files. Paths returned by Save are opaque
// handles; callers store them on the task row and hand them back to Open
// and Delete.
type Store interface {
	Save(taskID, filename string, content io.Reader) (path string, err error)
	Exists(path string) bool
	Open(path string) (io.ReadCloser, error)
	Delete(path string) error
}

var allowedExtensions = map[string]struct{}{
	".pdf":  {},
	".docx": {},
	".xlsx": {},
	".xls":  {},
	".pptx": {},
	".txt":  {},
	".csv":  {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// AllowedExtension reports whether the filename's extension is accepted for
// checklist uploads.
func AllowedExtension(filename string) bool {
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// LocalStore writes attachments under a base directory, one subdirectory per
// task, with randomized filenames so uploads cannot collide or traverse.
type LocalStore struct {
	baseDir string
	logger  *slog.Logger
}

func NewLocalStore(baseDir string, logger *slog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir, logger: logger}, nil
}

func (s *LocalStore) Save(taskID, filename string, content io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", internal.NewValidationError(
			fmt.Sprintf("file type %q is not allowed", ext),
			internal.ErrCodeUnsupportedFileType,
		)
	}

	dir := filepath.Join(s.baseDir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create task dir: %w", err)
	}

	name := uuid.NewString() + ext
	fullPath := filepath.Join(dir, name)

	f, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("create attachment file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, content); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("write attachment: %w", err)
	}

	s.logger.Info("attachment stored", "task_id", taskID, "path", fullPath)
	return fullPath, nil
}

func (s *LocalStore) Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (s *LocalStore) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, internal.ErrAttachmentNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes the blob. A missing file is not an error: the row is the
// source of truth and the blob may already be gone.
func (s *LocalStore) Delete(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
