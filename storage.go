package quizsolver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileStorage moves processed documents into long-term storage. The pipeline
// treats archival as best-effort: a failed upload keeps the local file.
type FileStorage interface {
	UploadFile(localPath, name, mimeType string) (url string, fileID string, err error)
	DeleteFile(fileID string) bool
}

// LocalStorage archives documents into a directory on the same host.
type LocalStorage struct {
	dir string
	log *Logger
}

// NewLocalStorage creates the archive directory if needed.
func NewLocalStorage(dir string, log *Logger) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{dir: dir, log: log.With("component", "LocalStorage")}, nil
}

// UploadFile copies the document into the archive directory. The returned
// file ID is the archive-relative name.
func (s *LocalStorage) UploadFile(localPath, name, mimeType string) (string, string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()

	destPath := filepath.Join(s.dir, name)
	dest, err := os.Create(destPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to create archive file: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		os.Remove(destPath)
		return "", "", fmt.Errorf("failed to copy into archive: %w", err)
	}
	return "file://" + destPath, name, nil
}

// DeleteFile removes an archived document.
func (s *LocalStorage) DeleteFile(fileID string) bool {
	if err := os.Remove(filepath.Join(s.dir, fileID)); err != nil {
		s.log.Warn("failed to delete archived file", "fileID", fileID, "error", err)
		return false
	}
	return true
}
