// Package storage keeps uploaded documents on disk, keyed by document ID.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("stored file not found")

// FileInfo contains metadata about a stored file
type FileInfo struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"` // relative to the storage root
	CreatedAt   time.Time `json:"created_at"`
}

// Storage defines the file operations the document service needs
type Storage interface {
	// Save stores r under id, replacing anything stored there before
	Save(ctx context.Context, id uuid.UUID, filename, contentType string, r io.Reader) (*FileInfo, error)

	// Open returns a reader for the stored file
	Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, *FileInfo, error)

	// Stat returns metadata without opening the file
	Stat(ctx context.Context, id uuid.UUID) (*FileInfo, error)

	// Delete removes the file and its metadata. Missing files are not an error.
	Delete(ctx context.Context, id uuid.UUID) error
}
