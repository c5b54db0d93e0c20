// Package storage provides the transient file storage used while a request
// is in flight. It defines the Storage interface (port) and a local disk
// implementation.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for temporary file storage.
// Every file it creates is owned by a single request and removed with
// CleanupTemp once the request finishes.
type Storage interface {
	// SaveTemp streams data into a new uniquely named temporary file and
	// returns its path. The name parameter is used as a hint for the
	// filename; its extension is preserved.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// CreateTemp reserves a new, empty, uniquely named temporary file and
	// returns its path. It is used for outputs written by external tools.
	CreateTemp(ctx context.Context, name string) (path string, err error)

	// LoadTemp opens a temporary file for reading.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// SizeTemp returns the size in bytes of a temporary file.
	SizeTemp(ctx context.Context, path string) (int64, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error
}
