// Package storage provides access to trace archives held in object
// storage. Raw per-CPU logs and merged outputs can live outside the
// machine running the analysis; a store fetches them before a scan and
// publishes pipeline outputs afterwards.
package storage

import (
	"context"
	"errors"
)

// Common errors for archive operations.
var (
	ErrArchiveNotFound = errors.New("trace archive not found")
	ErrFetchFailed     = errors.New("archive fetch failed")
	ErrPublishFailed   = errors.New("archive publish failed")
	ErrDeleteFailed    = errors.New("archive delete failed")
)

// ArchiveStore abstracts where trace archives live.
// Implementations include S3 and the local filesystem.
type ArchiveStore interface {
	// Fetch downloads a trace archive to a local path for scanning.
	Fetch(ctx context.Context, archivePath, localPath string) error

	// Publish uploads a pipeline output (merged log, filtered trace,
	// anomaly report) to the archive location.
	Publish(ctx context.Context, localPath, archivePath string) error

	// Exists checks whether an archive is present.
	Exists(ctx context.Context, archivePath string) (bool, error)

	// Delete removes an archive. Deleting a missing archive is not an
	// error.
	Delete(ctx context.Context, archivePath string) error

	// List returns all archive paths under the given prefix, e.g. every
	// per-CPU log of one capture session.
	List(ctx context.Context, prefix string) ([]string, error)
}
