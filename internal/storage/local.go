package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore implements ArchiveStore on the local filesystem, rooted at
// a base directory. Used for development and for captures that never
// leave the tracing host.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a local archive store, creating basePath if
// needed.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

// Fetch copies an archive out of the store.
func (l *LocalStore) Fetch(ctx context.Context, archivePath, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcPath := l.fullPath(archivePath)
	if _, err := os.Stat(srcPath); os.IsNotExist(err) {
		return ErrArchiveNotFound
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return copyFile(srcPath, localPath, ErrFetchFailed)
}

// Publish copies a local file into the store.
func (l *LocalStore) Publish(ctx context.Context, localPath, archivePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	destPath := l.fullPath(archivePath)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	return copyFile(localPath, destPath, ErrPublishFailed)
}

// Exists checks whether an archive is present in the store.
func (l *LocalStore) Exists(ctx context.Context, archivePath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(l.fullPath(archivePath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes an archive. Idempotent, mirroring S3 delete semantics.
func (l *LocalStore) Delete(ctx context.Context, archivePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(l.fullPath(archivePath)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return nil
}

// List returns all archive paths under the given prefix.
func (l *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	searchDir := l.fullPath(prefix)
	var archives []string

	err := filepath.Walk(searchDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil // prefix doesn't exist, return empty list
			}
			return err
		}
		if !info.IsDir() {
			rel, err := filepath.Rel(l.basePath, path)
			if err != nil {
				return err
			}
			archives = append(archives, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return archives, nil
}

func (l *LocalStore) fullPath(archivePath string) string {
	return filepath.Join(l.basePath, archivePath)
}

func copyFile(src, dst string, wrap error) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", wrap, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: %v", wrap, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("%w: %v", wrap, err)
	}
	return nil
}
