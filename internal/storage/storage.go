// Package storage is the object-storage collaborator seam. The order
// core only ever records the metadata returned from Save; the bytes
// themselves are this package's problem.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Object describes a stored blob.
type Object struct {
	StoragePath string
	Size        int64
	ContentType string
}

type Store interface {
	Save(ctx context.Context, orderID, fileName, contentType string, r io.Reader) (*Object, error)
}

// DiskStore writes uploads under a base directory, one folder per order.
type DiskStore struct {
	baseDir string
}

func NewDiskStore(baseDir string) *DiskStore {
	return &DiskStore{baseDir: baseDir}
}

func (s *DiskStore) Save(ctx context.Context, orderID, fileName, contentType string, r io.Reader) (*Object, error) {
	dir := filepath.Join(s.baseDir, orderID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}

	// Prefix with a fresh id so repeated deliveries of the same file
	// name never overwrite each other.
	path := filepath.Join(dir, uuid.New().String()+"-"+filepath.Base(fileName))
	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating upload file: %w", err)
	}

	size, err := io.Copy(dst, r)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing upload: %w", err)
	}

	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(fileName))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Object{StoragePath: path, Size: size, ContentType: contentType}, nil
}
