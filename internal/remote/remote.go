// Package remote is the gateway to the object storage that holds both the
// source and destination trees of every project.
//
// Folders are key prefixes. A folder id has the form "bucket/prefix/" (the
// bucket root is "bucket/"), a file id has the form "bucket/key".
package remote

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// File is a file or folder entry returned by a Storage.
type File struct {
	ID           string
	Name         string
	IsFolder     bool
	Size         int64
	CreatedTime  time.Time
	ModifiedTime time.Time
	Link         string
}

// Storage is a storage driver. Implementations translate missing objects
// into ErrNotFound and keep HTTP status codes on *Error so the gateway can
// classify failures.
type Storage interface {
	// ListChanged lists the direct children of folderID created or modified after since.
	ListChanged(ctx context.Context, folderID string, since time.Time) ([]File, error)
	// ListFolders lists the immediate sub-folders of folderID.
	ListFolders(ctx context.Context, folderID string) ([]File, error)
	// Copy copies fileID into destFolderID under name.
	Copy(ctx context.Context, fileID, destFolderID, name string) (File, error)
	// CreateFolder creates a folder called name under parentID.
	CreateFolder(ctx context.Context, name, parentID string) (File, error)
	// FindByName returns the entries of parentID named exactly name.
	FindByName(ctx context.Context, name, parentID string) ([]File, error)
	// Link returns a human readable location for id.
	Link(id string) string
}

// ParseFolderID splits a folder id into bucket and key prefix. The prefix is
// either empty or ends with "/".
func ParseFolderID(id string) (bucket, prefix string, err error) {
	id = strings.TrimPrefix(strings.TrimSpace(id), "/")
	bucket, prefix, _ = strings.Cut(id, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: folder %q", ErrInvalidID, id)
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return bucket, prefix, nil
}

// ParseFileID splits a file id into bucket and object key.
func ParseFileID(id string) (bucket, key string, err error) {
	id = strings.TrimPrefix(strings.TrimSpace(id), "/")
	bucket, key, _ = strings.Cut(id, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("%w: file %q", ErrInvalidID, id)
	}
	return bucket, key, nil
}

// FolderID builds a folder id.
func FolderID(bucket, prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return bucket + "/"
	}
	return bucket + "/" + prefix + "/"
}

// FileID builds a file id.
func FileID(bucket, key string) string {
	return bucket + "/" + key
}

// NormalizeFolderID canonicalizes a user supplied folder id.
func NormalizeFolderID(id string) (string, error) {
	bucket, prefix, err := ParseFolderID(id)
	if err != nil {
		return "", err
	}
	return FolderID(bucket, prefix), nil
}

// baseName is the last path segment of a key or prefix.
func baseName(key string) string {
	return path.Base(strings.TrimSuffix(key, "/"))
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return fmt.Errorf("%w: name %q", ErrInvalidID, name)
	}
	return nil
}
