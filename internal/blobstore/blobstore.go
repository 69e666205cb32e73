// Package blobstore abstracts image blob storage for jar title images,
// albums and volunteer photos.
package blobstore

import (
	"context"
	"io"
)

// Folder names group uploaded objects by purpose.
const (
	FolderTitleImages = "jar_title_img"
	FolderAlbums      = "jar_album"
	FolderVolunteers  = "volunteer_photo"
)

// Store uploads and releases image blobs. Put returns an opaque reference
// that is persisted alongside the owning record; Release is called after the
// owning record's deletion has committed, never before.
type Store interface {
	// Put streams an object into the given folder and returns its reference.
	Put(ctx context.Context, folder, name string, contentType string, body io.Reader) (string, error)
	// Release removes a previously stored object. Releasing an unknown
	// reference is not an error.
	Release(ctx context.Context, ref string) error
	// URL resolves a stored reference to a public URL.
	URL(ref string) string
}
