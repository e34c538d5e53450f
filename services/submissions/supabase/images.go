package supabase

import (
	"context"

	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/supabase/client"
)

// Images stores submission photos in a public bucket.
type Images struct {
	bucket *client.BucketClient
}

// NewImages creates an image store over bucket.
func NewImages(c *client.Client, bucket string) *Images {
	return &Images{bucket: c.Storage().From(bucket)}
}

// Upload stores data at path and returns its public URL.
func (i *Images) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if _, err := i.bucket.Upload(ctx, path, data, contentType); err != nil {
		return "", errors.FromUpstream("upload image", err)
	}
	return i.bucket.PublicURL(path), nil
}

// Remove deletes objects by path.
func (i *Images) Remove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if _, err := i.bucket.Remove(ctx, paths); err != nil {
		return errors.FromUpstream("remove images", err)
	}
	return nil
}

// PathFromURL maps a public URL back to its object path.
func (i *Images) PathFromURL(publicURL string) (string, bool) {
	return i.bucket.PathFromPublicURL(publicURL)
}
