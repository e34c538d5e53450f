package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Storage returns a storage client.
func (c *Client) Storage() *StorageClient {
	return &StorageClient{client: c}
}

// StorageClient handles storage operations.
type StorageClient struct {
	client *Client
}

// From returns a bucket client.
func (s *StorageClient) From(bucket string) *BucketClient {
	return &BucketClient{
		client: s.client,
		bucket: bucket,
	}
}

// BucketClient handles bucket operations.
type BucketClient struct {
	client *Client
	bucket string
}

// Bucket returns the bucket name.
func (b *BucketClient) Bucket() string { return b.bucket }

// Upload uploads an object. Existing objects are not overwritten.
func (b *BucketClient) Upload(ctx context.Context, path string, data []byte, contentType string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.objectURL("object", path), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	b.client.setHeaders(ctx, req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")
	req.Header.Set("Cache-Control", "max-age=3600")

	return b.client.do(req)
}

// Download downloads an object.
func (b *BucketClient) Download(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.objectURL("object", path), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	b.client.setHeaders(ctx, req)

	resp, err := b.client.do(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Remove deletes objects by path.
func (b *BucketClient) Remove(ctx context.Context, paths []string) (*Response, error) {
	reqURL := fmt.Sprintf("%s/storage/v1/object/%s", b.client.baseURL, url.PathEscape(b.bucket))

	body, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	b.client.setHeaders(ctx, req)
	req.Header.Set("Content-Type", "application/json")

	return b.client.do(req)
}

// PublicURL returns the public URL for an object in a public bucket.
func (b *BucketClient) PublicURL(path string) string {
	return b.objectURL("object/public", path)
}

// PathFromPublicURL is the inverse of PublicURL. It reports false for
// URLs that do not point into this bucket.
func (b *BucketClient) PathFromPublicURL(publicURL string) (string, bool) {
	prefix := b.objectURL("object/public", "")
	if !strings.HasPrefix(publicURL, prefix) {
		return "", false
	}
	escaped := strings.TrimPrefix(publicURL, prefix)
	path, err := url.PathUnescape(escaped)
	if err != nil || path == "" {
		return "", false
	}
	return path, true
}

func (b *BucketClient) objectURL(kind, path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/storage/v1/%s/%s/%s", b.client.baseURL, kind, url.PathEscape(b.bucket), strings.Join(segments, "/"))
}
