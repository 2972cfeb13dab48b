// Package objectstore stores thumbnails and resolves them to time-limited URLs.
package objectstore

import (
	"context"
	"io"
	"regexp"
	"strings"
	"time"
)

// DefaultURLTTL is the validity of resolved URLs when none is configured.
const DefaultURLTTL = time.Hour

// ThumbnailPrefix is the key prefix for generated thumbnails.
const ThumbnailPrefix = "thumbnails/"

// Store is an object store that can mint time-limited access URLs.
type Store interface {
	// Put writes r under key and returns the stored object's URL.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	// Get opens the object stored under key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// SignedURL returns a URL for key valid for ttl.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

var thumbnailKeyPattern = regexp.MustCompile(`thumbnails/([^/?#]+\.jpg)`)

// ThumbnailKey returns the object key for an asset's thumbnail.
func ThumbnailKey(assetID string) string {
	return ThumbnailPrefix + assetID + ".jpg"
}

// KeyFromURL extracts the thumbnail key from a stored URL. It reports false
// for URLs that do not point at a generated thumbnail.
func KeyFromURL(url string) (string, bool) {
	m := thumbnailKeyPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return ThumbnailPrefix + m[1], true
}

// ContentTypeForKey guesses a MIME type from the key's extension.
func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	case strings.HasSuffix(s, ".mp4"):
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
