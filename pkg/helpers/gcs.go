package helpers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsPublicHost = "storage.googleapis.com"

// NewGCSClient creates a Google Cloud Storage client. If credsPath is empty, ADC is used.
func NewGCSClient(ctx context.Context, credsPath string) (*storage.Client, error) {
	if credsPath == "" {
		return storage.NewClient(ctx)
	}
	return storage.NewClient(ctx, option.WithCredentialsFile(credsPath))
}

// PublicURL builds a public URL for an object (assuming public read access or signed URLs)
func PublicURL(bucket, objectPath string) string {
	return fmt.Sprintf("https://%s/%s/%s", gcsPublicHost, bucket, objectPath)
}

// ParsePublicURL is the inverse of PublicURL. It also accepts gs://bucket/path.
func ParsePublicURL(raw string) (bucket, objectPath string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", err
	}
	var path string
	switch {
	case u.Scheme == "gs":
		bucket, path = u.Host, strings.TrimPrefix(u.Path, "/")
	case (u.Scheme == "https" || u.Scheme == "http") && u.Host == gcsPublicHost:
		rest := strings.TrimPrefix(u.Path, "/")
		bucket, path, _ = strings.Cut(rest, "/")
	default:
		return "", "", fmt.Errorf("not a cloud storage url: %q", raw)
	}
	if bucket == "" || path == "" {
		return "", "", fmt.Errorf("incomplete cloud storage url: %q", raw)
	}
	return bucket, path, nil
}
