package gcs

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/oksasatya/account-lifecycle/internal/application"
	"github.com/oksasatya/account-lifecycle/pkg/helpers"
)

type deleteFunc func(ctx context.Context, bucket, object string) error

// AvatarStore deletes avatar objects referenced by account profile images.
// URLs that point outside the configured bucket are left alone.
type AvatarStore struct {
	bucket string
	delete deleteFunc
}

func NewAvatarStore(client *storage.Client, bucket string) *AvatarStore {
	return &AvatarStore{
		bucket: bucket,
		delete: func(ctx context.Context, b, object string) error {
			return client.Bucket(b).Object(object).Delete(ctx)
		},
	}
}

func (s *AvatarStore) DeleteAvatar(ctx context.Context, url string) error {
	if strings.TrimSpace(url) == "" {
		return nil
	}
	bucket, object, err := helpers.ParsePublicURL(url)
	if err != nil {
		// externally hosted image
		return nil
	}
	if s.bucket != "" && bucket != s.bucket {
		return nil
	}
	if err := s.delete(ctx, bucket, object); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}

var _ application.AvatarStore = (*AvatarStore)(nil)
