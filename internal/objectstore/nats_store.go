// Package objectstore provides a NATS JetStream implementation of core.ObjectStore.
package objectstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// ErrNotFound is returned when a key does not exist in the bucket.
var ErrNotFound = errors.New("object not found")

// NatsObjectStore stores narration text and audio in a JetStream object store bucket.
type NatsObjectStore struct {
	bucket string
	store  jetstream.ObjectStore
}

// New binds to bucketName, creating the bucket when it does not exist yet.
func New(ctx context.Context, js jetstream.JetStream, bucketName string) (*NatsObjectStore, error) {
	store, err := js.ObjectStore(ctx, bucketName)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucketName,
			Description: fmt.Sprintf("Storage for the %s bucket.", bucketName),
			Storage:     jetstream.FileStorage,
			Replicas:    1,
		})
		if errors.Is(err, jetstream.ErrBucketExists) {
			store, err = js.ObjectStore(ctx, bucketName)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to bind object store bucket '%s': %w", bucketName, err)
	}

	return &NatsObjectStore{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Bucket returns the bucket name.
func (n *NatsObjectStore) Bucket() string {
	return n.bucket
}

// Download retrieves an object from the bucket.
func (n *NatsObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	data, err := n.store.GetBytes(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: '%s' in bucket '%s'", ErrNotFound, key, n.bucket)
		}

		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	return data, nil
}

// Upload saves an object to the bucket, replacing any previous version.
func (n *NatsObjectStore) Upload(ctx context.Context, key string, data []byte) error {
	_, err := n.store.PutBytes(ctx, key, data)
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}
