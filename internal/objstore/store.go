// Package objstore is the durable key/bytes store behind the persistence
// bridge. Buckets are opened by URL through gocloud.dev/blob, so the same code
// serves Azure Blob containers, S3, GCS, local directories and memory.
package objstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/logging"
)

// Store is an opaque key to bytes store.
type Store interface {
	// Put writes data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get returns the value of key, or an error matching errors.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns every key with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// DeletePrefix removes every key with the given prefix and returns the
	// removed keys.
	DeletePrefix(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Available reports whether the store can be used.
	Available() bool

	Close() error
}

// Bucket is a Store over a gocloud bucket.
type Bucket struct {
	bucket *blob.Bucket
	url    string
	closed atomic.Bool
	logger *slog.Logger
}

// Open opens the bucket at url (azblob://, s3://, gs://, file://, mem://).
// A non-empty prefix scopes every key under it.
func Open(ctx context.Context, url, prefix string) (*Bucket, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w: %w", redact(url), errors.ErrStoreUnavailable, err)
	}
	if prefix != "" {
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		b = blob.PrefixedBucket(b, prefix)
	}

	logger := logging.Component("objstore")
	logger.Info("object store opened", "url", redact(url), "prefix", prefix)

	return &Bucket{bucket: b, url: url, logger: logger}, nil
}

// Put implements Store.
func (b *Bucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if b.closed.Load() {
		return errors.ErrStoreUnavailable
	}
	opts := &blob.WriterOptions{ContentType: contentType}
	if err := b.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return b.wrap(err, "put", key)
	}
	return nil
}

// Get implements Store.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, errors.ErrStoreUnavailable
	}
	data, err := b.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, b.wrap(err, "get", key)
	}
	return data, nil
}

// List implements Store.
func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	if b.closed.Load() {
		return nil, errors.ErrStoreUnavailable
	}
	var keys []string
	iter := b.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return keys, b.wrap(err, "list", prefix)
		}
		if obj.IsDir {
			continue
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// DeletePrefix implements Store. Keys that vanish between listing and
// deletion are not errors.
func (b *Bucket) DeletePrefix(ctx context.Context, prefix string) ([]string, error) {
	keys, err := b.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	deleted := make([]string, 0, len(keys))
	var errs []error
	for _, key := range keys {
		if err := b.bucket.Delete(ctx, key); err != nil {
			if gcerrors.Code(err) == gcerrors.NotFound {
				continue
			}
			errs = append(errs, b.wrap(err, "delete", key))
			continue
		}
		deleted = append(deleted, key)
	}
	return deleted, errors.Join(errs...)
}

// Exists implements Store.
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	if b.closed.Load() {
		return false, errors.ErrStoreUnavailable
	}
	ok, err := b.bucket.Exists(ctx, key)
	if err != nil {
		return false, b.wrap(err, "exists", key)
	}
	return ok, nil
}

// Available implements Store.
func (b *Bucket) Available() bool { return !b.closed.Load() }

// Close implements Store.
func (b *Bucket) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.bucket.Close()
}

func (b *Bucket) wrap(err error, op, key string) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%s %s: %w", op, key, errors.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w: %w", op, key, errors.ErrStoreUnavailable, err)
}

// redact drops the query string, which may carry credentials.
func redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}

// Unavailable is the Store used when no durable store is configured. Every
// call fails with errors.ErrStoreUnavailable.
type Unavailable struct{}

// Put implements Store.
func (Unavailable) Put(context.Context, string, []byte, string) error {
	return errors.ErrStoreUnavailable
}

// Get implements Store.
func (Unavailable) Get(context.Context, string) ([]byte, error) {
	return nil, errors.ErrStoreUnavailable
}

// List implements Store.
func (Unavailable) List(context.Context, string) ([]string, error) {
	return nil, errors.ErrStoreUnavailable
}

// DeletePrefix implements Store.
func (Unavailable) DeletePrefix(context.Context, string) ([]string, error) {
	return nil, errors.ErrStoreUnavailable
}

// Exists implements Store.
func (Unavailable) Exists(context.Context, string) (bool, error) {
	return false, errors.ErrStoreUnavailable
}

// Available implements Store.
func (Unavailable) Available() bool { return false }

// Close implements Store.
func (Unavailable) Close() error { return nil }
