// Package artifactstore persists extracted, still-encoded image bytes in a
// blob bucket so that re-populating a previously seen game skips the
// expensive container or disc-image extraction.
package artifactstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

var ErrNotFound = errors.New("artifact not found")

// Store wraps a blob bucket under a key prefix.
type Store struct {
	bucket *blob.Bucket
	prefix string
	owns   bool
}

// Open opens the bucket at bucketURL. The store owns the bucket and closes
// it on Close.
func Open(ctx context.Context, bucketURL, prefix string) (*Store, error) {
	bkt, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", bucketURL, err)
	}
	return &Store{
		bucket: bkt,
		prefix: strings.TrimSuffix(prefix, "/"),
		owns:   true,
	}, nil
}

// New wraps an existing bucket without taking ownership.
func New(bkt *blob.Bucket, prefix string) *Store {
	return &Store{
		bucket: bkt,
		prefix: strings.TrimSuffix(prefix, "/"),
	}
}

func (s *Store) Close() error {
	if s.owns && s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

func (s *Store) key(parts ...string) string {
	if s.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{s.prefix}, parts...)...)
}

// ArtifactPath returns the bucket key for one image slot of one game,
// fanned out by the first two characters of the game hash.
func (s *Store) ArtifactPath(gameHash, slot string) string {
	if len(gameHash) < 2 {
		return s.key("images", gameHash, slot)
	}
	return s.key("images", gameHash[:2], gameHash, slot)
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, key)
}

func (s *Store) Write(ctx context.Context, key string, data []byte) error {
	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return s.mapError(err)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return err
	}
	return s.mapError(w.Close())
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, key)
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

func (s *Store) mapError(err error) error {
	if err == nil {
		return nil
	}
	if gcerrors.Code(err) == gcerrors.NotFound {
		return ErrNotFound
	}
	return err
}
