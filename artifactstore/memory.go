package artifactstore

import (
	"gocloud.dev/blob/memblob"
)

// NewMemory creates an in-memory store for testing.
func NewMemory(prefix string) *Store {
	return &Store{
		bucket: memblob.OpenBucket(nil),
		prefix: prefix,
		owns:   true,
	}
}
