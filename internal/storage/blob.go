package storage

import (
	"errors"
	"io"
)

// ErrInvalidKey is returned for empty keys or keys escaping the store root.
var ErrInvalidKey = errors.New("invalid blob key")

// BlobStore keeps opaque binary submissions (diagram answers) outside the
// database; answers only carry the returned key.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	Delete(key string) error // a missing key is not an error
}
