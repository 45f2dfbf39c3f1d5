// Package blob stores product images under keys of the form
// {productId}_{timestamp}.jpg.
package blob

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var (
	// ErrNotFound is returned when a key has no stored object.
	ErrNotFound = errors.New("blob not found")
	// ErrInvalidKey is returned for keys that could escape the bucket.
	ErrInvalidKey = errors.New("invalid blob key")
)

// Object describes a stored image.
type Object struct {
	Key    string
	URL    string
	Digest string
	Size   int
}

// Store is the image bucket used by the catalog.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// Digest returns the hex BLAKE2b-256 of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ProductImageKey builds the bucket key for a product photo.
func ProductImageKey(productID string, unixMillis int64) string {
	return fmt.Sprintf("%s_%d.jpg", productID, unixMillis)
}

func validateKey(key string) error {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" || trimmed != key {
		return ErrInvalidKey
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}
