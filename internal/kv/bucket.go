// Package kv provides named string key-value buckets, persisted in SQLite or
// held in memory.
package kv

// Bucket is the interface for key-value storage operations.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// IsPersistent returns true if the bucket is backed by SQLite.
	IsPersistent() bool

	// Put saves a value, replacing any previous one.
	Put(key, value string) error

	// Get retrieves a value. ok is false when the key doesn't exist.
	Get(key string) (value string, ok bool, err error)

	// Delete removes a key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// All returns every key and value in the bucket.
	All() (map[string]string, error)
}
