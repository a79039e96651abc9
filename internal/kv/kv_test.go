package kv

import (
	"path/filepath"
	"testing"

	"github.com/dokzlo13/qlcremote/internal/db"
)

func buckets(t *testing.T) []Bucket {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "kv.sqlite"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return []Bucket{
		NewMemoryBucket("settings"),
		NewSQLiteBucket(database.DB, "settings"),
	}
}

func TestBucketRoundTrip(t *testing.T) {
	for _, b := range buckets(t) {
		t.Run(b.Name()+persistence(b), func(t *testing.T) {
			if _, ok, err := b.Get("host"); err != nil || ok {
				t.Fatalf("Get on empty bucket = ok %v, err %v", ok, err)
			}

			if err := b.Put("host", "10.0.0.5"); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := b.Put("host", "10.0.0.6"); err != nil {
				t.Fatalf("Put overwrite: %v", err)
			}
			if err := b.Put("port", "9999"); err != nil {
				t.Fatalf("Put: %v", err)
			}

			got, ok, err := b.Get("host")
			if err != nil || !ok || got != "10.0.0.6" {
				t.Errorf("Get(host) = %q, %v, %v, want 10.0.0.6", got, ok, err)
			}

			all, err := b.All()
			if err != nil {
				t.Fatalf("All: %v", err)
			}
			if len(all) != 2 || all["port"] != "9999" {
				t.Errorf("All() = %v", all)
			}

			deleted, err := b.Delete("host")
			if err != nil || !deleted {
				t.Errorf("Delete(host) = %v, %v", deleted, err)
			}
			deleted, _ = b.Delete("host")
			if deleted {
				t.Error("second Delete reported an existing key")
			}
		})
	}
}

func TestSQLiteBucketsAreIsolated(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "kv.sqlite"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer database.Close()

	a := NewSQLiteBucket(database.DB, "a")
	b := NewSQLiteBucket(database.DB, "b")
	a.Put("k", "1")

	if _, ok, _ := b.Get("k"); ok {
		t.Error("key leaked between buckets")
	}
}

func persistence(b Bucket) string {
	if b.IsPersistent() {
		return "/sqlite"
	}
	return "/memory"
}
