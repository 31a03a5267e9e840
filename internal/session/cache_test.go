package session

import (
	"path/filepath"
	"testing"
)

func TestSQLiteCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := NewSQLiteCache(path)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if v, err := c.Get("missing"); err != nil || v != "" {
		t.Fatalf("missing key: v=%q err=%v", v, err)
	}
	if err := c.Put("k", "v1"); err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Get("k"); v != "v1" {
		t.Fatalf("got %q", v)
	}
	// upsert
	if err := c.Put("k", "v2"); err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Get("k"); v != "v2" {
		t.Fatalf("upsert failed, got %q", v)
	}
	if err := c.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Get("k"); v != "" {
		t.Fatalf("delete failed, got %q", v)
	}
}

func TestSQLiteCachePersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := NewSQLiteCache(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put("session_token", "tok"); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c2, err := NewSQLiteCache(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c2.Close() })
	if v, _ := c2.Get("session_token"); v != "tok" {
		t.Fatalf("token lost across reopen: %q", v)
	}
}
