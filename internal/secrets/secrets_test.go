package secrets

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestStoreAndRetrieve(t *testing.T) {
	m := New(t.TempDir())

	if _, ok := m.APIKey(); ok {
		t.Fatal("expected no key before Store")
	}

	if err := m.Store("test-api-key-123"); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	key, ok := m.APIKey()
	if !ok {
		t.Fatal("expected key after Store")
	}
	if key != "test-api-key-123" {
		t.Errorf("expected stored key, got %q", key)
	}
}

func TestStoreRejectsEmpty(t *testing.T) {
	m := New(t.TempDir())
	if err := m.Store(""); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestOverwrite(t *testing.T) {
	m := New(t.TempDir())

	if err := m.Store("first"); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := m.Store("second"); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	key, ok := m.APIKey()
	if !ok || key != "second" {
		t.Errorf("expected 'second', got %q (ok=%v)", key, ok)
	}
}

func TestDelete(t *testing.T) {
	m := New(t.TempDir())

	if err := m.Delete(); err != nil {
		t.Fatalf("Delete of missing key failed: %v", err)
	}

	if err := m.Store("key"); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := m.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := m.APIKey(); ok {
		t.Error("expected no key after Delete")
	}
}

func TestCorruptFileDegrades(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)

	if err := m.Store("key"); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "apikey.enc"), []byte("garbage"), 0600); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	// Corrupt ciphertext must read as "not configured", not panic or error.
	if _, ok := m.APIKey(); ok {
		t.Error("expected corrupt key to be ignored")
	}
}

func TestFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}

	dir := t.TempDir()
	m := New(dir)
	if err := m.Store("key"); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	for _, name := range []string{"master.key", "apikey.enc"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("%s: expected 0600, got %o", name, perm)
		}
	}
}
