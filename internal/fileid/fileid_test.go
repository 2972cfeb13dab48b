package fileid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSourceID(t *testing.T) {
	id1 := SourceID("/drop/brand/logo.png")
	id2 := SourceID("/drop/brand/logo.png")
	if id1 != id2 {
		t.Errorf("same path should give same ID: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, prefix) {
		t.Errorf("ID should have prefix %q: got %q", prefix, id1)
	}
	if SourceID("/drop/brand/other.png") == id1 {
		t.Error("different paths should give different IDs")
	}
}

func TestSourceID_normalized(t *testing.T) {
	id1 := SourceID("/drop/a.jpg")
	for _, p := range []string{"/drop/./a.jpg", "/drop/x/../a.jpg"} {
		if got := SourceID(p); got != id1 {
			t.Errorf("SourceID(%q) = %q, want %q", p, got, id1)
		}
	}
}

func TestChecksum(t *testing.T) {
	sum, n, err := Checksum(strings.NewReader("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if sum != "5d41402abc4b2a76b9719d911017c592" || n != 5 {
		t.Errorf("Checksum = %q, %d", sum, n)
	}

	path := filepath.Join(t.TempDir(), "f.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	fsum, fn, err := FileChecksum(path)
	if err != nil || fsum != sum || fn != 5 {
		t.Errorf("FileChecksum = %q, %d, %v", fsum, fn, err)
	}
	if _, _, err := FileChecksum(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing file should fail")
	}
}
