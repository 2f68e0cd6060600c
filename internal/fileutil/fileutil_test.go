package fileutil

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	payload := []byte("audiobook payload")
	if err := os.WriteFile(src, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	copied, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(copied) != string(payload) {
		t.Fatalf("copied content mismatch: %q", copied)
	}
}

func TestSortNatural(t *testing.T) {
	paths := []string{
		"/books/10 - Finale.mp3",
		"/books/2 - Middle.mp3",
		"/books/1 - Opening.mp3",
	}
	SortNatural(paths)
	want := []string{
		"/books/1 - Opening.mp3",
		"/books/2 - Middle.mp3",
		"/books/10 - Finale.mp3",
	}
	if !reflect.DeepEqual(paths, want) {
		t.Fatalf("SortNatural = %v, want %v", paths, want)
	}
}

func TestNaturalLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"chapter2", "chapter10", true},
		{"chapter10", "chapter2", false},
		{"intro", "outro", true},
		{"Track 01", "track 2", true},
		{"same", "same", false},
	}
	for _, tc := range cases {
		if got := NaturalLess(tc.a, tc.b); got != tc.want {
			t.Errorf("NaturalLess(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		`My Book: Part 1/2`:   "My Book_ Part 1_2",
		`weird***name???`:     "weird_name",
		`  _trimmed_  `:       "trimmed",
		"Already Clean Title": "Already Clean Title",
	}
	for input, want := range cases {
		if got := SanitizeFilename(input); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestStem(t *testing.T) {
	if got := Stem("/tmp/01 - Opening.mp3"); got != "01 - Opening" {
		t.Fatalf("Stem = %q", got)
	}
}

func TestDirSizeBytes(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "sub")
	if err := EnsureDir(sub); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b"), make([]byte, 50), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := DirSizeBytes(dir); got != 150 {
		t.Fatalf("DirSizeBytes = %d, want 150", got)
	}
}
