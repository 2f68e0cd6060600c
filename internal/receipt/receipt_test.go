package receipt

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"audiobookmaker/internal/jobs"
)

func writeSource(t *testing.T, dir, name, content string) jobs.InputFile {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return jobs.InputFile{Path: path, Size: info.Size(), ModTime: info.ModTime()}
}

func writeFragment(t *testing.T, input jobs.InputFile, cacheDir string) {
	t.Helper()
	if err := os.WriteFile(FragmentPath(input, cacheDir), []byte("aac"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWriteThenIsValid(t *testing.T) {
	srcDir, cacheDir := t.TempDir(), t.TempDir()
	input := writeSource(t, srcDir, "01 - Opening.mp3", "mp3 bytes")
	writeFragment(t, input, cacheDir)

	if err := Write(input, cacheDir); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !IsValid(input, cacheDir) {
		t.Fatal("fresh receipt should be valid")
	}
}

func TestIsValidRequiresFragment(t *testing.T) {
	srcDir, cacheDir := t.TempDir(), t.TempDir()
	input := writeSource(t, srcDir, "01.mp3", "mp3 bytes")
	if err := Write(input, cacheDir); err != nil {
		t.Fatal(err)
	}
	if IsValid(input, cacheDir) {
		t.Fatal("receipt without fragment should be invalid")
	}
}

func TestIsValidDetectsSizeChange(t *testing.T) {
	srcDir, cacheDir := t.TempDir(), t.TempDir()
	input := writeSource(t, srcDir, "01.mp3", "mp3 bytes")
	writeFragment(t, input, cacheDir)
	if err := Write(input, cacheDir); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(input.Path, []byte("mp3 bytes plus extra"), 0o644); err != nil {
		t.Fatal(err)
	}
	if IsValid(input, cacheDir) {
		t.Fatal("size change should invalidate receipt")
	}
}

func TestIsValidDetectsMtimeChange(t *testing.T) {
	srcDir, cacheDir := t.TempDir(), t.TempDir()
	input := writeSource(t, srcDir, "01.mp3", "mp3 bytes")
	writeFragment(t, input, cacheDir)
	if err := Write(input, cacheDir); err != nil {
		t.Fatal(err)
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(input.Path, future, future); err != nil {
		t.Fatal(err)
	}
	if IsValid(input, cacheDir) {
		t.Fatal("mtime change should invalidate receipt")
	}
}

func TestIsValidToleratesSubSecondDrift(t *testing.T) {
	srcDir, cacheDir := t.TempDir(), t.TempDir()
	input := writeSource(t, srcDir, "01.mp3", "mp3 bytes")
	writeFragment(t, input, cacheDir)
	if err := Write(input, cacheDir); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(input.Path)
	if err != nil {
		t.Fatal(err)
	}
	nudged := info.ModTime().Add(500 * time.Millisecond)
	if err := os.Chtimes(input.Path, nudged, nudged); err != nil {
		t.Fatal(err)
	}
	if !IsValid(input, cacheDir) {
		t.Fatal("sub-second drift should stay within tolerance")
	}
}

func TestInvalidateRemovesPair(t *testing.T) {
	srcDir, cacheDir := t.TempDir(), t.TempDir()
	input := writeSource(t, srcDir, "01.mp3", "mp3 bytes")
	writeFragment(t, input, cacheDir)
	if err := Write(input, cacheDir); err != nil {
		t.Fatal(err)
	}

	if err := Invalidate(input, cacheDir); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := os.Stat(FragmentPath(input, cacheDir)); !os.IsNotExist(err) {
		t.Fatal("fragment should be removed")
	}
	if _, err := os.Stat(Path(input, cacheDir)); !os.IsNotExist(err) {
		t.Fatal("receipt should be removed")
	}

	// Second invalidate on missing files is not an error.
	if err := Invalidate(input, cacheDir); err != nil {
		t.Fatalf("repeat Invalidate: %v", err)
	}
}

func TestCorruptReceiptIsInvalid(t *testing.T) {
	srcDir, cacheDir := t.TempDir(), t.TempDir()
	input := writeSource(t, srcDir, "01.mp3", "mp3 bytes")
	writeFragment(t, input, cacheDir)
	if err := os.WriteFile(Path(input, cacheDir), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if IsValid(input, cacheDir) {
		t.Fatal("corrupt receipt should be invalid")
	}
}
