package testsupport

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

const stubScript = "#!/bin/sh\nexit 0\n"

// StubBinaries places executable ffmpeg and ffprobe stubs on PATH so
// dependency preflight passes without the real tools installed.
func StubBinaries(t testing.TB) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}

	dir := t.TempDir()
	for _, name := range []string{"ffmpeg", "ffprobe"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(stubScript), 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return dir
}
