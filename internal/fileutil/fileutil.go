package fileutil

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// CopyFile streams src to dst using io.Copy with default permissions (0o644).
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// EnsureDir creates dir (and parents) when missing.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// DirSizeBytes walks dir and sums regular file sizes. Unreadable entries are
// skipped so callers get a best-effort total.
func DirSizeBytes(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, infoErr := d.Info(); infoErr == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

var digitRuns = regexp.MustCompile(`\d+|\D+`)

// NaturalLess compares two strings so that embedded numbers sort by value:
// "2.mp3" sorts before "10.mp3".
func NaturalLess(a, b string) bool {
	aParts := digitRuns.FindAllString(strings.ToLower(a), -1)
	bParts := digitRuns.FindAllString(strings.ToLower(b), -1)
	for i := 0; i < len(aParts) && i < len(bParts); i++ {
		ap, bp := aParts[i], bParts[i]
		if ap == bp {
			continue
		}
		an, aErr := strconv.Atoi(ap)
		bn, bErr := strconv.Atoi(bp)
		if aErr == nil && bErr == nil {
			if an != bn {
				return an < bn
			}
			continue
		}
		return ap < bp
	}
	return len(aParts) < len(bParts)
}

// SortNatural sorts paths in natural order by base name, falling back to the
// full path for ties so the ordering is deterministic.
func SortNatural(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		bi, bj := filepath.Base(paths[i]), filepath.Base(paths[j])
		if bi == bj {
			return paths[i] < paths[j]
		}
		return NaturalLess(bi, bj)
	})
}

var (
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	repeatedUnderscores  = regexp.MustCompile(`_{2,}`)
)

// SanitizeFilename replaces characters that are invalid on common filesystems
// and collapses repeated underscores.
func SanitizeFilename(name string) string {
	cleaned := invalidFilenameChars.ReplaceAllString(name, "_")
	cleaned = repeatedUnderscores.ReplaceAllString(cleaned, "_")
	return strings.Trim(cleaned, "_ ")
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
