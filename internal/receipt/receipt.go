package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"audiobookmaker/internal/fileutil"
	"audiobookmaker/internal/jobs"
)

// Extension is the suffix of receipt files written beside fragments.
const Extension = ".receipt"

// FragmentSuffix names converted fragments within a cache directory.
const FragmentSuffix = "_converted.m4a"

// mtimeTolerance absorbs filesystem timestamp granularity. Receipts within
// this window of the live mtime still count as matching.
const mtimeTolerance = time.Second

// Receipt records the source-file state a fragment was converted from.
// A fragment is resumable only while the live stat still matches.
type Receipt struct {
	SourcePath  string    `json:"source_path"`
	SourceMtime time.Time `json:"source_mtime"`
	SourceSize  int64     `json:"source_size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Path returns the receipt file path for input inside cacheDir.
func Path(input jobs.InputFile, cacheDir string) string {
	return filepath.Join(cacheDir, fileutil.Stem(input.Path)+Extension)
}

// FragmentPath returns the fragment file path for input inside cacheDir.
func FragmentPath(input jobs.InputFile, cacheDir string) string {
	return filepath.Join(cacheDir, fileutil.Stem(input.Path)+FragmentSuffix)
}

// Write persists a receipt reflecting the current stat of the source file.
func Write(input jobs.InputFile, cacheDir string) error {
	info, err := os.Stat(input.Path)
	if err != nil {
		return fmt.Errorf("stat source %s: %w", input.Path, err)
	}
	rec := Receipt{
		SourcePath:  input.Path,
		SourceMtime: info.ModTime(),
		SourceSize:  info.Size(),
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	if err := os.WriteFile(Path(input, cacheDir), data, 0o644); err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}
	return nil
}

// IsValid reports whether a fragment plus matching receipt exist for input.
// The receipt matches while the live source size equals the recorded size and
// the mtimes agree within the tolerance window.
func IsValid(input jobs.InputFile, cacheDir string) bool {
	if _, err := os.Stat(FragmentPath(input, cacheDir)); err != nil {
		return false
	}

	data, err := os.ReadFile(Path(input, cacheDir))
	if err != nil {
		return false
	}
	var rec Receipt
	if err := json.Unmarshal(data, &rec); err != nil {
		return false
	}

	info, err := os.Stat(input.Path)
	if err != nil {
		return false
	}
	if info.Size() != rec.SourceSize {
		return false
	}
	drift := info.ModTime().Sub(rec.SourceMtime)
	if drift < 0 {
		drift = -drift
	}
	return drift < mtimeTolerance
}

// Invalidate removes the fragment and receipt pair for input so the file is
// reconverted on the next run. Missing files are not an error.
func Invalidate(input jobs.InputFile, cacheDir string) error {
	var errs []error
	for _, path := range []string{FragmentPath(input, cacheDir), Path(input, cacheDir)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
