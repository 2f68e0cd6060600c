package janitor

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"audiobookmaker/internal/fileutil"
	"audiobookmaker/internal/jobid"
	"audiobookmaker/internal/logging"
)

// CacheEntry describes one job cache directory found under the temp root.
type CacheEntry struct {
	Path      string
	Digest    string
	SizeBytes int64
	ModTime   time.Time
}

// SweepResult reports what a retention sweep removed.
type SweepResult struct {
	Removed    int
	FreedBytes int64
	Failed     int
}

// Janitor removes abandoned job cache directories. Removal failures are
// logged and counted, never fatal; a busy directory is retried on the next
// sweep.
type Janitor struct {
	logger *slog.Logger
	root   string
}

func New(logger *slog.Logger, root string) *Janitor {
	return &Janitor{
		logger: logging.NewComponentLogger(logger, "janitor"),
		root:   root,
	}
}

// List returns every job cache directory under the root, newest first.
func (j *Janitor) List() ([]CacheEntry, error) {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var caches []CacheEntry
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), jobid.Prefix) {
			continue
		}
		path := filepath.Join(j.root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		caches = append(caches, CacheEntry{
			Path:      path,
			Digest:    strings.TrimPrefix(entry.Name(), jobid.Prefix),
			SizeBytes: fileutil.DirSizeBytes(path),
			ModTime:   newestMtime(path, info.ModTime()),
		})
	}
	sort.Slice(caches, func(i, k int) bool { return caches[i].ModTime.After(caches[k].ModTime) })
	return caches, nil
}

// Sweep removes cache directories whose contents are older than the
// retention period.
func (j *Janitor) Sweep(retention time.Duration) (SweepResult, error) {
	caches, err := j.List()
	if err != nil {
		return SweepResult{}, err
	}

	cutoff := time.Now().Add(-retention)
	var result SweepResult
	for _, cache := range caches {
		if !cache.ModTime.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(cache.Path); err != nil {
			result.Failed++
			j.logger.Warn("cache dir removal failed", logging.String("path", cache.Path), logging.Error(err))
			continue
		}
		result.Removed++
		result.FreedBytes += cache.SizeBytes
		j.logger.Info("removed stale cache dir",
			logging.String("path", cache.Path),
			logging.Int64("freed_bytes", cache.SizeBytes),
		)
	}
	return result, nil
}

// Clear removes every job cache directory regardless of age.
func (j *Janitor) Clear() (SweepResult, error) {
	return j.Sweep(0)
}

// newestMtime walks the cache dir so a resumed job with old sources is still
// considered active while fragments keep appearing.
func newestMtime(dir string, fallback time.Time) time.Time {
	newest := fallback
	_ = filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return newest
}
