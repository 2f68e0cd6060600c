package concat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"audiobookmaker/internal/jobs"
	"audiobookmaker/internal/logging"
	"audiobookmaker/internal/media/ffmpeg"
	"audiobookmaker/internal/resources"
)

// ManifestName is the concat demuxer list written into the job cache dir.
const ManifestName = "concat_list.txt"

// Concatenator merges converted fragments into the final audiobook with the
// concat demuxer in stream-copy mode, so memory use stays flat no matter how
// many fragments there are.
type Concatenator struct {
	logger     *slog.Logger
	transcoder ffmpeg.Transcoder
}

func New(logger *slog.Logger, transcoder ffmpeg.Transcoder) *Concatenator {
	return &Concatenator{
		logger:     logging.NewComponentLogger(logger, "concat"),
		transcoder: transcoder,
	}
}

// WriteManifest writes the fragment list in ordinal order and returns its
// path. Fragment order in the manifest decides chapter order in the output.
func WriteManifest(cacheDir string, fragments []jobs.ConvertedFragment) (string, error) {
	if len(fragments) == 0 {
		return "", jobs.Wrap(jobs.ErrConcatenation, "concat", "manifest", "no fragments to merge", nil)
	}
	ordered := make([]jobs.ConvertedFragment, len(fragments))
	copy(ordered, fragments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Ordinal < ordered[j].Ordinal })

	var b strings.Builder
	for _, fragment := range ordered {
		fmt.Fprintf(&b, "file '%s'\n", escapePath(fragment.Path))
	}

	path := filepath.Join(cacheDir, ManifestName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", jobs.Wrap(jobs.ErrConcatenation, "concat", "manifest", "write fragment list", err)
	}
	return path, nil
}

// escapePath guards single quotes for the concat demuxer's quoted file form.
func escapePath(path string) string {
	return strings.ReplaceAll(path, `'`, `'\''`)
}

// Merge writes the manifest and runs the stream-copy concatenation. A failed
// merge removes the partial output. The resident-memory delta across the
// merge is logged as a diagnostic that no fragment was decoded into memory.
func (c *Concatenator) Merge(ctx context.Context, cacheDir string, fragments []jobs.ConvertedFragment, outputPath string) error {
	listPath, err := WriteManifest(cacheDir, fragments)
	if err != nil {
		return err
	}

	rssBefore := resources.SampleRSSMB()
	c.logger.Info("merging fragments",
		logging.Int("fragments", len(fragments)),
		logging.String("output", outputPath),
	)

	if err := c.transcoder.Concat(ctx, listPath, outputPath); err != nil {
		if removeErr := os.Remove(outputPath); removeErr != nil && !os.IsNotExist(removeErr) {
			c.logger.Warn("partial output cleanup failed", logging.String("path", outputPath), logging.Error(removeErr))
		}
		return jobs.Wrap(jobs.ErrConcatenation, "concat", "merge", outputPath, err)
	}

	if rssAfter := resources.SampleRSSMB(); rssBefore > 0 && rssAfter > 0 {
		c.logger.Debug("merge memory footprint",
			logging.Int64("rss_before_mb", rssBefore),
			logging.Int64("rss_after_mb", rssAfter),
		)
	}
	return nil
}
