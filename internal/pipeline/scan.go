package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"audiobookmaker/internal/config"
	"audiobookmaker/internal/fileutil"
	"audiobookmaker/internal/jobs"
	"audiobookmaker/internal/logging"
	"audiobookmaker/internal/validation"
)

// scanInputs expands the requested paths into a naturally ordered list of
// input files. Directories contribute their audio files non-recursively;
// explicit file arguments with unsupported extensions are skipped with a
// warning. Ordinals are assigned after sorting.
func (p *Processor) scanInputs(paths []string) ([]jobs.InputFile, error) {
	var files []string
	for _, raw := range paths {
		path, err := config.ExpandPath(raw)
		if err != nil {
			return nil, jobs.Wrap(jobs.ErrValidation, "pipeline", "scan", raw, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, jobs.Wrap(jobs.ErrValidation, "pipeline", "scan",
				fmt.Sprintf("path does not exist: %s", path), err)
		}

		if info.IsDir() {
			entries, err := os.ReadDir(path)
			if err != nil {
				return nil, jobs.Wrap(jobs.ErrValidation, "pipeline", "scan", path, err)
			}
			found := 0
			for _, entry := range entries {
				if entry.IsDir() || !validation.SupportedExtension(entry.Name()) {
					continue
				}
				files = append(files, filepath.Join(path, entry.Name()))
				found++
			}
			p.logger.Info("scanned directory", logging.String("path", path), logging.Int("audio_files", found))
			continue
		}

		if !validation.SupportedExtension(path) {
			p.logger.Warn("skipping unsupported file", logging.String("path", path))
			continue
		}
		files = append(files, path)
	}

	if len(files) == 0 {
		return nil, jobs.Wrap(jobs.ErrValidation, "pipeline", "scan",
			"no audio files found in the given paths", nil)
	}

	fileutil.SortNatural(files)

	inputs := make([]jobs.InputFile, len(files))
	for i, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			return nil, jobs.Wrap(jobs.ErrValidation, "pipeline", "scan", path, err)
		}
		inputs[i] = jobs.InputFile{Path: path, Size: info.Size(), ModTime: info.ModTime(), Ordinal: i}
	}
	return inputs, nil
}
