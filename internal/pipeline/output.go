package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"audiobookmaker/internal/config"
	"audiobookmaker/internal/fileutil"
	"audiobookmaker/internal/jobs"
	"audiobookmaker/internal/metadata"
)

// resolveOutputPath picks the final audiobook path. An explicit path wins;
// otherwise the name comes from the template (or an explicit name) and the
// directory from the request or the first input's directory.
func resolveOutputPath(req Request, inputs []jobs.InputFile, book metadata.Book, defaultTemplate string) (string, error) {
	if req.OutputPath != "" {
		return config.ExpandPath(req.OutputPath)
	}

	dir := req.OutputDir
	if dir == "" {
		dir = filepath.Dir(inputs[0].Path)
	}
	dir, err := config.ExpandPath(dir)
	if err != nil {
		return "", err
	}

	name := req.OutputName
	if name == "" {
		template := req.Template
		if template == "" {
			template = defaultTemplate
		}
		name = renderTemplate(template, book)
	}
	name = fileutil.SanitizeFilename(strings.TrimSpace(name))
	if name == "" {
		name = "Audiobook"
	}
	if !strings.EqualFold(filepath.Ext(name), ".m4b") {
		name += ".m4b"
	}
	return filepath.Join(dir, name), nil
}

var templateVars = []struct {
	key   string
	value func(metadata.Book) string
}{
	{"{title}", func(b metadata.Book) string { return b.Title }},
	{"{author}", func(b metadata.Book) string { return b.Author }},
	{"{album}", func(b metadata.Book) string { return b.Album }},
	{"{year}", func(b metadata.Book) string { return b.Year }},
}

func renderTemplate(template string, book metadata.Book) string {
	rendered := template
	for _, v := range templateVars {
		rendered = strings.ReplaceAll(rendered, v.key, v.value(book))
	}
	return strings.TrimSpace(rendered)
}

// checkOutputTarget fails when the output already exists and overwriting was
// not requested, and ensures the parent directory exists.
func checkOutputTarget(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return jobs.Wrap(jobs.ErrValidation, "pipeline", "output",
			fmt.Sprintf("output already exists: %s (pass --overwrite to replace)", path), nil)
	}
	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return jobs.Wrap(jobs.ErrValidation, "pipeline", "output", "create output directory", err)
	}
	return nil
}
