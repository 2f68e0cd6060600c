package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"audiobookmaker/internal/fileutil"
	"audiobookmaker/internal/jobs"
	"audiobookmaker/internal/logging"
	"audiobookmaker/internal/media/ffprobe"
)

// TitleMode selects how chapter titles are derived.
type TitleMode string

const (
	// TitleModeAuto cleans track prefixes off filenames, falling back to
	// generic numbering when nothing useful remains.
	TitleModeAuto TitleMode = "auto"
	// TitleModeFilename uses the bare filename stem untouched.
	TitleModeFilename TitleMode = "filename"
	// TitleModeGeneric numbers every chapter "Chapter N".
	TitleModeGeneric TitleMode = "generic"
)

// ParseTitleMode maps a config string onto a TitleMode.
func ParseTitleMode(s string) (TitleMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(TitleModeAuto):
		return TitleModeAuto, nil
	case string(TitleModeFilename):
		return TitleModeFilename, nil
	case string(TitleModeGeneric):
		return TitleModeGeneric, nil
	default:
		return "", fmt.Errorf("unknown chapter title mode %q (expected auto, filename, or generic)", s)
	}
}

// Book holds the album-level tags applied to the finished audiobook.
type Book struct {
	Title   string
	Author  string
	Album   string
	Year    string
	Genre   string
	Comment string
}

// ProbeFunc decodes one file's container tags, typically a closure over
// ffprobe.Inspect with the configured binary.
type ProbeFunc func(ctx context.Context, path string) (ffprobe.Result, error)

// Extractor derives book tags and chapter titles from the input files.
type Extractor struct {
	logger *slog.Logger
	probe  ProbeFunc
}

func NewExtractor(logger *slog.Logger, probe ProbeFunc) *Extractor {
	return &Extractor{
		logger: logging.NewComponentLogger(logger, "metadata"),
		probe:  probe,
	}
}

// Extract reads tags from the first input file. Missing tags fall back to the
// parent directory name for title and album and "Unknown Author" for author.
// Tag extraction failure is never fatal, the fallbacks apply.
func (e *Extractor) Extract(ctx context.Context, inputs []jobs.InputFile) Book {
	book := Book{Author: "Unknown Author"}
	if len(inputs) == 0 {
		book.Title = "Audiobook"
		book.Album = book.Title
		return book
	}

	first := inputs[0].Path
	dirName := filepath.Base(filepath.Dir(first))
	book.Title = dirName
	book.Album = dirName

	result, err := e.probe(ctx, first)
	if err != nil {
		e.logger.Warn("tag extraction failed, using directory name",
			logging.String("path", first),
			logging.Error(err),
		)
		return book
	}

	if title := result.Tag("title"); title != "" {
		book.Title = title
	}
	if album := result.Tag("album"); album != "" {
		book.Album = album
	} else {
		book.Album = book.Title
	}
	if author := result.Tag("artist", "album_artist", "albumartist"); author != "" {
		book.Author = author
	}
	book.Year = result.Tag("date", "year")
	book.Genre = result.Tag("genre")
	book.Comment = result.Tag("comment", "description")
	return book
}

var (
	trackPrefix  = regexp.MustCompile(`^\d+\s*[-:.)]\s*`)
	labelPrefix  = regexp.MustCompile(`(?i)^(chapter|track|part)\s*\d+\s*[-:.)]\s*`)
	titleCaser   = cases.Title(language.English, cases.NoLower)
	allLowerWord = regexp.MustCompile(`^[a-z0-9 '&,-]+$`)
)

// ChapterTitles derives one title per input in order, according to mode.
func ChapterTitles(inputs []jobs.InputFile, mode TitleMode) []string {
	titles := make([]string, len(inputs))
	for i, input := range inputs {
		switch mode {
		case TitleModeFilename:
			titles[i] = fileutil.Stem(input.Path)
		case TitleModeGeneric:
			titles[i] = fmt.Sprintf("Chapter %d", i+1)
		default:
			titles[i] = cleanChapterTitle(input.Path, i)
		}
	}
	return titles
}

// cleanChapterTitle strips track-number prefixes from the filename stem.
// All-lowercase stems are title-cased; mixed-case stems are left alone so
// deliberate casing and acronyms survive.
func cleanChapterTitle(path string, index int) string {
	stem := fileutil.Stem(path)
	cleaned := trackPrefix.ReplaceAllString(stem, "")
	cleaned = labelPrefix.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) < 2 {
		return fmt.Sprintf("Chapter %d", index+1)
	}
	if allLowerWord.MatchString(cleaned) {
		cleaned = titleCaser.String(cleaned)
	}
	return cleaned
}
