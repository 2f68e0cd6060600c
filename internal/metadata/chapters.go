package metadata

import (
	"fmt"
	"os"
	"strings"
)

// Chapter is one chapter marker with millisecond boundaries.
type Chapter struct {
	Title   string
	StartMS int64
	EndMS   int64
}

// BuildChapters lays out chapters back to back from per-file durations in
// ordinal order. Inputs of 5000 ms and 3000 ms produce starts 0 and 5000
// with a total of 8000 ms.
func BuildChapters(titles []string, durationsMS []int64) ([]Chapter, int64, error) {
	if len(titles) != len(durationsMS) {
		return nil, 0, fmt.Errorf("chapter layout: %d titles for %d durations", len(titles), len(durationsMS))
	}
	chapters := make([]Chapter, len(titles))
	var cursor int64
	for i, title := range titles {
		if durationsMS[i] < 0 {
			return nil, 0, fmt.Errorf("chapter layout: negative duration for %q", title)
		}
		chapters[i] = Chapter{Title: title, StartMS: cursor, EndMS: cursor + durationsMS[i]}
		cursor += durationsMS[i]
	}
	return chapters, cursor, nil
}

// WriteFFMetadata writes the book tags and chapter markers as an FFMETADATA1
// file at path, suitable for ffmpeg's metadata remuxing input.
func WriteFFMetadata(path string, book Book, chapters []Chapter) error {
	var b strings.Builder
	b.WriteString(";FFMETADATA1\n")
	writeTag(&b, "title", book.Title)
	writeTag(&b, "album", book.Album)
	writeTag(&b, "artist", book.Author)
	writeTag(&b, "album_artist", book.Author)
	writeTag(&b, "date", book.Year)
	writeTag(&b, "genre", book.Genre)
	writeTag(&b, "comment", book.Comment)
	writeTag(&b, "media_type", "2")

	for _, chapter := range chapters {
		b.WriteString("[CHAPTER]\n")
		b.WriteString("TIMEBASE=1/1000\n")
		fmt.Fprintf(&b, "START=%d\n", chapter.StartMS)
		fmt.Fprintf(&b, "END=%d\n", chapter.EndMS)
		writeTag(&b, "title", chapter.Title)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write metadata file: %w", err)
	}
	return nil
}

func writeTag(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s=%s\n", key, escapeFFMetadata(value))
}

var ffmetadataEscaper = strings.NewReplacer(
	`\`, `\\`,
	"=", `\=`,
	";", `\;`,
	"#", `\#`,
	"\n", `\`+"\n",
)

func escapeFFMetadata(value string) string {
	return ffmetadataEscaper.Replace(value)
}
