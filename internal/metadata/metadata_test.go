package metadata

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"audiobookmaker/internal/jobs"
	"audiobookmaker/internal/logging"
	"audiobookmaker/internal/media/ffprobe"
)

func inputsFor(paths ...string) []jobs.InputFile {
	inputs := make([]jobs.InputFile, len(paths))
	for i, path := range paths {
		inputs[i] = jobs.InputFile{Path: path, Ordinal: i}
	}
	return inputs
}

func TestExtractUsesFirstFileTags(t *testing.T) {
	probe := func(ctx context.Context, path string) (ffprobe.Result, error) {
		return ffprobe.Result{Format: ffprobe.Format{Tags: map[string]string{
			"TITLE":  "The Martian",
			"ARTIST": "Andy Weir",
			"album":  "The Martian (Unabridged)",
			"date":   "2014",
		}}}, nil
	}
	e := NewExtractor(logging.NewNop(), probe)

	book := e.Extract(context.Background(), inputsFor("/books/The Martian/01.mp3", "/books/The Martian/02.mp3"))

	if book.Title != "The Martian" || book.Author != "Andy Weir" {
		t.Fatalf("book = %+v, want tag-derived title and author", book)
	}
	if book.Album != "The Martian (Unabridged)" || book.Year != "2014" {
		t.Fatalf("book = %+v, want album and year from tags", book)
	}
}

func TestExtractFallsBackToDirectoryName(t *testing.T) {
	probe := func(ctx context.Context, path string) (ffprobe.Result, error) {
		return ffprobe.Result{}, errors.New("probe exploded")
	}
	e := NewExtractor(logging.NewNop(), probe)

	book := e.Extract(context.Background(), inputsFor("/books/Dune/01.mp3"))

	if book.Title != "Dune" || book.Album != "Dune" {
		t.Fatalf("book = %+v, want directory-name fallback", book)
	}
	if book.Author != "Unknown Author" {
		t.Fatalf("author = %q, want Unknown Author", book.Author)
	}
}

func TestChapterTitlesAuto(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/in/01 - Opening Credits.mp3", "Opening Credits"},
		{"/in/Chapter 12 - The Escape.mp3", "The Escape"},
		{"/in/03-the book of blood.mp3", "The Book Of Blood"},
		{"/in/Track 2: Homecoming.mp3", "Homecoming"},
		{"/in/05.mp3", "Chapter 5"},
	}
	for i, tt := range tests {
		inputs := make([]jobs.InputFile, 5)
		for j := range inputs {
			inputs[j] = jobs.InputFile{Path: "/in/pad.mp3"}
		}
		inputs[i] = jobs.InputFile{Path: tt.path}
		got := ChapterTitles(inputs, TitleModeAuto)[i]
		if got != tt.want {
			t.Errorf("ChapterTitles(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestChapterTitlesFilenameAndGeneric(t *testing.T) {
	inputs := inputsFor("/in/01 - Intro.mp3", "/in/02 - Body.mp3")

	filename := ChapterTitles(inputs, TitleModeFilename)
	if filename[0] != "01 - Intro" {
		t.Fatalf("filename mode = %q, want raw stem", filename[0])
	}

	generic := ChapterTitles(inputs, TitleModeGeneric)
	if generic[0] != "Chapter 1" || generic[1] != "Chapter 2" {
		t.Fatalf("generic mode = %v, want numbered chapters", generic)
	}
}

func TestBuildChaptersCumulativeStarts(t *testing.T) {
	chapters, total, err := BuildChapters([]string{"One", "Two"}, []int64{5000, 3000})
	if err != nil {
		t.Fatalf("BuildChapters: %v", err)
	}
	if total != 8000 {
		t.Fatalf("total = %d, want 8000", total)
	}
	if chapters[0].StartMS != 0 || chapters[0].EndMS != 5000 {
		t.Fatalf("chapter 0 = %+v, want [0,5000]", chapters[0])
	}
	if chapters[1].StartMS != 5000 || chapters[1].EndMS != 8000 {
		t.Fatalf("chapter 1 = %+v, want [5000,8000]", chapters[1])
	}
}

func TestBuildChaptersLengthMismatch(t *testing.T) {
	if _, _, err := BuildChapters([]string{"One"}, []int64{5000, 3000}); err == nil {
		t.Fatal("expected an error for mismatched lengths")
	}
}

func TestWriteFFMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.txt")
	book := Book{Title: "Signal; Noise = Life", Author: "A. Author"}
	chapters := []Chapter{
		{Title: "One", StartMS: 0, EndMS: 5000},
		{Title: "Two", StartMS: 5000, EndMS: 8000},
	}

	if err := WriteFFMetadata(path, book, chapters); err != nil {
		t.Fatalf("WriteFFMetadata: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	content := string(raw)

	if !strings.HasPrefix(content, ";FFMETADATA1\n") {
		t.Fatal("missing FFMETADATA1 header")
	}
	if !strings.Contains(content, `title=Signal\; Noise \= Life`) {
		t.Fatalf("special characters not escaped:\n%s", content)
	}
	if !strings.Contains(content, "TIMEBASE=1/1000\nSTART=5000\nEND=8000\ntitle=Two\n") {
		t.Fatalf("second chapter block malformed:\n%s", content)
	}
	if strings.Contains(content, "date=") {
		t.Fatal("empty tags should be omitted")
	}
}

func TestFindCover(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if FindCover(dir) != "" {
		t.Fatal("expected no cover in a directory without images")
	}

	coverPath := filepath.Join(dir, "Cover.JPG")
	if err := imaging.Save(imaging.New(10, 10, image.White.C), coverPath); err != nil {
		t.Fatalf("save fixture: %v", err)
	}
	if got := FindCover(dir); got != coverPath {
		t.Fatalf("FindCover = %q, want %q", got, coverPath)
	}
}

func TestPrepareCoverBoundsLargeImages(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cover.png")
	if err := imaging.Save(imaging.New(2800, 1400, image.White.C), src); err != nil {
		t.Fatalf("save fixture: %v", err)
	}

	out, err := PrepareCover(src, dir)
	if err != nil {
		t.Fatalf("PrepareCover: %v", err)
	}
	img, err := imaging.Open(out)
	if err != nil {
		t.Fatalf("open result: %v", err)
	}
	if img.Bounds().Dx() != 1400 || img.Bounds().Dy() != 700 {
		t.Fatalf("bounds = %v, want 1400x700 after aspect-preserving fit", img.Bounds())
	}
}
