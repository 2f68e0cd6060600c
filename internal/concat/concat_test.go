package concat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"audiobookmaker/internal/jobs"
	"audiobookmaker/internal/logging"
	"audiobookmaker/internal/media/ffmpeg"
)

type stubTranscoder struct {
	concatErr error
	gotList   string
	gotOutput string
	writePart bool
}

func (s *stubTranscoder) Convert(ctx context.Context, inputPath, outputPath string, params jobs.EncodeParams, progress func(ffmpeg.ProgressUpdate)) error {
	return nil
}

func (s *stubTranscoder) Concat(ctx context.Context, listPath, outputPath string) error {
	s.gotList = listPath
	s.gotOutput = outputPath
	if s.writePart {
		_ = os.WriteFile(outputPath, []byte("partial"), 0o644)
	}
	return s.concatErr
}

func (s *stubTranscoder) Embed(ctx context.Context, inputPath, metadataPath, coverPath, outputPath string) error {
	return nil
}

func TestWriteManifestOrdinalOrderAndEscaping(t *testing.T) {
	cacheDir := t.TempDir()
	fragments := []jobs.ConvertedFragment{
		{Path: "/tmp/second_converted.m4a", Ordinal: 1},
		{Path: "/tmp/it's here_converted.m4a", Ordinal: 0},
	}

	path, err := WriteManifest(cacheDir, fragments)
	if err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	want := "file '/tmp/it'\\''s here_converted.m4a'\nfile '/tmp/second_converted.m4a'\n"
	if string(raw) != want {
		t.Fatalf("manifest = %q, want %q", raw, want)
	}
}

func TestWriteManifestRejectsEmptyInput(t *testing.T) {
	_, err := WriteManifest(t.TempDir(), nil)
	if !errors.Is(err, jobs.ErrConcatenation) {
		t.Fatalf("error = %v, want ErrConcatenation", err)
	}
}

func TestMergeInvokesTranscoder(t *testing.T) {
	cacheDir := t.TempDir()
	output := filepath.Join(t.TempDir(), "book.m4b")
	tr := &stubTranscoder{}

	err := New(logging.NewNop(), tr).Merge(context.Background(), cacheDir,
		[]jobs.ConvertedFragment{{Path: "/tmp/a_converted.m4a"}}, output)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if tr.gotList != filepath.Join(cacheDir, ManifestName) {
		t.Fatalf("list path = %q, want manifest in cache dir", tr.gotList)
	}
	if tr.gotOutput != output {
		t.Fatalf("output path = %q, want %q", tr.gotOutput, output)
	}
}

func TestMergeRemovesPartialOutputOnFailure(t *testing.T) {
	cacheDir := t.TempDir()
	output := filepath.Join(t.TempDir(), "book.m4b")
	tr := &stubTranscoder{concatErr: errors.New("demuxer choked"), writePart: true}

	err := New(logging.NewNop(), tr).Merge(context.Background(), cacheDir,
		[]jobs.ConvertedFragment{{Path: "/tmp/a_converted.m4a"}}, output)
	if !errors.Is(err, jobs.ErrConcatenation) {
		t.Fatalf("error = %v, want ErrConcatenation", err)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Fatal("partial output should have been removed")
	}
}
