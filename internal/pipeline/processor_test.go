package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"audiobookmaker/internal/history"
	"audiobookmaker/internal/jobs"
	"audiobookmaker/internal/logging"
	"audiobookmaker/internal/media/ffmpeg"
	"audiobookmaker/internal/media/ffprobe"
	"audiobookmaker/internal/metadata"
	"audiobookmaker/internal/resources"
	"audiobookmaker/internal/testsupport"
)

type fakeTranscoder struct {
	mu        sync.Mutex
	converted []string
	failFor   map[string]error
	embedErr  error
	concatErr error
}

func (f *fakeTranscoder) Convert(ctx context.Context, inputPath, outputPath string, params jobs.EncodeParams, progress func(ffmpeg.ProgressUpdate)) error {
	if err := f.failFor[filepath.Base(inputPath)]; err != nil {
		return err
	}
	f.mu.Lock()
	f.converted = append(f.converted, filepath.Base(inputPath))
	f.mu.Unlock()
	return os.WriteFile(outputPath, []byte("fragment"), 0o644)
}

func (f *fakeTranscoder) Concat(ctx context.Context, listPath, outputPath string) error {
	if f.concatErr != nil {
		return f.concatErr
	}
	return os.WriteFile(outputPath, []byte("merged"), 0o644)
}

func (f *fakeTranscoder) Embed(ctx context.Context, inputPath, metadataPath, coverPath, outputPath string) error {
	if f.embedErr != nil {
		return f.embedErr
	}
	return os.WriteFile(outputPath, []byte("tagged"), 0o644)
}

func fakeProbe(ctx context.Context, path string) (ffprobe.Result, error) {
	return ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "audio", CodecName: "mp3", SampleRate: "44100", Channels: 2}},
		Format: ffprobe.Format{
			Duration: "5.0",
			Tags:     map[string]string{"title": "Test Book", "artist": "Test Author"},
		},
	}, nil
}

func fakeDuration(ctx context.Context, path string) (int64, error) {
	if strings.Contains(filepath.Base(path), "01") {
		return 5000, nil
	}
	return 3000, nil
}

func newTestProcessor(t *testing.T, tr *fakeTranscoder) (*Processor, string) {
	t.Helper()
	testsupport.StubBinaries(t)
	cfg := testsupport.NewConfig(t)
	processor := New(cfg, logging.NewNop(), Deps{
		Transcoder: tr,
		Probe:      fakeProbe,
		Duration:   fakeDuration,
		Monitor:    resources.NewMonitor(logging.NewNop(), 1<<20, 1),
	})
	return processor, cfg.Cache.Root
}

func TestRunEndToEnd(t *testing.T) {
	inputDir := t.TempDir()
	testsupport.WriteAudioInputs(t, inputDir, "01 - Intro.mp3", "02 - Ending.mp3")
	outputPath := filepath.Join(t.TempDir(), "book.m4b")

	tr := &fakeTranscoder{}
	processor, _ := newTestProcessor(t, tr)

	result, err := processor.Run(context.Background(), Request{
		InputPaths: []string{inputDir},
		OutputPath: outputPath,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Converted != 2 || len(result.Failures) != 0 {
		t.Fatalf("converted=%d failures=%d, want 2/0", result.Converted, len(result.Failures))
	}
	if result.TotalDurationMS != 8000 {
		t.Fatalf("TotalDurationMS = %d, want 8000", result.TotalDurationMS)
	}
	wantChapters := []metadata.Chapter{
		{Title: "Intro", StartMS: 0, EndMS: 5000},
		{Title: "Ending", StartMS: 5000, EndMS: 8000},
	}
	for i, want := range wantChapters {
		if result.Chapters[i] != want {
			t.Fatalf("chapter %d = %+v, want %+v", i, result.Chapters[i], want)
		}
	}
	if data, readErr := os.ReadFile(outputPath); readErr != nil || string(data) != "tagged" {
		t.Fatalf("output = %q/%v, want the embedded result", data, readErr)
	}
	if _, statErr := os.Stat(result.CacheDir); !os.IsNotExist(statErr) {
		t.Fatal("cache dir should be removed after a fully successful run")
	}
}

func TestRunTemplateNaming(t *testing.T) {
	inputDir := t.TempDir()
	testsupport.WriteAudioInputs(t, inputDir, "01.mp3")
	outDir := t.TempDir()

	tr := &fakeTranscoder{}
	processor, _ := newTestProcessor(t, tr)

	result, err := processor.Run(context.Background(), Request{
		InputPaths: []string{inputDir},
		OutputDir:  outDir,
		Template:   "{author} - {title}",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := filepath.Join(outDir, "Test Author - Test Book.m4b")
	if result.OutputPath != want {
		t.Fatalf("output = %q, want %q", result.OutputPath, want)
	}
}

func TestRunPartialFailureKeepsCache(t *testing.T) {
	inputDir := t.TempDir()
	testsupport.WriteAudioInputs(t, inputDir, "01.mp3", "02.mp3", "03.mp3")
	outputPath := filepath.Join(t.TempDir(), "book.m4b")

	tr := &fakeTranscoder{failFor: map[string]error{"02.mp3": errors.New("corrupt frame")}}
	processor, _ := newTestProcessor(t, tr)

	result, err := processor.Run(context.Background(), Request{
		InputPaths: []string{inputDir},
		OutputPath: outputPath,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(result.Failures))
	}
	if !strings.Contains(result.FailureSummary(), "1 of 3 files failed") {
		t.Fatalf("summary = %q", result.FailureSummary())
	}
	if _, statErr := os.Stat(result.CacheDir); statErr != nil {
		t.Fatal("cache dir should be kept for retry after partial failure")
	}
	if len(result.Chapters) != 2 {
		t.Fatalf("chapters = %d, want 2 for the surviving files", len(result.Chapters))
	}
}

func TestRunResumeReusesFragments(t *testing.T) {
	inputDir := t.TempDir()
	testsupport.WriteAudioInputs(t, inputDir, "01.mp3", "02.mp3")
	outputPath := filepath.Join(t.TempDir(), "book.m4b")

	tr := &fakeTranscoder{failFor: map[string]error{"02.mp3": errors.New("flaky")}}
	processor, _ := newTestProcessor(t, tr)

	ctx := context.Background()
	req := Request{InputPaths: []string{inputDir}, OutputPath: outputPath, Overwrite: true}

	if _, err := processor.Run(ctx, req); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Second run: the flake is gone; the first file resumes from cache.
	tr.failFor = nil
	result, err := processor.Run(ctx, req)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Resumed != 1 || result.Converted != 1 {
		t.Fatalf("resumed=%d converted=%d, want 1/1", result.Resumed, result.Converted)
	}
}

func TestRunResumeNeverReconvertsEverything(t *testing.T) {
	inputDir := t.TempDir()
	testsupport.WriteAudioInputs(t, inputDir, "01.mp3", "02.mp3")
	outputPath := filepath.Join(t.TempDir(), "book.m4b")

	tr := &fakeTranscoder{failFor: map[string]error{"02.mp3": errors.New("flaky")}}
	processor, _ := newTestProcessor(t, tr)

	ctx := context.Background()
	if _, err := processor.Run(ctx, Request{InputPaths: []string{inputDir}, OutputPath: outputPath}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	tr.failFor = nil
	result, err := processor.Run(ctx, Request{
		InputPaths: []string{inputDir},
		OutputPath: outputPath,
		Overwrite:  true,
		Resume:     ResumeNever,
	})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Resumed != 0 || result.Converted != 2 {
		t.Fatalf("resumed=%d converted=%d, want 0/2 after cache clear", result.Resumed, result.Converted)
	}
}

func TestRunResumeForceWithoutCache(t *testing.T) {
	inputDir := t.TempDir()
	testsupport.WriteAudioInputs(t, inputDir, "01.mp3")

	processor, _ := newTestProcessor(t, &fakeTranscoder{})
	_, err := processor.Run(context.Background(), Request{
		InputPaths: []string{inputDir},
		OutputPath: filepath.Join(t.TempDir(), "book.m4b"),
		Resume:     ResumeForce,
	})
	if !errors.Is(err, jobs.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation when nothing is resumable", err)
	}
}

func TestRunRefusesExistingOutput(t *testing.T) {
	inputDir := t.TempDir()
	testsupport.WriteAudioInputs(t, inputDir, "01.mp3")
	outputPath := filepath.Join(t.TempDir(), "book.m4b")
	if err := os.WriteFile(outputPath, []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	processor, _ := newTestProcessor(t, &fakeTranscoder{})
	_, err := processor.Run(context.Background(), Request{
		InputPaths: []string{inputDir},
		OutputPath: outputPath,
	})
	if !errors.Is(err, jobs.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation for existing output", err)
	}
}

func TestRunEmbedFailureDeliversUntaggedOutput(t *testing.T) {
	inputDir := t.TempDir()
	testsupport.WriteAudioInputs(t, inputDir, "01.mp3")
	outputPath := filepath.Join(t.TempDir(), "book.m4b")

	tr := &fakeTranscoder{embedErr: errors.New("mp4 atom rejected")}
	processor, _ := newTestProcessor(t, tr)

	result, err := processor.Run(context.Background(), Request{
		InputPaths: []string{inputDir},
		OutputPath: outputPath,
	})
	if err != nil {
		t.Fatalf("Run: %v (embed failure should fall back to untagged delivery)", err)
	}
	data, readErr := os.ReadFile(result.OutputPath)
	if readErr != nil || string(data) != "merged" {
		t.Fatalf("output = %q/%v, want the untagged merge result", data, readErr)
	}
}

func TestRunRecordsHistory(t *testing.T) {
	inputDir := t.TempDir()
	testsupport.WriteAudioInputs(t, inputDir, "01.mp3")
	outputPath := filepath.Join(t.TempDir(), "book.m4b")

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer store.Close()

	testsupport.StubBinaries(t)
	cfg := testsupport.NewConfig(t)
	processor := New(cfg, logging.NewNop(), Deps{
		Transcoder: &fakeTranscoder{},
		Probe:      fakeProbe,
		Duration:   fakeDuration,
		Monitor:    resources.NewMonitor(logging.NewNop(), 1<<20, 1),
		History:    store,
	})

	result, err := processor.Run(context.Background(), Request{
		InputPaths: []string{inputDir},
		OutputPath: outputPath,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	runs, err := store.ListRuns(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != result.RunID {
		t.Fatalf("runs = %+v, want the recorded run", runs)
	}
	if runs[0].Status != history.StatusCompleted {
		t.Fatalf("status = %q, want completed", runs[0].Status)
	}
}
