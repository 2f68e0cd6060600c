package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"audiobookmaker/internal/concat"
	"audiobookmaker/internal/config"
	"audiobookmaker/internal/deps"
	"audiobookmaker/internal/fileutil"
	"audiobookmaker/internal/history"
	"audiobookmaker/internal/jobid"
	"audiobookmaker/internal/jobs"
	"audiobookmaker/internal/logging"
	"audiobookmaker/internal/media/ffmpeg"
	"audiobookmaker/internal/media/ffprobe"
	"audiobookmaker/internal/metadata"
	"audiobookmaker/internal/notifications"
	"audiobookmaker/internal/receipt"
	"audiobookmaker/internal/resources"
	"audiobookmaker/internal/scheduler"
	"audiobookmaker/internal/shutdown"
	"audiobookmaker/internal/validation"
)

// ResumeMode controls how a rerun treats cached fragments.
type ResumeMode string

const (
	// ResumeAuto reuses valid cached fragments when present.
	ResumeAuto ResumeMode = "auto"
	// ResumeNever clears the job cache before converting.
	ResumeNever ResumeMode = "never"
	// ResumeForce requires resumable work to exist and fails otherwise.
	ResumeForce ResumeMode = "force"
)

// ParseResumeMode maps a flag value onto a ResumeMode.
func ParseResumeMode(s string) (ResumeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ResumeAuto):
		return ResumeAuto, nil
	case string(ResumeNever):
		return ResumeNever, nil
	case string(ResumeForce):
		return ResumeForce, nil
	default:
		return "", fmt.Errorf("unknown resume mode %q (expected auto, never, or force)", s)
	}
}

// Request describes one build invocation.
type Request struct {
	InputPaths []string
	OutputPath string
	OutputDir  string
	OutputName string
	Template   string
	Title      string
	Author     string
	CoverPath  string
	Resume     ResumeMode
	Overwrite  bool
}

// Result summarizes a finished build.
type Result struct {
	RunID           string
	OutputPath      string
	JobDigest       string
	CacheDir        string
	Book            metadata.Book
	TotalDurationMS int64
	Chapters        []metadata.Chapter
	InputCount      int
	Converted       int
	Resumed         int
	Failures        []jobs.FileError
	Took            time.Duration
	PeakRSSMB       int64
}

// FailureSummary renders the aggregate per-file error report, or "" when
// every file converted.
func (r *Result) FailureSummary() string {
	if len(r.Failures) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d files failed", len(r.Failures), r.InputCount)
	for _, failure := range r.Failures {
		fmt.Fprintf(&b, "\n  %s: %v", filepath.Base(failure.Path), failure.Err)
	}
	return b.String()
}

// Deps bundles the processor's collaborators so tests can substitute them.
type Deps struct {
	Transcoder  ffmpeg.Transcoder
	Probe       func(ctx context.Context, path string) (ffprobe.Result, error)
	Duration    scheduler.DurationFunc
	Monitor     *resources.Monitor
	Coordinator *shutdown.Coordinator
	History     *history.Store
	Notifier    notifications.Service

	// Optional observers forwarded to the scheduler.
	OnTaskDone     func(task jobs.ConversionTask, completed, total int)
	OnFileProgress func(inputPath string, update ffmpeg.ProgressUpdate)
}

// Processor drives a conversion end to end: scan, validate, schedule,
// concatenate, tag, and record.
type Processor struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   Deps
}

// New builds a processor from explicit collaborators.
func New(cfg *config.Config, logger *slog.Logger, d Deps) *Processor {
	return &Processor{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "pipeline"),
		deps:   d,
	}
}

// NewDefault wires a processor against the real ffmpeg and ffprobe binaries.
func NewDefault(cfg *config.Config, logger *slog.Logger, coordinator *shutdown.Coordinator, store *history.Store) *Processor {
	ffprobeBinary := cfg.FFprobeBinary()
	return New(cfg, logger, Deps{
		Transcoder: ffmpeg.NewCLI(ffmpeg.WithBinary(cfg.FFmpegBinary())),
		Probe: func(ctx context.Context, path string) (ffprobe.Result, error) {
			return ffprobe.Inspect(ctx, ffprobeBinary, path)
		},
		Duration: func(ctx context.Context, path string) (int64, error) {
			return ffprobe.DurationMS(ctx, ffprobeBinary, path)
		},
		Monitor:     resources.NewMonitor(logger, cfg.Limits.MemoryLimitMB, cfg.Limits.DiskMarginMB),
		Coordinator: coordinator,
		History:     store,
		Notifier:    notifications.NewService(cfg),
	})
}

// Observe registers optional progress callbacks forwarded to the scheduler.
// Call before Run.
func (p *Processor) Observe(onTaskDone func(task jobs.ConversionTask, completed, total int), onFileProgress func(inputPath string, update ffmpeg.ProgressUpdate)) {
	p.deps.OnTaskDone = onTaskDone
	p.deps.OnFileProgress = onFileProgress
}

// Run executes one build request.
func (p *Processor) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := p.logger.With(logging.String("run_id", runID))

	if err := deps.Verify(p.cfg.FFmpegBinary(), p.cfg.FFprobeBinary()); err != nil {
		return nil, err
	}

	inputs, err := p.scanInputs(req.InputPaths)
	if err != nil {
		return nil, err
	}

	level, err := validation.ParseLevel(p.cfg.Validation.Level)
	if err != nil {
		return nil, err
	}
	validator := validation.New(p.logger, level, p.deps.Probe)
	valid, report, err := validator.ValidateAll(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if len(valid) < len(inputs) {
		logger.Warn("continuing without invalid inputs", logging.String("report", report.Summary()))
		// Reassign ordinals so chapters and fragments index the surviving set.
		for i := range valid {
			valid[i].Ordinal = i
		}
	}

	extractor := metadata.NewExtractor(p.logger, p.deps.Probe)
	book := extractor.Extract(ctx, valid)
	if req.Title != "" {
		book.Title = req.Title
	}
	if req.Author != "" {
		book.Author = req.Author
	}

	titleMode, err := metadata.ParseTitleMode(p.cfg.Output.ChapterTitles)
	if err != nil {
		return nil, err
	}
	titles := metadata.ChapterTitles(valid, titleMode)

	outputPath, err := resolveOutputPath(req, valid, book, p.cfg.Output.Template)
	if err != nil {
		return nil, err
	}
	if err := checkOutputTarget(outputPath, req.Overwrite || p.cfg.Output.OverwriteExisting); err != nil {
		return nil, err
	}

	if p.deps.Notifier != nil {
		if notifyErr := p.deps.Notifier.NotifyRunStarted(ctx, book.Title, len(valid)); notifyErr != nil {
			logger.Warn("start notification failed", logging.Error(notifyErr))
		}
	}

	estimate := resources.Estimate(valid)
	logger.Info("starting build",
		logging.Int("inputs", len(valid)),
		logging.String("output", outputPath),
		logging.Int64("input_mb", estimate.InputMB),
		logging.Int64("estimated_disk_mb", estimate.DiskMB),
	)
	if err := p.deps.Monitor.CheckDisk(p.cfg.Cache.Root, estimate.DiskMB); err != nil {
		return nil, err
	}
	if err := p.deps.Monitor.CheckMemory(); err != nil {
		return nil, err
	}

	params := jobs.EncodeParams{
		Bitrate:    p.cfg.Audio.Bitrate,
		SampleRate: p.cfg.Audio.SampleRate,
		Channels:   p.cfg.Audio.Channels,
	}
	id := jobid.Compute(p.cfg.Cache.Root, inputPaths(valid), outputPath, params)

	switch req.Resume {
	case ResumeNever:
		if err := id.Clear(); err != nil {
			return nil, fmt.Errorf("clear job cache: %w", err)
		}
		logger.Info("cleared job cache", logging.String("dir", id.Dir))
	case ResumeForce:
		if !hasResumableWork(id.Dir) {
			return nil, jobs.Wrap(jobs.ErrValidation, "pipeline", "resume",
				"resume forced but no resumable work found", nil)
		}
	}
	if err := id.Ensure(); err != nil {
		return nil, fmt.Errorf("create job cache: %w", err)
	}
	release, err := id.Lock()
	if err != nil {
		return nil, err
	}
	var unlockOnce sync.Once
	unlock := func() { unlockOnce.Do(release) }
	defer unlock()
	if p.deps.Coordinator != nil {
		// The lock must not outlive the process even when a signal ends
		// the run between here and the deferred release.
		p.deps.Coordinator.AddCleanup(unlock)
	}

	result := &Result{
		RunID:      runID,
		OutputPath: outputPath,
		JobDigest:  id.Digest,
		CacheDir:   id.Dir,
		Book:       book,
		InputCount: len(valid),
	}

	sched := scheduler.New(p.logger, p.deps.Transcoder, p.deps.Duration, p.deps.Monitor, scheduler.Options{
		Workers:          p.cfg.Audio.Cores,
		TaskTimeout:      time.Duration(p.cfg.Limits.TaskTimeoutSeconds) * time.Second,
		MemoryCheckEvery: p.cfg.Limits.MemoryCheckTasks,
		StopRequested:    p.stopRequested(),
		OnTaskDone:       p.deps.OnTaskDone,
		OnFileProgress:   p.deps.OnFileProgress,
	})
	outcome, err := sched.Run(ctx, id.Dir, valid, params)
	if outcome != nil {
		result.Converted = outcome.Converted
		result.Resumed = outcome.Resumed
		result.Failures = outcome.Failures
	}
	if err != nil {
		p.recordRun(ctx, result, statusForError(err), err, time.Since(start))
		return result, err
	}

	chapterTitles := make([]string, len(outcome.Fragments))
	durations := make([]int64, len(outcome.Fragments))
	for i, fragment := range outcome.Fragments {
		chapterTitles[i] = titles[fragment.Ordinal]
		durations[i] = fragment.DurationMS
	}
	chapters, totalMS, err := metadata.BuildChapters(chapterTitles, durations)
	if err != nil {
		p.recordRun(ctx, result, history.StatusFailed, err, time.Since(start))
		return result, err
	}
	result.Chapters = chapters
	result.TotalDurationMS = totalMS

	merged := filepath.Join(id.Dir, "merged.m4a")
	concatenator := concat.New(p.logger, p.deps.Transcoder)
	if err := concatenator.Merge(ctx, id.Dir, outcome.Fragments, merged); err != nil {
		p.recordRun(ctx, result, history.StatusFailed, err, time.Since(start))
		return result, err
	}

	if err := p.writeTags(ctx, id.Dir, merged, outputPath, req, book, chapters, valid); err != nil {
		// The merged audio is intact; deliver it untagged rather than fail.
		logger.Warn("metadata embedding failed, writing untagged output", logging.Error(err))
		if copyErr := fileutil.CopyFile(merged, outputPath); copyErr != nil {
			err = fmt.Errorf("%w (fallback copy also failed: %v)", err, copyErr)
			p.recordRun(ctx, result, history.StatusFailed, err, time.Since(start))
			return result, err
		}
	}

	if len(result.Failures) == 0 {
		if err := os.RemoveAll(id.Dir); err != nil {
			logger.Warn("job cache cleanup failed", logging.String("dir", id.Dir), logging.Error(err))
		}
	} else {
		logger.Info("keeping job cache for retry", logging.String("dir", id.Dir))
	}

	result.Took = time.Since(start)
	if p.deps.Monitor != nil {
		result.PeakRSSMB = p.deps.Monitor.PeakRSSMB()
	}
	p.recordRun(ctx, result, history.StatusCompleted, nil, result.Took)
	logger.Info("build complete",
		logging.String("output", outputPath),
		logging.Int64("total_audio_ms", totalMS),
		logging.Int("converted", result.Converted),
		logging.Int("resumed", result.Resumed),
		logging.Int("failed", len(result.Failures)),
		logging.Duration("took", result.Took),
	)
	return result, nil
}

// writeTags builds the FFMETADATA file and remuxes tags, chapters, and
// optional cover art into the final output.
func (p *Processor) writeTags(ctx context.Context, cacheDir, merged, outputPath string, req Request, book metadata.Book, chapters []metadata.Chapter, inputs []jobs.InputFile) error {
	metaPath := filepath.Join(cacheDir, "ffmetadata.txt")
	if err := metadata.WriteFFMetadata(metaPath, book, chapters); err != nil {
		return err
	}

	coverSource := req.CoverPath
	if coverSource == "" && len(inputs) > 0 {
		coverSource = metadata.FindCover(filepath.Dir(inputs[0].Path))
	}
	coverPath := ""
	if coverSource != "" {
		prepared, err := metadata.PrepareCover(coverSource, cacheDir)
		if err != nil {
			p.logger.Warn("cover art unusable, embedding without it",
				logging.String("path", coverSource),
				logging.Error(err),
			)
		} else {
			coverPath = prepared
		}
	}

	return p.deps.Transcoder.Embed(ctx, merged, metaPath, coverPath, outputPath)
}

func (p *Processor) stopRequested() func() bool {
	if p.deps.Coordinator == nil {
		return nil
	}
	return p.deps.Coordinator.Requested
}

func (p *Processor) recordRun(ctx context.Context, result *Result, status string, runErr error, took time.Duration) {
	p.notifyRun(ctx, result, status, runErr, took)
	if p.deps.History == nil {
		return
	}
	summary := result.FailureSummary()
	if runErr != nil {
		if summary != "" {
			summary = runErr.Error() + "; " + summary
		} else {
			summary = runErr.Error()
		}
	}
	_, err := p.deps.History.RecordRun(ctx, history.Run{
		ID:             result.RunID,
		JobDigest:      result.JobDigest,
		OutputPath:     result.OutputPath,
		Status:         status,
		InputCount:     result.InputCount,
		ConvertedCount: result.Converted,
		ResumedCount:   result.Resumed,
		FailedCount:    len(result.Failures),
		Duration:       took,
		TotalAudioMS:   result.TotalDurationMS,
		ErrorSummary:   summary,
	})
	if err != nil {
		p.logger.Warn("run history write failed", logging.Error(err))
	}
}

// notifyRun pushes the terminal run event. Delivery is best effort; a
// notification failure never affects the run outcome.
func (p *Processor) notifyRun(ctx context.Context, result *Result, status string, runErr error, took time.Duration) {
	if p.deps.Notifier == nil {
		return
	}
	var err error
	switch status {
	case history.StatusCompleted:
		err = p.deps.Notifier.NotifyRunCompleted(ctx, result.Book.Title, result.OutputPath, took)
	default:
		err = p.deps.Notifier.NotifyRunFailed(ctx, result.Book.Title, runErr)
	}
	if err != nil {
		p.logger.Warn("run notification failed", logging.Error(err))
	}
}

func statusForError(err error) string {
	if errors.Is(err, jobs.ErrCancelled) {
		return history.StatusCancelled
	}
	return history.StatusFailed
}

func hasResumableWork(cacheDir string) bool {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), receipt.Extension) {
			return true
		}
	}
	return false
}

func inputPaths(inputs []jobs.InputFile) []string {
	paths := make([]string, len(inputs))
	for i, input := range inputs {
		paths[i] = input.Path
	}
	return paths
}
