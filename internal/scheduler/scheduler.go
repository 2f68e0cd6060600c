package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"audiobookmaker/internal/jobs"
	"audiobookmaker/internal/logging"
	"audiobookmaker/internal/media/ffmpeg"
	"audiobookmaker/internal/receipt"
	"audiobookmaker/internal/resources"
)

// DurationFunc measures a finished fragment, typically a closure over
// ffprobe.DurationMS with the configured binary.
type DurationFunc func(ctx context.Context, path string) (int64, error)

// Options tunes one scheduler run.
type Options struct {
	// Workers bounds concurrent conversions. Values below 1 run serially.
	Workers int
	// TaskTimeout is the hard per-file conversion deadline.
	TaskTimeout time.Duration
	// MemoryCheckEvery samples memory after every Nth completed task.
	MemoryCheckEvery int
	// StopRequested is polled between completions for cooperative shutdown.
	StopRequested func() bool
	// OnTaskDone observes each task reaching a terminal state.
	OnTaskDone func(task jobs.ConversionTask, completed, total int)
	// OnFileProgress observes ffmpeg progress for the named input.
	OnFileProgress func(inputPath string, update ffmpeg.ProgressUpdate)
}

// Outcome summarizes a scheduler run. Fragments holds only successful
// conversions, ordered by input ordinal regardless of completion order.
type Outcome struct {
	Tasks     []jobs.ConversionTask
	Fragments []jobs.ConvertedFragment
	Converted int
	Resumed   int
	Failures  []jobs.FileError
}

// Scheduler fans input files out over a bounded worker pool and reassembles
// the results in input order.
type Scheduler struct {
	logger     *slog.Logger
	transcoder ffmpeg.Transcoder
	duration   DurationFunc
	monitor    *resources.Monitor
	opts       Options
}

func New(logger *slog.Logger, transcoder ffmpeg.Transcoder, duration DurationFunc, monitor *resources.Monitor, opts Options) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 5 * time.Minute
	}
	if opts.MemoryCheckEvery < 1 {
		opts.MemoryCheckEvery = 5
	}
	if opts.StopRequested == nil {
		opts.StopRequested = func() bool { return false }
	}
	return &Scheduler{
		logger:     logging.NewComponentLogger(logger, "scheduler"),
		transcoder: transcoder,
		duration:   duration,
		monitor:    monitor,
		opts:       opts,
	}
}

type taskResult struct {
	index    int
	task     jobs.ConversionTask
	fragment jobs.ConvertedFragment
}

// Run converts every input into a cached fragment. Inputs with a valid
// receipt are skipped without re-encoding. A fatal error (missing
// dependency, exhausted resources) or a stop request aborts the run;
// per-file conversion failures are collected and reported in aggregate.
// Zero successful fragments is always an error.
func (s *Scheduler) Run(ctx context.Context, cacheDir string, inputs []jobs.InputFile, params jobs.EncodeParams) (*Outcome, error) {
	total := len(inputs)
	outcome := &Outcome{Tasks: make([]jobs.ConversionTask, total)}
	for i, input := range inputs {
		outcome.Tasks[i] = jobs.ConversionTask{Input: input, Status: jobs.StatusPending}
	}
	if total == 0 {
		return outcome, jobs.Wrap(jobs.ErrConversion, "scheduler", "run", "no input files", nil)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fragments := make([]*jobs.ConvertedFragment, total)
	results := make(chan taskResult)
	sem := make(chan struct{}, s.opts.Workers)
	var wg sync.WaitGroup

	dispatched := 0
	for i := range outcome.Tasks {
		if s.opts.StopRequested() || runCtx.Err() != nil {
			break
		}
		input := outcome.Tasks[i].Input

		if receipt.IsValid(input, cacheDir) {
			duration, err := s.duration(runCtx, receipt.FragmentPath(input, cacheDir))
			if err == nil {
				outcome.Tasks[i].Status = jobs.StatusResumedSkip
				outcome.Tasks[i].FragmentPath = receipt.FragmentPath(input, cacheDir)
				fragments[i] = &jobs.ConvertedFragment{
					Path:       outcome.Tasks[i].FragmentPath,
					DurationMS: duration,
					Ordinal:    input.Ordinal,
				}
				outcome.Resumed++
				s.logger.Info("resuming from cached fragment", logging.String("path", input.Path))
				continue
			}
			s.logger.Warn("cached fragment unreadable, reconverting",
				logging.String("path", input.Path),
				logging.Error(err),
			)
		}
		// Stale or absent; clear any leftover pair before converting.
		if err := receipt.Invalidate(input, cacheDir); err != nil {
			s.logger.Warn("stale fragment cleanup failed", logging.String("path", input.Path), logging.Error(err))
		}

		dispatched++
		wg.Add(1)
		go func(index int, input jobs.InputFile) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-runCtx.Done():
				results <- taskResult{index: index, task: s.cancelledTask(input)}
				return
			}
			defer func() { <-sem }()
			results <- s.runTask(runCtx, cacheDir, input, params, index)
		}(i, input)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := total - dispatched
	var fatal error
	for res := range results {
		outcome.Tasks[res.index] = res.task
		completed++

		switch res.task.Status {
		case jobs.StatusDone:
			fragment := res.fragment
			fragments[res.index] = &fragment
			outcome.Converted++
		case jobs.StatusFailedRecoverable:
			outcome.Failures = append(outcome.Failures, jobs.FileError{Path: res.task.Input.Path, Err: res.task.Err})
		case jobs.StatusFailedFatal:
			if fatal == nil {
				fatal = res.task.Err
			}
			cancel()
		}

		if s.opts.OnTaskDone != nil {
			s.opts.OnTaskDone(res.task, completed, total)
		}
		if s.opts.StopRequested() {
			cancel()
		}
		if s.monitor != nil && completed%s.opts.MemoryCheckEvery == 0 {
			if err := s.monitor.CheckMemory(); err != nil {
				if fatal == nil {
					fatal = err
				}
				cancel()
			}
		}
	}

	for i := range outcome.Tasks {
		if !outcome.Tasks[i].Status.Terminal() && outcome.Tasks[i].Status != jobs.StatusResumedSkip {
			outcome.Tasks[i].Status = jobs.StatusCancelled
		}
	}
	for _, fragment := range fragments {
		if fragment != nil {
			outcome.Fragments = append(outcome.Fragments, *fragment)
		}
	}

	switch {
	case fatal != nil:
		return outcome, fatal
	case s.opts.StopRequested():
		return outcome, jobs.Wrap(jobs.ErrCancelled, "scheduler", "run", "stop requested", nil)
	case len(outcome.Fragments) == 0:
		return outcome, jobs.Wrap(jobs.ErrConversion, "scheduler", "run",
			fmt.Sprintf("all %d conversions failed", total), errors.Join(flatten(outcome.Failures)...))
	}
	return outcome, nil
}

func (s *Scheduler) runTask(ctx context.Context, cacheDir string, input jobs.InputFile, params jobs.EncodeParams, index int) taskResult {
	task := jobs.ConversionTask{Input: input, Status: jobs.StatusRunning}
	fragmentPath := receipt.FragmentPath(input, cacheDir)

	taskCtx, cancel := context.WithTimeout(ctx, s.opts.TaskTimeout)
	defer cancel()

	var progress func(ffmpeg.ProgressUpdate)
	if s.opts.OnFileProgress != nil {
		progress = func(update ffmpeg.ProgressUpdate) { s.opts.OnFileProgress(input.Path, update) }
	}

	start := time.Now()
	err := s.transcoder.Convert(taskCtx, input.Path, fragmentPath, params, progress)
	if err != nil {
		_ = os.Remove(fragmentPath)
		task.Status, task.Err = s.classify(ctx, taskCtx, input, err)
		return taskResult{index: index, task: task}
	}

	if err := receipt.Write(input, cacheDir); err != nil {
		_ = os.Remove(fragmentPath)
		task.Status = jobs.StatusFailedRecoverable
		task.Err = jobs.Wrap(jobs.ErrConversion, "scheduler", "receipt", "record fragment receipt", err)
		return taskResult{index: index, task: task}
	}
	duration, err := s.duration(ctx, fragmentPath)
	if err != nil {
		task.Status = jobs.StatusFailedRecoverable
		task.Err = jobs.Wrap(jobs.ErrConversion, "scheduler", "probe", "measure converted fragment", err)
		return taskResult{index: index, task: task}
	}

	task.Status = jobs.StatusDone
	task.FragmentPath = fragmentPath
	s.logger.Info("converted",
		logging.String("path", input.Path),
		logging.Duration("took", time.Since(start)),
	)
	return taskResult{
		index: index,
		task:  task,
		fragment: jobs.ConvertedFragment{
			Path:       fragmentPath,
			DurationMS: duration,
			Ordinal:    input.Ordinal,
		},
	}
}

// classify maps a conversion failure onto a task status. Only dependency and
// resource problems are fatal; everything else, timeouts included, fails the
// file and lets its siblings finish.
func (s *Scheduler) classify(runCtx, taskCtx context.Context, input jobs.InputFile, err error) (jobs.TaskStatus, error) {
	switch {
	case runCtx.Err() != nil:
		return jobs.StatusCancelled, jobs.Wrap(jobs.ErrCancelled, "scheduler", "convert", input.Path, err)
	case errors.Is(taskCtx.Err(), context.DeadlineExceeded):
		return jobs.StatusFailedRecoverable, jobs.Wrap(jobs.ErrConversion, "scheduler", "convert",
			fmt.Sprintf("timed out after %s", s.opts.TaskTimeout), err)
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, jobs.ErrDependencyUnavailable):
		return jobs.StatusFailedFatal, jobs.Wrap(jobs.ErrDependencyUnavailable, "scheduler", "convert", input.Path, err)
	case errors.Is(err, jobs.ErrResourceExhausted):
		return jobs.StatusFailedFatal, err
	default:
		return jobs.StatusFailedRecoverable, jobs.Wrap(jobs.ErrConversion, "scheduler", "convert", input.Path, err)
	}
}

func (s *Scheduler) cancelledTask(input jobs.InputFile) jobs.ConversionTask {
	return jobs.ConversionTask{
		Input:  input,
		Status: jobs.StatusCancelled,
		Err:    jobs.Wrap(jobs.ErrCancelled, "scheduler", "convert", input.Path, nil),
	}
}

func flatten(failures []jobs.FileError) []error {
	errs := make([]error, len(failures))
	for i, failure := range failures {
		errs[i] = failure
	}
	return errs
}
