package resources

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"audiobookmaker/internal/jobs"
	"audiobookmaker/internal/logging"
)

const (
	// memoryOverheadRatio estimates coordinator memory as a share of total
	// input bytes; the real decode work happens in ffmpeg child processes.
	memoryOverheadRatio = 0.1
	baseOverheadMB      = 100
	// diskMultiplier covers fragments retained alongside their sources.
	diskMultiplier = 2
	// warnRatio is the fraction of the memory limit that triggers a warning.
	warnRatio = 0.9
)

// Requirements is the estimated footprint of one conversion job.
type Requirements struct {
	InputMB  int64
	MemoryMB int64
	DiskMB   int64
}

// Monitor tracks memory and disk usage against configured limits.
type Monitor struct {
	logger        *slog.Logger
	memoryLimitMB int64
	diskMarginMB  int64

	mu         sync.Mutex
	peakRSSMB  int64
	warnedHigh bool
}

// NewMonitor builds a monitor. A zero memoryLimitMB derives 80% of system
// memory; a zero diskMarginMB applies a 500 MB safety margin.
func NewMonitor(logger *slog.Logger, memoryLimitMB, diskMarginMB int) *Monitor {
	logger = logging.NewComponentLogger(logger, "resources")
	limit := int64(memoryLimitMB)
	if limit <= 0 {
		limit = autoMemoryLimitMB(logger)
	}
	margin := int64(diskMarginMB)
	if margin <= 0 {
		margin = 500
	}
	return &Monitor{logger: logger, memoryLimitMB: limit, diskMarginMB: margin}
}

// Estimate computes the memory and temp-disk requirements for the inputs.
// The disk estimate uses a larger multiplier because fragments are retained
// alongside the sources until concatenation completes.
func Estimate(inputs []jobs.InputFile) Requirements {
	var totalBytes int64
	for _, input := range inputs {
		totalBytes += input.Size
	}
	inputMB := totalBytes / (1 << 20)
	return Requirements{
		InputMB:  inputMB,
		MemoryMB: int64(float64(inputMB)*memoryOverheadRatio) + baseOverheadMB,
		DiskMB:   inputMB * diskMultiplier,
	}
}

// CheckDisk fails with a resource-exhausted error when free space at path is
// below requiredMB plus the configured safety margin.
func (m *Monitor) CheckDisk(path string, requiredMB int64) error {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Errorf("statfs %s: %w", path, err)
	}
	availableMB := int64(stat.Bavail) * stat.Bsize / (1 << 20)
	neededMB := requiredMB + m.diskMarginMB
	if availableMB < neededMB {
		return jobs.Wrap(jobs.ErrResourceExhausted, "resources", "disk",
			fmt.Sprintf("%d MB available, %d MB required (including %d MB margin)", availableMB, neededMB, m.diskMarginMB), nil)
	}
	m.logger.Debug("disk space check passed",
		logging.Int64("available_mb", availableMB),
		logging.Int64("required_mb", neededMB),
	)
	return nil
}

// CheckMemory samples resident memory and fails with a resource-exhausted
// error when the configured limit is exceeded. Approaching the limit logs a
// warning once.
func (m *Monitor) CheckMemory() error {
	rssMB, err := currentRSSMB()
	if err != nil {
		// Sampling is best-effort; an unreadable proc entry never fails a job.
		m.logger.Debug("memory sample unavailable", logging.Error(err))
		return nil
	}

	m.mu.Lock()
	if rssMB > m.peakRSSMB {
		m.peakRSSMB = rssMB
	}
	warned := m.warnedHigh
	if !warned && float64(rssMB) > float64(m.memoryLimitMB)*warnRatio {
		m.warnedHigh = true
	}
	shouldWarn := m.warnedHigh && !warned
	m.mu.Unlock()

	if rssMB > m.memoryLimitMB {
		return jobs.Wrap(jobs.ErrResourceExhausted, "resources", "memory",
			fmt.Sprintf("%d MB resident exceeds %d MB limit", rssMB, m.memoryLimitMB), nil)
	}
	if shouldWarn {
		m.logger.Warn("memory usage approaching limit",
			logging.Int64("rss_mb", rssMB),
			logging.Int64("limit_mb", m.memoryLimitMB),
		)
	}
	return nil
}

// PeakRSSMB returns the highest resident memory observed so far.
func (m *Monitor) PeakRSSMB() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakRSSMB
}

// MemoryLimitMB returns the effective memory limit.
func (m *Monitor) MemoryLimitMB() int64 {
	return m.memoryLimitMB
}

// Watch samples memory on a ticker until ctx is cancelled. It is a
// best-effort supplement to the scheduler's pull-based checks; limit
// violations are logged, not raised, because the scheduler owns aborts.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.CheckMemory(); err != nil {
				m.logger.Error("background memory check failed", logging.Error(err))
			}
		}
	}
}

// SampleRSSMB exposes the current resident memory for diagnostics, such as
// verifying that streaming concatenation held its memory bound.
func SampleRSSMB() int64 {
	rssMB, err := currentRSSMB()
	if err != nil {
		return 0
	}
	return rssMB
}

func autoMemoryLimitMB(logger *slog.Logger) int64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		logger.Warn("system memory detection failed, using 2 GB limit", logging.Error(err))
		return 2048
	}
	totalMB := int64(info.Totalram) * int64(info.Unit) / (1 << 20)
	limit := totalMB * 8 / 10
	if limit <= 0 {
		return 2048
	}
	return limit
}

func currentRSSMB() (int64, error) {
	file, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb / 1024, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("VmRSS not found in /proc/self/status")
}
