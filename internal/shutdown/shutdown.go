package shutdown

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"audiobookmaker/internal/logging"
)

// Coordinator turns SIGINT and SIGTERM into a cooperative stop request. The
// signal handler only records the request; all cleanup runs from regular
// control flow so partially written files are never torn down mid-syscall.
type Coordinator struct {
	logger    *slog.Logger
	requested atomic.Bool

	mu       sync.Mutex
	cleanups []func()
	sigCh    chan os.Signal
	done     chan struct{}
}

func NewCoordinator(logger *slog.Logger) *Coordinator {
	return &Coordinator{
		logger: logging.NewComponentLogger(logger, "shutdown"),
		done:   make(chan struct{}),
	}
}

// Install registers the signal handler. A second signal while a stop is
// already pending is logged and otherwise ignored.
func (c *Coordinator) Install() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sigCh != nil {
		return
	}
	c.sigCh = make(chan os.Signal, 2)
	signal.Notify(c.sigCh, syscall.SIGINT, syscall.SIGTERM)
	go c.watch()
}

func (c *Coordinator) watch() {
	for {
		select {
		case sig := <-c.sigCh:
			if c.requested.CompareAndSwap(false, true) {
				c.logger.Info("shutdown requested, finishing current work", logging.String("signal", sig.String()))
			} else {
				c.logger.Warn("shutdown already in progress", logging.String("signal", sig.String()))
			}
		case <-c.done:
			return
		}
	}
}

// Requested reports whether a stop has been requested. Long-running loops
// poll this between units of work.
func (c *Coordinator) Requested() bool {
	return c.requested.Load()
}

// RequestStop sets the stop flag without a signal, for programmatic aborts.
func (c *Coordinator) RequestStop() {
	c.requested.Store(true)
}

// AddCleanup registers a function to run during Shutdown. Cleanups run in
// registration order.
func (c *Coordinator) AddCleanup(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups = append(c.cleanups, fn)
}

// Shutdown stops signal delivery and runs the registered cleanups. It is
// safe to call once from the main control path.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if c.sigCh != nil {
		signal.Stop(c.sigCh)
		close(c.done)
		c.sigCh = nil
	}
	cleanups := c.cleanups
	c.cleanups = nil
	c.mu.Unlock()

	for _, cleanup := range cleanups {
		cleanup()
	}
}
