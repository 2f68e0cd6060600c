package shutdown

import (
	"syscall"
	"testing"
	"time"

	"audiobookmaker/internal/logging"
)

func TestRequestStopSetsFlag(t *testing.T) {
	c := NewCoordinator(logging.NewNop())
	if c.Requested() {
		t.Fatal("fresh coordinator should not report a stop request")
	}
	c.RequestStop()
	if !c.Requested() {
		t.Fatal("RequestStop should set the flag")
	}
}

func TestCleanupsRunInRegistrationOrder(t *testing.T) {
	c := NewCoordinator(logging.NewNop())
	var order []string
	c.AddCleanup(func() { order = append(order, "first") })
	c.AddCleanup(func() { order = append(order, "second") })

	c.Shutdown()

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("cleanup order = %v, want [first second]", order)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	c := NewCoordinator(logging.NewNop())
	ran := 0
	c.AddCleanup(func() { ran++ })
	c.Install()
	c.Shutdown()
	c.Shutdown()
	if ran != 1 {
		t.Fatalf("cleanup ran %d times, want 1", ran)
	}
}

func TestSignalSetsFlagWithoutExiting(t *testing.T) {
	c := NewCoordinator(logging.NewNop())
	c.Install()
	defer c.Shutdown()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGINT); err != nil {
		t.Fatalf("kill: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for !c.Requested() {
		select {
		case <-deadline:
			t.Fatal("SIGINT did not set the stop flag")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
