// Package shutdown coordinates graceful termination. Signal handlers set a
// flag; workers poll it and cleanup runs deterministically from main flow.
package shutdown
