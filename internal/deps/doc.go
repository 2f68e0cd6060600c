// Package deps verifies that the external tools the pipeline shells out to
// are installed before any work is scheduled. Missing required binaries are
// fatal pre-flight failures.
package deps
