package jobid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"

	"audiobookmaker/internal/jobs"
)

// Prefix namespaces every cache directory under the shared temp root so the
// janitor can recognize them.
const Prefix = "audiobookmaker_"

// digestLength is the hex prefix kept from the full hash. Short enough for
// filesystem-friendly names; collision risk is acceptable for single-host
// temp-directory use.
const digestLength = 12

const lockFileName = "job.lock"

// Identity is the deterministic fingerprint of one conversion request. Equal
// inputs, output, and encode parameters always map to the same cache
// directory regardless of the order inputs were supplied in.
type Identity struct {
	Digest string
	Dir    string
}

// Compute derives the cache directory for the given request. Input paths are
// sorted before hashing so the identity is order-insensitive.
func Compute(root string, inputPaths []string, outputPath string, params jobs.EncodeParams) Identity {
	sorted := make([]string, len(inputPaths))
	copy(sorted, inputPaths)
	sort.Strings(sorted)

	hasher := sha256.New()
	for _, path := range sorted {
		hasher.Write([]byte(path))
		hasher.Write([]byte{0})
	}
	hasher.Write([]byte(outputPath))
	hasher.Write([]byte{0})
	hasher.Write([]byte(params.Canonical()))

	digest := hex.EncodeToString(hasher.Sum(nil))[:digestLength]
	if strings.TrimSpace(root) == "" {
		root = os.TempDir()
	}
	return Identity{
		Digest: digest,
		Dir:    filepath.Join(root, Prefix+digest),
	}
}

// Ensure creates the cache directory when missing.
func (id Identity) Ensure() error {
	if err := os.MkdirAll(id.Dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory %q: %w", id.Dir, err)
	}
	return nil
}

// Clear removes and recreates the cache directory, discarding any resumable
// state. Used for explicit never-resume requests before any task runs.
func (id Identity) Clear() error {
	if err := os.RemoveAll(id.Dir); err != nil {
		return fmt.Errorf("clear cache directory %q: %w", id.Dir, err)
	}
	return id.Ensure()
}

// Lock acquires an exclusive file lock on the cache directory so two
// invocations sharing one job identity cannot interleave fragment writes.
// The second caller fails fast instead of corrupting the cache. The returned
// function releases the lock.
func (id Identity) Lock() (func(), error) {
	if err := id.Ensure(); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(id.Dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire job lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another conversion for this job is already running (cache %s)", id.Dir)
	}
	return func() { _ = lock.Unlock() }, nil
}
