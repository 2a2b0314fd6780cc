package dedup

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// AcquireRunLock takes an advisory file lock in the data dir so two
// invocations cannot interleave sends against the same sent log. Non-blocking:
// a second invocation fails fast instead of queueing behind a long run.
func AcquireRunLock(dataDir string) (*flock.Flock, error) {
	fl := flock.New(filepath.Join(dataDir, "run.lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another run holds the lock in %s", dataDir)
	}
	return fl, nil
}
