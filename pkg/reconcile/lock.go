package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AcquireLock takes an advisory lock file next to the state file so a single
// run owns the cache for its duration. It creates the file atomically
// (O_EXCL) and retries with a short backoff until timeout. The returned
// release function must run on all exit paths.
func AcquireLock(path string, timeout time.Duration) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to prepare lock directory: %w", err)
	}
	deadline := time.Now().Add(timeout)

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o666)
		if err == nil {
			fmt.Fprintf(f, "pid %d\n", os.Getpid())
			f.Close()
			return func() {
				os.Remove(path)
			}, nil
		}

		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s held by another run (remove it if that run crashed)", path)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
