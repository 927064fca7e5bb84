package process

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// checkExecutable verifies that path names an existing regular file by
// absolute path. No PATH search is done for detached children.
func checkExecutable(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: program %q is not an absolute path", ErrInvalidUsage, path)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: program %q: %w", ErrInvalidUsage, path, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: program %q is not a regular file", ErrInvalidUsage, path)
	}
	if runtime.GOOS != "windows" && fi.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: program %q is not executable", ErrInvalidUsage, path)
	}
	return nil
}
