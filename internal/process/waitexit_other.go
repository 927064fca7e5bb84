//go:build unix && !linux

package process

import "time"

const (
	awaitExitOp = "poll"

	exitPollInterval = 5 * time.Millisecond
)

// awaitExit sleeps one poll interval before reap retries its
// non-reaping check.
func awaitExit(int) error {
	time.Sleep(exitPollInterval)
	return nil
}
