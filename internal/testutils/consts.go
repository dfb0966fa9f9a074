package testutils

import (
	"os"
	"time"
)

func IsCI() bool {
	return os.Getenv("CI") != ""
}

// FlushTimeout bounds how long a test waits for background work to finish.
func FlushTimeout() time.Duration {
	if IsCI() {
		// CI is very overloaded so we need to allow for a long wait time.
		return 5 * time.Second
	}

	return time.Second
}

// Slack is added to timing assertions to absorb scheduler delays.
func Slack() time.Duration {
	if IsCI() {
		return time.Second
	}

	return 250 * time.Millisecond
}
