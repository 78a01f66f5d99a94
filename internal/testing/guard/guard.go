// Package guard switches binaries into test mode when imported by their
// tests, so main returns before touching config, stores or sockets.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("DONORHUB_TEST_MODE") == "" {
			_ = os.Setenv("DONORHUB_TEST_MODE", "1")
		}
	})
}
