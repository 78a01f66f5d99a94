package app

import (
	"os"
	"sync/atomic"
)

// TestModeEnv makes both binaries return from main before touching config,
// stores or sockets when set to "1". Test binaries set it by importing
// internal/testing/guard.
const TestModeEnv = "DONORHUB_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether startup should be skipped. The environment is
// read on first use and cached.
func InTestMode() bool {
	if on := testMode.Load(); on != nil {
		return *on
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads the environment and returns the new flag.
func RefreshTestMode() bool {
	on := os.Getenv(TestModeEnv) == "1"
	testMode.Store(&on)
	return on
}
