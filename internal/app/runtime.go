package app

import (
	"os"
	"strconv"
)

// TestModeEnv makes the binaries exit before dialing PostgreSQL, Redis or
// object storage. The testing package sets it for every test binary.
const TestModeEnv = "POMASTER_TEST_MODE"

// InTestMode reports whether TestModeEnv is set to a true value.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}
