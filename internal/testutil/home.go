// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"runtime"
	"testing"
)

// SetConfigHome points the user configuration directory at dir and returns a
// cleanup function that restores the original value.
//
// Platform handling:
//   - Windows: Sets APPDATA
//   - Linux/macOS: Sets XDG_CONFIG_HOME
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    t.Cleanup(testutil.SetConfigHome(t, t.TempDir()))
//
//	    // Test code that loads configuration...
//	}
func SetConfigHome(t testing.TB, dir string) func() {
	t.Helper()

	switch runtime.GOOS {
	case "windows":
		return MustSetenv(t, "APPDATA", dir)
	default:
		return MustSetenv(t, "XDG_CONFIG_HOME", dir)
	}
}
