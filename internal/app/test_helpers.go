package app

import (
	"os"
	"testing"

	"github.com/vk/agentgrid/internal/config"
	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. The log level
// is forced to debug and logs are echoed when AGENTGRID_TEST_LOGS=true.
func SetupAppTest(t *testing.T, appConfig *Config, loader config.Loader, modules ...registry.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()

	logBuffer := &testutil.SafeBuffer{}
	appConfig.LogLevel = "debug"
	testApp := NewApp(logBuffer, appConfig, loader, modules...)

	t.Cleanup(func() {
		if os.Getenv("AGENTGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
