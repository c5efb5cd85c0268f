package error_handling

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/agentgrid/internal/app"
	"github.com/vk/agentgrid/internal/integration_tests"
	"github.com/zclconf/go-cty/cty"
)

// TestErrorHandling_InvalidHCL_IsRejected fails while parsing, before any
// simulation exists.
func TestErrorHandling_InvalidHCL_IsRejected(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A missing closing brace.
	invalidHCL := `
		model "broken" {
			global {
	`

	// --- Act ---
	result := integration_tests.RunIntegrationTest(t, map[string]string{"main.hcl": invalidHCL}, app.Config{})

	// --- Assert ---
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "failed to load model")
	assert.NotContains(t, result.LogOutput, "Running experiment.")
}

// TestErrorHandling_CompileErrorsAreCollected reports every compile error
// of a model at once, with its source position.
func TestErrorHandling_CompileErrorsAreCollected(t *testing.T) {
	t.Parallel()

	gridHCL := `
model "typos" {
  global {
    reflex "r" {
      let "a" { value = ghost + 1 }
      dance {}
    }
  }
  experiment "main" {}
}
`
	result := integration_tests.RunIntegrationTest(t, map[string]string{"main.hcl": gridHCL}, app.Config{})

	require.Error(t, result.Err)
	var diagErr *app.DiagnosticsError
	require.True(t, errors.As(result.Err, &diagErr))
	assert.GreaterOrEqual(t, len(diagErr.Diags.Errs()), 2)
	assert.Contains(t, diagErr.Text, "Unknown variable")
	assert.Contains(t, diagErr.Text, "Unknown statement")
	assert.Contains(t, diagErr.Text, "main.hcl line 5")
}

// TestErrorHandling_FatalErrorFailsOnlyItsSimulation ends the failing
// simulation and reports it, while its sibling finishes.
func TestErrorHandling_FatalErrorFailsOnlyItsSimulation(t *testing.T) {
	t.Parallel()

	gridHCL := `
model "fragile" {
  global {
    var "limit" { init = 5 }
    var "xs" { init = [10, 20, 30] }
    var "seen" { init = 0 }
    reflex "walk" {
      set "seen" { value = xs[cycle] }
    }
  }
  experiment "main" {
    parameter "limit" {}
    until = cycle >= limit
  }
}
`
	result := integration_tests.RunBatchTest(t, map[string]string{"main.hcl": gridHCL}, app.Config{
		ParameterSets: []map[string]cty.Value{
			{"limit": cty.NumberIntVal(2)},
			{"limit": cty.NumberIntVal(5)},
		},
	})

	require.NoError(t, result.Err, "a failing simulation does not fail the batch")
	require.Len(t, result.Batch, 2)
	assert.NoError(t, result.Batch[0].Err)
	assert.Equal(t, int64(2), result.Batch[0].Cycle)
	require.Error(t, result.Batch[1].Err)
	assert.Contains(t, result.Batch[1].Err.Error(), "out of bounds")
	assert.Equal(t, int64(3), result.Batch[1].Cycle)
}

// TestErrorHandling_WarningsDoNotStopTheRun logs a failed fetch and keeps
// stepping.
func TestErrorHandling_WarningsDoNotStopTheRun(t *testing.T) {
	t.Parallel()

	gridHCL := `
model "offline" {
  global {
    var "answers" { init = 0 }
    reflex "ask" {
      fetch { url = "http://127.0.0.1:1/unreachable" }
      set "answers" { value = answers + 1 }
    }
  }
  experiment "main" {
    until = cycle >= 2
  }
}
`
	result := integration_tests.RunIntegrationTest(t, map[string]string{"main.hcl": gridHCL}, app.Config{})

	require.NoError(t, result.Err)
	assert.Contains(t, result.LogOutput, "Runtime warning.")
	assert.Contains(t, result.LogOutput, "globals.answers=2")
}

// TestErrorHandling_UnknownExperiment names the missing experiment.
func TestErrorHandling_UnknownExperiment(t *testing.T) {
	t.Parallel()

	gridHCL := `
model "m" {
  experiment "main" {}
}
`
	result := integration_tests.RunIntegrationTest(t, map[string]string{"main.hcl": gridHCL}, app.Config{Experiment: "other"})

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), `has no experiment "other"`)
}

// TestErrorHandling_TryCatchesFatalErrors recovers from an out of bounds
// read and raises a warning from the catch block instead.
func TestErrorHandling_TryCatchesFatalErrors(t *testing.T) {
	t.Parallel()

	gridHCL := `
model "guarded" {
  global {
    var "xs" { init = [10, 20] }
    var "seen" { init = 0 }
    var "misses" { init = 0 }
    reflex "walk" {
      try {
        set "seen" { value = xs[cycle] }
        catch {
          set "misses" { value = misses + 1 }
          warn { message = "no element at ${cycle}" }
        }
      }
    }
  }
  experiment "main" {
    until = cycle >= 4
  }
}
`
	result := integration_tests.RunIntegrationTest(t, map[string]string{"main.hcl": gridHCL}, app.Config{})

	require.NoError(t, result.Err)
	assert.Contains(t, result.LogOutput, "Runtime warning.")
	assert.Contains(t, result.LogOutput, "no element at 2")
	assert.Contains(t, result.LogOutput, "no element at 3")
	assert.Contains(t, result.LogOutput, "globals.seen=20")
	assert.Contains(t, result.LogOutput, "globals.misses=2")
}

// TestErrorHandling_ErrorStatementFailsTheSimulation raises a fatal error
// from the model itself.
func TestErrorHandling_ErrorStatementFailsTheSimulation(t *testing.T) {
	t.Parallel()

	gridHCL := `
model "strict" {
  global {
    reflex "check" {
      if {
        condition = cycle == 1
        error { message = "cycle ${cycle} rejected" }
      }
    }
  }
  experiment "main" {
    until = cycle >= 3
  }
}
`
	result := integration_tests.RunIntegrationTest(t, map[string]string{"main.hcl": gridHCL}, app.Config{})

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "1 of 1 simulations failed")
	assert.Contains(t, result.LogOutput, "cycle 1 rejected")
}
