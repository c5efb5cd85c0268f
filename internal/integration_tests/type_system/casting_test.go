package type_system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/agentgrid/internal/app"
	"github.com/vk/agentgrid/internal/integration_tests"
	"github.com/zclconf/go-cty/cty"
)

// TestTypeSystem_AssignmentsCastToTheDeclaredType checks that values are
// converted to the type of the variable receiving them.
func TestTypeSystem_AssignmentsCastToTheDeclaredType(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	gridHCL := `
model "casts" {
  global {
    var "whole" {
      type = int
      init = 0
    }
    var "negative" {
      type = int
      init = 0
    }
    var "ratio" {
      type = float
      init = 1
    }
    var "label" {
      type = string
      init = 42
    }
    var "xs" {
      type = list(int)
      init = [1, 2.5]
    }
    reflex "assign" {
      set "whole" { value = 2.7 }
      set "negative" { value = 0 - 2.7 }
      set "ratio" { value = ratio / 4 }
      write { message = "whole=${whole} negative=${negative} ratio=${ratio} label=${label} xs=${xs}" }
    }
  }
  experiment "main" {
    until = cycle >= 1
  }
}
`

	// --- Act ---
	result := integration_tests.RunIntegrationTest(t, map[string]string{"main.hcl": gridHCL}, app.Config{})

	// --- Assert ---
	require.NoError(t, result.Err)
	assert.Contains(t, result.LogOutput, "whole=2 negative=-2 ratio=0.25 label=42 xs=[1,2]\n")
}

// TestTypeSystem_ImpossibleCastFailsTheSimulation assigns a string that
// is not a number to an int variable.
func TestTypeSystem_ImpossibleCastFailsTheSimulation(t *testing.T) {
	t.Parallel()

	gridHCL := `
model "bad_cast" {
  global {
    var "n" {
      type = int
      init = 0
    }
    reflex "oops" {
      set "n" { value = "abc" }
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
	assert.Contains(t, result.LogOutput, "cannot cast")
}

// TestTypeSystem_ParameterValuesAreCast covers parameters supplied with a
// type other than the global they bind.
func TestTypeSystem_ParameterValuesAreCast(t *testing.T) {
	t.Parallel()

	gridHCL := `
model "params" {
  global {
    var "size" {
      type = int
      init = 1
    }
  }
  experiment "main" {
    parameter "size" {}
    until = cycle >= 1
  }
}
`
	files := map[string]string{"main.hcl": gridHCL}

	result := integration_tests.RunIntegrationTest(t, files, app.Config{
		Params: map[string]cty.Value{"size": cty.StringVal("7")},
	})
	require.NoError(t, result.Err)
	assert.Contains(t, result.LogOutput, "globals.size=7")

	result = integration_tests.RunIntegrationTest(t, files, app.Config{
		Params: map[string]cty.Value{"size": cty.StringVal("seven")},
	})
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "cannot cast")
}

// TestTypeSystem_OperatorsAreCheckedAtCompileTime rejects operands no
// overload accepts before anything runs.
func TestTypeSystem_OperatorsAreCheckedAtCompileTime(t *testing.T) {
	t.Parallel()

	gridHCL := `
model "mismatch" {
  global {
    reflex "bad" {
      let "x" { value = "a" - 1 }
    }
  }
  experiment "main" {}
}
`
	result := integration_tests.RunIntegrationTest(t, map[string]string{"main.hcl": gridHCL}, app.Config{})

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "failed to compile model")
	assert.Contains(t, result.LogOutput+result.Err.Error(), "No matching operator")
}
