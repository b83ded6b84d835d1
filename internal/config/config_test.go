package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 0.6, cfg.InjectionConfidenceThreshold)
	assert.Equal(t, 500, cfg.BudgetFloor)
	assert.Equal(t, 1500, cfg.BudgetCeiling)
	assert.InDelta(t, 1.0, cfg.WeightQuality+cfg.WeightDensity+cfg.WeightDrift, 1e-9)
	assert.Equal(t, "default", cfg.Source["InjectionConfidenceThreshold"])
}

func TestEnvOverridesDefault(t *testing.T) {
	t.Setenv("AI_MEMORY_INJECTION_CONFIDENCE_THRESHOLD", "0.8")
	t.Setenv("AI_MEMORY_BUDGET_FLOOR", "700")

	cfg, err := Load(FlagOverrides{})
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.InjectionConfidenceThreshold)
	assert.Equal(t, 700, cfg.BudgetFloor)
	assert.Equal(t, "env", cfg.Source["InjectionConfidenceThreshold"])
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("AI_MEMORY_VECTOR_STORE_ENDPOINT", "http://env:6333")

	cfg, err := Load(FlagOverrides{VectorStoreEndpoint: "http://flag:6333"})
	require.NoError(t, err)
	assert.Equal(t, "http://flag:6333", cfg.VectorStoreEndpoint)
	assert.Equal(t, "flag", cfg.Source["VectorStoreEndpoint"])
}

func TestInvalidHookTimeoutFallsBackToDefault(t *testing.T) {
	t.Setenv("HOOK_TIMEOUT", "not-a-number")

	cfg, err := Load(FlagOverrides{})
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.HookTimeoutSeconds)
}

func TestGetMemoizesAndResetForTests(t *testing.T) {
	ResetForTests()
	t.Cleanup(ResetForTests)

	t.Setenv("AI_MEMORY_BUDGET_FLOOR", "900")
	first := Get()
	assert.Equal(t, 900, first.BudgetFloor)

	t.Setenv("AI_MEMORY_BUDGET_FLOOR", "100")
	second := Get()
	assert.Equal(t, 900, second.BudgetFloor, "Get should return the memoized value until reset")

	ResetForTests()
	third := Get()
	assert.Equal(t, 100, third.BudgetFloor)
}
