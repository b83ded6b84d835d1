package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	memconfig "github.com/hiddenhistory/memctl/internal/config"
)

func TestComputeResult(t *testing.T) {
	tests := []struct {
		name       string
		checks     []doctorCheck
		wantResult string
	}{
		{
			name:       "all pass",
			checks:     []doctorCheck{{Name: "a", Status: "pass", Required: true}, {Name: "b", Status: "pass", Required: true}},
			wantResult: "HEALTHY",
		},
		{
			name:       "required failure",
			checks:     []doctorCheck{{Name: "a", Status: "pass", Required: true}, {Name: "b", Status: "fail", Required: true}},
			wantResult: "UNHEALTHY",
		},
		{
			name:       "optional warning only",
			checks:     []doctorCheck{{Name: "a", Status: "pass", Required: true}, {Name: "b", Status: "warn", Required: false}},
			wantResult: "DEGRADED",
		},
		{
			name:       "empty checks",
			checks:     []doctorCheck{},
			wantResult: "HEALTHY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := computeResult(tt.checks)
			require.Equal(t, tt.wantResult, out.Result)
		})
	}
}

func TestBuildDoctorSummary(t *testing.T) {
	require.Equal(t, "3/3 checks passed", buildDoctorSummary(3, 0, 0, 3))
	require.Equal(t, "2/3 checks passed, 1 warning", buildDoctorSummary(2, 0, 1, 3))
	require.Equal(t, "1/3 checks passed, 2 warnings", buildDoctorSummary(1, 0, 2, 3))
	require.Equal(t, "1/3 checks passed, 1 warning, 1 failed", buildDoctorSummary(1, 1, 1, 3))
	require.Equal(t, "1/2 checks passed, 1 failed", buildDoctorSummary(1, 1, 0, 2))
}

func TestHasRequiredFailure(t *testing.T) {
	require.False(t, hasRequiredFailure([]doctorCheck{{Status: "warn", Required: false}}))
	require.False(t, hasRequiredFailure([]doctorCheck{{Status: "fail", Required: false}}))
	require.True(t, hasRequiredFailure([]doctorCheck{{Status: "fail", Required: true}}))
}

func TestDoctorStatusIcon(t *testing.T) {
	require.Equal(t, "✓", doctorStatusIcon("pass"))
	require.Equal(t, "!", doctorStatusIcon("warn"))
	require.Equal(t, "✗", doctorStatusIcon("fail"))
	require.Equal(t, "?", doctorStatusIcon("unknown"))
}

func TestRenderDoctorTableIncludesSummary(t *testing.T) {
	var buf bytes.Buffer
	out := computeResult([]doctorCheck{{Name: "Vector Store", Status: "pass", Detail: "/tmp/vectors.db", Required: true}})
	renderDoctorTable(&buf, out)

	rendered := buf.String()
	require.Contains(t, rendered, "Vector Store")
	require.Contains(t, rendered, "/tmp/vectors.db")
	require.Contains(t, rendered, out.Summary)
}

func TestCheckClassifierWarnsWhenDisabled(t *testing.T) {
	cfg := &memconfig.Config{ClassifierEnabled: false}
	check := checkClassifier(cfg)
	require.Equal(t, "warn", check.Status)
	require.False(t, check.Required)
}

func TestCheckClassifierWarnsWithoutAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := &memconfig.Config{ClassifierEnabled: true}
	check := checkClassifier(cfg)
	require.Equal(t, "warn", check.Status)
	require.Contains(t, check.Detail, "ANTHROPIC_API_KEY")
}

func TestCheckClassifierPassesWithAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	cfg := &memconfig.Config{ClassifierEnabled: true}
	check := checkClassifier(cfg)
	require.Equal(t, "pass", check.Status)
}
