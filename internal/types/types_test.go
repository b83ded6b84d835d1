package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteKnownType(t *testing.T) {
	rule, ok := Route(TypeImplementation)
	require.True(t, ok)
	assert.Equal(t, CollectionCodePatterns, rule.Collection)
	assert.Equal(t, ModelCode, rule.Model)
}

func TestRouteUnknownType(t *testing.T) {
	_, ok := Route(MemoryType("not_a_real_type"))
	assert.False(t, ok)
}

func TestPointIDDeterministic(t *testing.T) {
	a := PointID(Namespace, "same-content-hash")
	b := PointID(Namespace, "same-content-hash")
	assert.Equal(t, a, b)

	c := PointID(Namespace, "different-hash")
	assert.NotEqual(t, a, c)
}

func TestIsGithubJiraType(t *testing.T) {
	assert.True(t, IsGithubType(TypeGithubPR))
	assert.False(t, IsGithubType(TypeJiraIssue))
	assert.True(t, IsJiraType(TypeJiraComment))
}

func TestBlendMonotonicity(t *testing.T) {
	w := SignalWeights{Quality: 0.5, Density: 0.3, Drift: 0.2}
	low := w.Blend(0, 0, 0)
	high := w.Blend(1, 1, 1)
	assert.InDelta(t, 0.0, low, 1e-9)
	assert.InDelta(t, 1.0, high, 1e-9)

	assert.Less(t, w.Blend(0.2, 0.5, 0.5), w.Blend(0.8, 0.5, 0.5))
}

func TestMapToRange(t *testing.T) {
	assert.Equal(t, 500, MapToRange(0, 500, 1500))
	assert.Equal(t, 1500, MapToRange(1, 500, 1500))
	assert.Equal(t, 1000, MapToRange(0.5, 500, 1500))
}
