package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiddenhistory/memctl/internal/types"
)

func noSleep(time.Duration) {}

func TestEmbedReturnsVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, string(types.ModelProse), req.Model)
		_ = json.NewEncoder(w).Encode(embedResponse{Vectors: [][]float32{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	c := New(srv.URL, 3)
	c.sleep = noSleep
	vec, err := c.Embed(context.Background(), types.CollectionConventions, "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedRoutesCodeModelForCodePatterns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, string(types.ModelCode), req.Model)
		_ = json.NewEncoder(w).Encode(embedResponse{Vectors: [][]float32{{1}}})
	}))
	defer srv.Close()

	c := New(srv.URL, 1)
	c.sleep = noSleep
	_, err := c.Embed(context.Background(), types.CollectionCodePatterns, "func foo() {}")
	require.NoError(t, err)
}

func TestEmbedRetriesOn5xxThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Vectors: [][]float32{{1}}})
	}))
	defer srv.Close()

	c := New(srv.URL, 1)
	c.sleep = noSleep
	vec, err := c.Embed(context.Background(), types.CollectionConventions, "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, 3, calls)
}

func TestEmbedFailsPermanentlyOn4xxWithoutRetrying(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, 1)
	c.sleep = noSleep
	_, err := c.Embed(context.Background(), types.CollectionConventions, "x")
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var embErr *types.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.False(t, embErr.Transient)
}

func TestEmbedExhaustsRetriesAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, 1)
	c.sleep = noSleep
	_, err := c.Embed(context.Background(), types.CollectionConventions, "x")
	require.Error(t, err)

	var embErr *types.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.True(t, embErr.Transient)
}

func TestZeroVectorHasConfiguredDimension(t *testing.T) {
	c := New("http://unused", 768)
	assert.Len(t, c.ZeroVector(), 768)
}
