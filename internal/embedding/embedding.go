// Package embedding is the client for the external text→vector
// service described by spec section 1 ("out of scope, treated as an
// external collaborator"): a model boundary this codebase calls over
// HTTP, never implements. See DESIGN.md for why this package stays on
// net/http rather than an ecosystem client library.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/hiddenhistory/memctl/internal/types"
)

const (
	maxAttempts   = 3
	baseBackoff   = 200 * time.Millisecond
	defaultTimeout = 10 * time.Second
)

// Client calls a fixed-dimension embedding endpoint, routing by model.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dimension  int
	sleep      func(time.Duration)
}

// New builds a Client against baseURL (e.g. http://localhost:8000).
// dimension is the vector width the service is configured to return;
// it is used only to size the zero-vector fallback.
func New(baseURL string, dimension int) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		dimension:  dimension,
		sleep:      time.Sleep,
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

// Embed returns a vector for text using the model implied by
// collection: the code model for code-patterns, the prose model
// everywhere else (spec section 4.1 step 3). It makes up to three
// attempts with exponential backoff, retrying only transient failures
// (timeouts, connection errors, 5xx responses); on persistent failure
// it returns a typed
// types.EmbeddingError the caller maps to a zero-vector+pending upsert.
func (c *Client) Embed(ctx context.Context, collection types.Collection, text string) ([]float32, error) {
	model := modelFor(collection)
	vecs, err := c.embedBatch(ctx, model, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds many texts in one call, all routed to the same model.
func (c *Client) EmbedBatch(ctx context.Context, collection types.Collection, texts []string) ([][]float32, error) {
	return c.embedBatch(ctx, modelFor(collection), texts)
}

func modelFor(collection types.Collection) types.EmbeddingModel {
	if collection == types.CollectionCodePatterns {
		return types.ModelCode
	}
	return types.ModelProse
}

// ZeroVector returns the configured-dimension zero vector used as the
// pending-embedding placeholder (spec section 4.1 step 6).
func (c *Client) ZeroVector() []float32 {
	return make([]float32, c.dimension)
}

func (c *Client) embedBatch(ctx context.Context, model types.EmbeddingModel, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff * time.Duration(1<<uint(attempt-1))
			jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
			c.sleep(backoff + jitter)
		}

		vecs, err := c.doRequest(ctx, model, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, &types.EmbeddingError{Model: string(model), Transient: false, Err: err}
		}
	}
	return nil, &types.EmbeddingError{Model: string(model), Transient: true, Err: lastErr}
}

func (c *Client) doRequest(ctx context.Context, model types.EmbeddingModel, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Texts: texts, Model: string(model)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err // network/timeout errors are always transient
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("embedding service returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, permanentError{fmt.Errorf("embedding service returned %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out embedResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, permanentError{err}
	}
	if len(out.Vectors) != len(texts) {
		return nil, permanentError{fmt.Errorf("embedding service returned %d vectors for %d texts", len(out.Vectors), len(texts))}
	}
	return out.Vectors, nil
}

// permanentError marks an error as not worth retrying (malformed
// response, 4xx client error) — the embedBatch loop checks isTransient
// to decide whether to keep spending attempts.
type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

func isTransient(err error) bool {
	var perm permanentError
	return !asPermanent(err, &perm)
}

func asPermanent(err error, target *permanentError) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if p, ok := err.(permanentError); ok {
			*target = p
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// HealthCheck reports whether the embedding service is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &types.EmbeddingError{Transient: true, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &types.EmbeddingError{Transient: false, Err: fmt.Errorf("health check returned %d", resp.StatusCode)}
	}
	return nil
}
