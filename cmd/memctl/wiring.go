package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hiddenhistory/memctl/internal/bus"
	"github.com/hiddenhistory/memctl/internal/classifier"
	"github.com/hiddenhistory/memctl/internal/classqueue"
	memconfig "github.com/hiddenhistory/memctl/internal/config"
	"github.com/hiddenhistory/memctl/internal/embedding"
	"github.com/hiddenhistory/memctl/internal/injection"
	"github.com/hiddenhistory/memctl/internal/observability/audit"
	"github.com/hiddenhistory/memctl/internal/retrieval"
	"github.com/hiddenhistory/memctl/internal/retryqueue"
	"github.com/hiddenhistory/memctl/internal/security"
	"github.com/hiddenhistory/memctl/internal/storage"
	"github.com/hiddenhistory/memctl/internal/trace"
	"github.com/hiddenhistory/memctl/internal/types"
	"github.com/hiddenhistory/memctl/internal/vectorstore"
)

// components bundles every long-lived handle a CLI command needs,
// built once from resolved configuration rather than threaded through
// individual command flags.
type components struct {
	cfg      *memconfig.Config
	vectors  *vectorstore.Store
	embedder *embedding.Client
	classify *classqueue.Queue
	retry    *retryqueue.Queue
	traceBuf *trace.Buffer
	store    *storage.Store
	search   *retrieval.Search
	engine   *injection.Engine
	bus      *bus.Bus // optional; non-nil only if a 'daemon' process left its URL behind
}

// loadComponents resolves configuration and opens every collaborator
// a command might need. Commands that only need a subset (e.g.
// 'config', 'version') skip this entirely. Per-command group id
// resolution (groupid.Resolve) is independent of this config load.
func loadComponents() (*components, error) {
	cfg, err := memconfig.Load(memconfig.FlagOverrides{})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	vectors, err := vectorstore.Open(filepath.Join(cfg.InstallDir, "vectors.db"))
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	embedder := embedding.New(cfg.EmbeddingEndpoint, cfg.VectorDimension)

	cq, err := classqueue.Open(filepath.Join(cfg.InstallDir, "queues", "classify"))
	if err != nil {
		_ = vectors.Close()
		return nil, fmt.Errorf("open classification queue: %w", err)
	}
	rq := retryqueue.Open(filepath.Join(cfg.InstallDir, "queues", "retry.jsonl"))

	traceBuf, err := trace.NewBuffer(filepath.Join(cfg.InstallDir, "traces"))
	if err != nil {
		_ = vectors.Close()
		return nil, fmt.Errorf("open trace buffer: %w", err)
	}

	secOpts := security.Options{
		L1Enabled: cfg.SecurityScanEnabled,
		L2Enabled: cfg.SecurityScanEnabled,
		L3Enabled: cfg.SecurityScanEnabled,
	}

	store := storage.New(vectors, embedder, cq, rq, secOpts)
	if err := store.Init(cfg.VectorDimension); err != nil {
		_ = vectors.Close()
		return nil, fmt.Errorf("init collections: %w", err)
	}

	search := retrieval.New(vectors, embedder)
	auditLog := audit.New(cfg.InstallDir)
	engine := injection.New(search, auditLog, injection.Config{
		ConfidenceThreshold: cfg.InjectionConfidenceThreshold,
		BudgetFloor:         cfg.BudgetFloor,
		BudgetCeiling:       cfg.BudgetCeiling,
		Weights: types.SignalWeights{
			Quality: cfg.WeightQuality,
			Density: cfg.WeightDensity,
			Drift:   cfg.WeightDrift,
		},
	})

	busClient := dialRunningDaemonBus(cfg.InstallDir)
	if busClient != nil {
		store.SetBus(busClient)
	}

	return &components{
		cfg: cfg, vectors: vectors, embedder: embedder, classify: cq, retry: rq,
		traceBuf: traceBuf, store: store, search: search, engine: engine, bus: busClient,
	}, nil
}

// busURLFile is where a running 'daemon' process leaves its embedded
// bus's loopback URL for other memctl invocations to discover.
func busURLFile(installDir string) string {
	return filepath.Join(installDir, "bus.url")
}

// dialRunningDaemonBus best-effort dials the bus a live 'daemon'
// process published, or returns nil. A hook or CLI command that can't
// find or reach it just never gets the low-latency wake-up — its
// target daemon falls back to its own poll ticker either way.
func dialRunningDaemonBus(installDir string) *bus.Bus {
	data, err := os.ReadFile(busURLFile(installDir))
	if err != nil {
		return nil
	}
	url := strings.TrimSpace(string(data))
	if url == "" {
		return nil
	}
	client, err := bus.Dial(url)
	if err != nil {
		return nil
	}
	return client
}

// Close releases every handle loadComponents opened. Safe to call on
// a partially-constructed components from an early-return error path
// only via the caller's own cleanup — loadComponents itself closes
// anything it opened before returning an error.
func (c *components) Close() {
	if c.bus != nil {
		c.bus.Close()
	}
	_ = c.vectors.Close()
}

// classifierClient builds the Anthropic-backed classifier from
// config, or nil if disabled or no API key is available — callers
// fall back to leaving tasks queued rather than reclassifying them.
func classifierClient(cfg *memconfig.Config) *classifier.Client {
	if !cfg.ClassifierEnabled {
		return nil
	}
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil
	}
	return classifier.New(apiKey)
}
