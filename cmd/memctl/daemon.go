package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hiddenhistory/memctl/internal/bus"
	"github.com/hiddenhistory/memctl/internal/daemon"
	"github.com/hiddenhistory/memctl/internal/trace"
)

var daemonBusPort int

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the classifier, retry, backfill, and trace-flush loops",
	Long: `Run every background loop this installation needs as one
long-lived process: the classification worker, the retry-queue
processor, the daily backfill sweep, and the trace-buffer flusher.

Also starts an embedded wake-up bus (internal/bus) and publishes its
address so other memctl invocations — in particular hook workers — can
notify the classifier immediately after a write instead of it waiting
for its next poll tick. The bus is never load-bearing: every loop here
keeps polling on its own schedule regardless of whether anything ever
publishes to it.

Examples:
  memctl daemon
  memctl daemon --bus-port 4232`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().IntVar(&daemonBusPort, "bus-port", 0, "embedded wake-up bus port (0 picks a free port)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	c, err := loadComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	busServer, err := bus.StartServer(daemonBusPort)
	if err != nil {
		return fmt.Errorf("start wake-up bus: %w", err)
	}
	defer busServer.Stop()

	urlFile := busURLFile(c.cfg.InstallDir)
	if err := os.WriteFile(urlFile, []byte(busServer.ClientURL()), 0o644); err != nil {
		return fmt.Errorf("publish bus url: %w", err)
	}
	defer os.Remove(urlFile)

	selfBus, err := bus.Dial(busServer.ClientURL())
	if err != nil {
		return fmt.Errorf("dial own bus: %w", err)
	}
	defer selfBus.Close()
	c.store.SetBus(selfBus)

	client := classifierClient(c.cfg)
	if client == nil {
		fmt.Fprintln(os.Stderr, "memctl: classifier disabled or ANTHROPIC_API_KEY unset — queue will only grow")
	}
	classifierLoop := daemon.NewClassifier(c.classify, c.vectors, client, c.traceBuf)
	retrier := daemon.NewRetrier(c.retry, c.store)
	backfill := daemon.NewBackfill(retrier, "")

	flusher, err := trace.NewFlusher(c.traceBuf, trace.FlusherConfig{
		HeartbeatInterval: time.Duration(c.cfg.TraceHeartbeatSeconds) * time.Second,
		MaxBufferBytes:    c.cfg.TraceBufferMaxBytes,
	})
	if err != nil {
		return fmt.Errorf("start trace flusher: %w", err)
	}
	traceFlush := daemon.NewTraceFlush(flusher)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := backfill.Start(ctx); err != nil {
		return fmt.Errorf("start backfill scheduler: %w", err)
	}
	defer backfill.Stop()

	wake, err := selfBus.WakeUp(ctx, bus.SubjectClassifyEnqueued)
	if err != nil {
		return fmt.Errorf("subscribe to classify wake-up: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return classifierLoop.Run(gctx) })
	g.Go(func() error { return retrier.Run(gctx) })
	g.Go(func() error { return traceFlush.Run(gctx) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-wake:
				if client != nil {
					classifierLoop.ProcessAll(gctx)
				}
			}
		}
	})

	fmt.Printf("memctl daemon running (install dir %s, bus %s)\n", c.cfg.InstallDir, busServer.ClientURL())

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	return nil
}
