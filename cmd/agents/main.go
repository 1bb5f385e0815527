// The agents binary runs every stage worker of the invoice workflow in one
// process. Each stage drains its own subscription; scaling out means
// running more copies of this binary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/luminapay/invoice-lifecycle/internal/agent"
	"github.com/luminapay/invoice-lifecycle/internal/app"
	"github.com/luminapay/invoice-lifecycle/internal/config"
	"github.com/luminapay/invoice-lifecycle/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Logger.Level, cfg.Logger.Format).
		With().Str("service", "invoice-agents").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to assemble application")
	}
	defer a.Close()

	var wg sync.WaitGroup
	for _, p := range a.Processors() {
		runner := agent.NewRunner(p, a.Bus, a.Metrics, log).WithWait(cfg.Agents.ReceiveWait)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runner.Run(ctx); err != nil {
				log.Error().Err(err).Msg("runner exited with error")
			}
		}()
	}

	log.Info().Msg("all agents running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down agents")
	cancel()
	wg.Wait()
	log.Info().Msg("agents stopped")
}
