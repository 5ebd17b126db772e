// Package main provides the entry point for the convergence-engine
// sidecar binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/convergence-engine/api"
	"github.com/anthropics/convergence-engine/config"
	"github.com/anthropics/convergence-engine/contracts"
	"github.com/anthropics/convergence-engine/internal/cost"
	"github.com/anthropics/convergence-engine/internal/engine"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP server address")
	configPath := flag.String("config", "", "path to an engine config JSON file (optional): workflow pipeline, policy overrides, budget tier, model catalog")
	flag.Parse()

	log.Printf("Starting convergence-engine sidecar on %s", *addr)

	cfg := engine.Config{TaskExecutor: mockExecutor}
	if *configPath != "" {
		loaded, err := config.NewLoader().LoadFromFile(*configPath)
		if err != nil {
			log.Fatalf("loading engine config %s: %v", *configPath, err)
		}
		cfg = applyEngineConfig(cfg, loaded)
		log.Printf("loaded engine config from %s", *configPath)
	}

	server := api.NewServerWithConfig(*addr, cfg)

	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		close(done)
	}()

	if err := server.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	<-done
	log.Println("Server stopped")
}

// applyEngineConfig folds a loaded config document into the engine
// configuration: policy overrides onto the defaults, the budget tier and
// iteration ceiling, the decomposition workflow, and any model-catalog
// overrides.
func applyEngineConfig(cfg engine.Config, loaded *config.EngineConfig) engine.Config {
	cfg.Policy = loaded.Policy.Apply(contracts.DefaultConvergencePolicy())
	cfg.Workflow = loaded.Workflow

	if loaded.Budget != nil {
		cfg.Tier = loaded.Budget.ComplexityTier()
		cfg.MaxIterations = loaded.Budget.MaxIterations
	}

	if m := loaded.Models; m != nil {
		if len(m.Catalog) > 0 {
			cfg.ModelCatalog = cost.NewModelCatalogWithModels(m.Catalog, m.RoleMappings())
		}
		cfg.Currency = contracts.Currency(m.Currency)
	}
	return cfg
}

// mockExecutor is a placeholder executor for local runs. In production
// this would dispatch to an agent substrate.
func mockExecutor(ctx context.Context, task *contracts.Task) (*contracts.TaskResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(100 * time.Millisecond):
	}

	return &contracts.TaskResult{
		Output: fmt.Sprintf("mock result for task %s", task.ID),
		Usage: contracts.Usage{
			Tokens: 100,
			Cost:   contracts.Cost{Amount: 0.001, Currency: "USD"},
		},
	}, nil
}
