// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package main runs a standalone, single-process simulation: a handful
// of wallet agents that credit their own account every step, placed and
// rebalanced across the configured ranks by the same Coordinator and
// GreedyLoadBalancer a distributed deployment would use.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"open-swarm/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to the simulation's YAML configuration")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	log.Println("🪙 Open Swarm wallet demo")
	log.Println("=========================")

	if *configPath == "" {
		log.Fatal("❌ -config is required (see cmd/run-simulation/config.example.yaml)")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ invalid config: %v", err)
	}

	log.Printf("📦 %s: world_size=%d nodes=%d nsteps=%d balancer=%s",
		cfg.Simulation.Name, cfg.Topology.WorldSize, len(cfg.Topology.NodeRanks), cfg.Simulation.NSteps, cfg.Balancer.Kind)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dep := buildDeployment(cfg, logger)

	log.Println("▶️  starting simulation")
	if err := dep.sim.Start(ctx); err != nil {
		log.Fatalf("❌ starting simulation: %v", err)
	}

	select {
	case <-dep.sim.Done():
	case <-ctx.Done():
		log.Println("⏸️  interrupted before the simulation finished")
		return
	}

	balances, applied := dep.ledger.snapshot()
	log.Printf("✅ finished: %d credits applied across %d accounts", applied, len(balances))
	for id, balance := range balances {
		log.Printf("   %s: %.2f", id, balance)
	}
}
