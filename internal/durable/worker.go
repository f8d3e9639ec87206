// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package durable

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// WorkerOptions configures a durable simulation worker.
type WorkerOptions struct {
	TaskQueue     string
	Namespace     string
	MaxConcurrent int
}

// Worker manages a Temporal client and worker running SimulationWorkflow
// and its activities.
type Worker struct {
	mu      sync.RWMutex
	client  client.Client
	worker  worker.Worker
	opts    WorkerOptions
	started bool
}

// NewWorker dials Temporal and registers the simulation workflow and
// activities against opts.TaskQueue.
func NewWorker(ctx context.Context, opts WorkerOptions) (*Worker, error) {
	if opts.TaskQueue == "" {
		return nil, errors.New("durable: task queue is required")
	}
	if opts.Namespace == "" {
		opts.Namespace = "default"
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 10
	}

	c, err := client.Dial(client.Options{Namespace: opts.Namespace})
	if err != nil {
		return nil, fmt.Errorf("durable: dialing temporal: %w", err)
	}

	w := worker.New(c, opts.TaskQueue, worker.Options{
		MaxConcurrentActivityTaskPollers: opts.MaxConcurrent,
		MaxConcurrentWorkflowTaskPollers: opts.MaxConcurrent,
	})

	activities := &Activities{}
	w.RegisterWorkflow(SimulationWorkflow)
	w.RegisterActivity(activities.CreateAgentsActivity)
	w.RegisterActivity(activities.CoordinatorStepActivity)
	w.RegisterActivity(activities.RunnerStepActivity)

	return &Worker{client: c, worker: w, opts: opts}, nil
}

// Start begins polling. Idempotent.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := w.worker.Start(); err != nil {
		return fmt.Errorf("durable: starting worker: %w", err)
	}
	w.started = true
	return nil
}

// Stop gracefully stops polling. Idempotent.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.worker.Stop()
	w.started = false
}

// Close stops the worker if running and closes the Temporal client.
func (w *Worker) Close() {
	w.Stop()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client != nil {
		w.client.Close()
	}
}

// Client exposes the underlying Temporal client, e.g. to start a
// SimulationWorkflow execution.
func (w *Worker) Client() client.Client {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.client
}
