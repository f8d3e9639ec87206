// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package durable provides a Temporal-backed rendition of the
// simulation's step loop: the same creation/move/update barriers
// enforced by internal/simulator, internal/coordinator and
// internal/runner, but replayed from workflow history instead of held
// in process memory. Use this when a simulation run must survive
// worker restarts; use the in-memory actors directly for everything
// else.
package durable

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"open-swarm/pkg/simtypes"
)

// SimulationInput configures one run of SimulationWorkflow.
type SimulationInput struct {
	WorldSize int
	NumSteps  int
}

// SimulationResult summarizes a completed run.
type SimulationResult struct {
	StepsCompleted int
	AgentsCreated  int
	AgentsDied     int
}

// StepReport is what RunnerStepActivity hands back for one rank's step.
type StepReport struct {
	Rank          int
	AgentsUpdated int
	AgentsDied    int
}

var activityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    30 * time.Second,
		MaximumAttempts:    5,
	},
}

// SimulationWorkflow drives the step loop to completion. Each step runs
// CreateAgentsActivity and CoordinatorStepActivity first (creation and
// placement must land before any rank executes), then one
// RunnerStepActivity per rank concurrently via a selector; each
// RunnerStepActivity drives its own state store replicas to flush
// before returning, so the workflow only needs to wait for every rank
// to finish before advancing to the next timestep.
func SimulationWorkflow(ctx workflow.Context, input SimulationInput) (*SimulationResult, error) {
	if input.WorldSize <= 0 {
		return nil, fmt.Errorf("durable: world size must be positive, got %d", input.WorldSize)
	}

	ctx = workflow.WithActivityOptions(ctx, activityOptions)
	logger := workflow.GetLogger(ctx)
	activities := &Activities{}

	result := &SimulationResult{}

	for step := 0; step < input.NumSteps; step++ {
		ts := simtypes.Timestep{Step: float64(step), Start: float64(step), End: float64(step + 1)}
		logger.Info("durable step starting", "step", step)

		var created int
		if err := workflow.ExecuteActivity(ctx, activities.CreateAgentsActivity, ts).Get(ctx, &created); err != nil {
			return nil, fmt.Errorf("durable: create_agents for step %d: %w", step, err)
		}
		result.AgentsCreated += created

		if err := workflow.ExecuteActivity(ctx, activities.CoordinatorStepActivity, ts).Get(ctx, nil); err != nil {
			return nil, fmt.Errorf("durable: coordinator step %d: %w", step, err)
		}

		reports, err := runRankSteps(ctx, logger, input.WorldSize, ts)
		if err != nil {
			return nil, err
		}
		for _, r := range reports {
			result.AgentsDied += r.AgentsDied
		}

		result.StepsCompleted++
	}

	logger.Info("durable simulation finished", "steps", result.StepsCompleted)
	return result, nil
}

// runRankSteps launches RunnerStepActivity for every rank and waits for
// all of them, matching the step protocol's move/update barrier: the
// workflow can't advance to the next timestep until every rank has
// finished its agents' steps.
func runRankSteps(ctx workflow.Context, logger interface {
	Info(string, ...interface{})
}, worldSize int, ts simtypes.Timestep) ([]StepReport, error) {
	activities := &Activities{}
	futures := make(map[int]workflow.Future, worldSize)
	for rank := 0; rank < worldSize; rank++ {
		futures[rank] = workflow.ExecuteActivity(ctx, activities.RunnerStepActivity, rank, ts)
	}

	reports := make([]StepReport, 0, worldSize)
	pending := len(futures)
	selector := workflow.NewSelector(ctx)
	var firstErr error

	for rank, f := range futures {
		rank, f := rank, f
		selector.AddFuture(f, func(f workflow.Future) {
			pending--
			var report StepReport
			if err := f.Get(ctx, &report); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("durable: runner step on rank %d: %w", rank, err)
				}
				return
			}
			reports = append(reports, report)
		})
	}
	for pending > 0 {
		selector.Select(ctx)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	logger.Info("all ranks finished step", "step", ts.Step, "ranks", worldSize)
	return reports, nil
}
