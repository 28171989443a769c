// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"fmt"
	"os"

	"github.com/edo-build/edo/lib/addr"
	"github.com/edo-build/edo/lib/metrics"
	"github.com/edo-build/edo/lib/transform"
)

// Engine drives a Graph: a parallel fetch pass that warms local
// storage from a shared build tier, followed by a batch-limited
// dispatch/completion loop that runs each node's transform once every
// node it depends on has reached Success.
//
// The original implementation this is grounded on splits the loop
// into two cooperating tasks (a dispatcher and a channel-draining
// controller) communicating through a mutex-guarded queue, a shape
// its borrow checker all but requires. Go's goroutines and channels
// don't: Run folds both halves into one coordinating loop plus one
// goroutine per in-flight transform, with the same dispatch-at-most-
// BatchSize, queue-a-child-only-once-every-parent-succeeds semantics.
type Engine struct {
	Graph     *Graph
	Handle    *transform.Handle
	BatchSize int
	Metrics   *metrics.Metrics
}

// NewEngine returns an Engine over g, bounding concurrent transform
// execution to batchSize (clamped to at least 1).
func NewEngine(g *Graph, h *transform.Handle, batchSize int) *Engine {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Engine{Graph: g, Handle: h, BatchSize: batchSize}
}

// Fetch runs transform.Prepare for every node in the graph whose
// unique_id is not already present in the build tier, in parallel.
// Nodes already present are skipped entirely: their dependency
// artifacts are assumed to already be reachable through their own
// cached build, so there is nothing for Prepare to warm.
func (e *Engine) Fetch(ctx context.Context, log transform.Logger) error {
	nodes := e.Graph.nodes

	results := make(chan error, len(nodes))
	inFlight := 0
	for _, n := range nodes {
		t, ok := e.Handle.Transforms.Get(n.Addr)
		if !ok {
			return fmt.Errorf("scheduler: %s is not registered", n.Addr)
		}
		id, err := t.UniqueId(ctx, e.Handle)
		if err != nil {
			return fmt.Errorf("scheduler: fetch pass: %s: %w", n.Addr, err)
		}
		_, hit, err := e.Handle.Storage.FindBuild(ctx, id, true)
		if err != nil {
			return fmt.Errorf("scheduler: fetch pass: %s: %w", n.Addr, err)
		}
		if hit {
			e.recordCacheHit("fetch")
			continue
		}

		inFlight++
		go func(t transform.Transform) {
			results <- t.Prepare(ctx, log, e.Handle)
		}(t)
	}

	var firstErr error
	for i := 0; i < inFlight; i++ {
		if err := <-results; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run executes every transform needed to produce target, in
// dependency order, bounded to at most BatchSize concurrent
// transforms. A node whose unique_id already resolves to a
// build-tier artifact (checked at dispatch time, not just up front in
// Fetch) is marked Success without ever executing.
func (e *Engine) Run(ctx context.Context, log transform.Logger, target addr.Addr) error {
	idx, ok := e.Graph.IndexOf(target)
	if !ok {
		return fmt.Errorf("scheduler: %s is not in the graph", target)
	}

	t, ok := e.Handle.Transforms.Get(target)
	if !ok {
		return fmt.Errorf("scheduler: %s is not registered", target)
	}
	id, err := t.UniqueId(ctx, e.Handle)
	if err != nil {
		return fmt.Errorf("scheduler: %s: %w", target, err)
	}
	if _, hit, err := e.Handle.Storage.FindBuild(ctx, id, false); err != nil {
		return fmt.Errorf("scheduler: %s: %w", target, err)
	} else if hit {
		return nil
	}

	queue := bitmapToSlice(e.Graph.FindLeaves(idx))
	for _, i := range queue {
		e.Graph.Node(i).setStatus(Queued)
	}

	batch := e.BatchSize
	if batch < 1 {
		batch = 1
	}

	inflight := 0
	failed := false
	done := make(chan int, batch)

	for len(queue) > 0 || inflight > 0 {
		dispatch := 0
		if !failed {
			dispatch = batch - inflight
			if dispatch > len(queue) {
				dispatch = len(queue)
			}
		}
		for i := 0; i < dispatch; i++ {
			nodeIdx := queue[0]
			queue = queue[1:]
			inflight++
			e.dispatch(ctx, log, nodeIdx, done)
		}
		if failed {
			// Stop queueing new work; let what's already running drain.
			queue = nil
		}
		if inflight == 0 {
			break
		}

		nodeIdx := <-done
		inflight--
		node := e.Graph.Node(nodeIdx)
		if node.Status() == Failed {
			failed = true
			continue
		}
		if failed {
			continue
		}

		for _, child := range e.Graph.Children(nodeIdx) {
			childNode := e.Graph.Node(child)
			if !childNode.IsPending() {
				continue
			}
			ready := true
			for _, p := range e.Graph.Parents(child) {
				if e.Graph.Node(p).Status() != Success {
					ready = false
					break
				}
			}
			if ready {
				childNode.setStatus(Queued)
				queue = append(queue, child)
			}
		}
	}

	if failed {
		return fmt.Errorf("scheduler: run %s: one or more transforms failed", target)
	}
	return nil
}

// dispatch either resolves nodeIdx as an immediate build-tier cache
// hit or spawns a goroutine to run its transform, always eventually
// sending nodeIdx on done exactly once.
func (e *Engine) dispatch(ctx context.Context, log transform.Logger, nodeIdx int, done chan<- int) {
	node := e.Graph.Node(nodeIdx)
	t, ok := e.Handle.Transforms.Get(node.Addr)
	if !ok {
		log.Error("scheduler: transform not registered", "addr", node.Addr.String())
		node.setStatus(Failed)
		done <- nodeIdx
		return
	}

	id, err := t.UniqueId(ctx, e.Handle)
	if err != nil {
		log.Error("scheduler: resolving unique id failed", "addr", node.Addr.String(), "error", err)
		node.setStatus(Failed)
		done <- nodeIdx
		return
	}
	if _, hit, err := e.Handle.Storage.FindBuild(ctx, id, false); err != nil {
		log.Error("scheduler: build-tier lookup failed", "addr", node.Addr.String(), "error", err)
		node.setStatus(Failed)
		done <- nodeIdx
		return
	} else if hit {
		e.recordCacheHit("dispatch")
		node.setStatus(Success)
		done <- nodeIdx
		return
	}

	node.setStatus(Running)
	e.recordStarted(node.Addr)
	go e.runNode(ctx, log, nodeIdx, node, t, done)
}

func (e *Engine) runNode(ctx context.Context, log transform.Logger, nodeIdx int, node *Node, t transform.Transform, done chan<- int) {
	e.metricsInflight(1)
	defer e.metricsInflight(-1)

	status := e.execute(ctx, log, t)
	if status.IsSuccess() {
		node.setStatus(Success)
		e.recordSucceeded(node.Addr)
	} else {
		node.setStatus(Failed)
		e.recordFailed(node.Addr)
	}
	done <- nodeIdx
}

// execute creates a fresh Environment for t, stages and runs it, and
// tears the environment down on every exit path. On success the
// produced artifact is uploaded to the build tier on a best-effort
// basis; on a non-Success outcome, an interactive shell is offered at
// the transform's debug path when it supports one.
func (e *Engine) execute(ctx context.Context, log transform.Logger, t transform.Transform) transform.Status {
	farm, ok := e.Handle.Farm(t.Environment())
	if !ok {
		return transform.Failed("", fmt.Errorf("scheduler: farm %s is not registered", t.Environment()))
	}

	if err := t.Prepare(ctx, log, e.Handle); err != nil {
		return transform.Failed("", fmt.Errorf("scheduler: prepare: %w", err))
	}

	root, err := os.MkdirTemp("", "edo-transform-*")
	if err != nil {
		return transform.Failed("", fmt.Errorf("scheduler: creating scratch directory: %w", err))
	}
	defer os.RemoveAll(root)

	env, err := farm.Create(ctx, log, root)
	if err != nil {
		return transform.Failed("", fmt.Errorf("scheduler: creating environment: %w", err))
	}
	if err := env.Setup(ctx, log, e.Handle.Storage); err != nil {
		return transform.Failed("", fmt.Errorf("scheduler: environment setup: %w", err))
	}
	if err := env.Up(ctx, log); err != nil {
		return transform.Failed("", fmt.Errorf("scheduler: environment up: %w", err))
	}
	defer env.Down(ctx, log)

	if err := t.Stage(ctx, log, e.Handle, env); err != nil {
		return transform.Failed("", fmt.Errorf("scheduler: staging: %w", err))
	}

	status := t.Transform(ctx, log, e.Handle, env)
	switch status.Kind {
	case transform.StatusSuccess:
		if err := e.Handle.Storage.SafeSave(ctx, status.Artifact); err != nil {
			log.Error("scheduler: saving artifact locally failed", "error", err)
		}
		if err := e.Handle.Storage.UploadBuild(ctx, status.Artifact.Config.Id); err != nil {
			log.Warn("scheduler: best-effort build-tier upload failed", "error", err)
		}
	default:
		log.Error("scheduler: transform did not succeed", "error", status.Err)
		if t.CanShell() && status.DebugPath != "" {
			if err := t.Shell(ctx, env); err != nil {
				log.Warn("scheduler: interactive debug shell failed", "error", err)
			}
		}
	}
	return status
}

func (e *Engine) recordCacheHit(pass string) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.CacheHits.WithLabelValues(pass).Inc()
}

func (e *Engine) recordStarted(a addr.Addr) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.TransformsStarted.WithLabelValues(a.String()).Inc()
}

func (e *Engine) recordSucceeded(a addr.Addr) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.TransformsSucceeded.WithLabelValues(a.String()).Inc()
}

func (e *Engine) recordFailed(a addr.Addr) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.TransformsFailed.WithLabelValues(a.String()).Inc()
}

func (e *Engine) metricsInflight(delta float64) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.Inflight.Add(delta)
}
