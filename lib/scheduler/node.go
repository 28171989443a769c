// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"sync/atomic"

	"github.com/edo-build/edo/lib/addr"
)

// NodeStatus is a node's position in the state machine every node in
// a Graph walks through exactly once: Pending -> Queued -> Running ->
// (Success | Failed).
type NodeStatus int32

const (
	Pending NodeStatus = iota
	Queued
	Running
	Success
	Failed
)

func (s NodeStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Node is one transform's place in a Graph. Its status is updated
// exclusively by the Engine driving the graph and is safe to read
// concurrently from any goroutine, the same guarantee the original
// dispatcher/controller split relied on an atomic for.
type Node struct {
	Addr   addr.Addr
	status int32
}

func newNode(a addr.Addr) *Node {
	return &Node{Addr: a, status: int32(Pending)}
}

// Status returns the node's current state.
func (n *Node) Status() NodeStatus {
	return NodeStatus(atomic.LoadInt32(&n.status))
}

func (n *Node) setStatus(s NodeStatus) {
	atomic.StoreInt32(&n.status, int32(s))
}

// IsPending reports whether the node has not yet been queued.
func (n *Node) IsPending() bool { return n.Status() == Pending }

// IsDone reports whether the node reached a terminal state.
func (n *Node) IsDone() bool {
	s := n.Status()
	return s == Success || s == Failed
}
