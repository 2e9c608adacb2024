package dspgraph

import (
	"container/heap"
	"sync/atomic"
)

// ScheduleEntry describes one node of the execution plan.
type ScheduleEntry struct {
	Node NodeHandle
	// FenceIndex is the node's position in the plan. Nodes without a
	// dependency between them run in FenceIndex order when executed inline.
	FenceIndex int
	// FenceCount is the number of distinct upstream nodes the node waits on.
	FenceCount int
	// ReachesRoot reports whether the node's output reaches the root node.
	ReachesRoot bool
}

type planEntry struct {
	node        *node
	fenceIndex  int
	fenceCount  int32
	reachesRoot bool
	downstream  []*planEntry
	pending     atomic.Int32
}

// seqHeap orders ready nodes by creation sequence.
type seqHeap []*node

func (h seqHeap) Len() int           { return len(h) }
func (h seqHeap) Less(i, j int) bool { return h[i].seq < h[j].seq }
func (h seqHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *seqHeap) Push(x any)        { *h = append(*h, x.(*node)) }

func (h *seqHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return x
}

// buildPlan orders nodes topologically (Kahn's algorithm). Among ready
// nodes the oldest runs first, so the plan only depends on the command
// history.
func buildPlan(nodes []*node, root *node) ([]*planEntry, error) {
	entries := make(map[*node]*planEntry, len(nodes))
	upstream := make(map[*node]map[*node]struct{}, len(nodes))

	for _, n := range nodes {
		entries[n] = &planEntry{node: n}
		upstream[n] = make(map[*node]struct{})
	}

	for _, n := range nodes {
		for _, c := range n.outConns {
			if _, ok := upstream[c.in][n]; ok {
				continue
			}

			upstream[c.in][n] = struct{}{}
			entries[n].downstream = append(entries[n].downstream, entries[c.in])
			entries[c.in].fenceCount++
		}
	}

	markReachesRoot(entries, root)

	indegree := make(map[*node]int32, len(nodes))
	ready := &seqHeap{}

	for _, n := range nodes {
		indegree[n] = entries[n].fenceCount
		if indegree[n] == 0 {
			heap.Push(ready, n)
		}
	}

	plan := make([]*planEntry, 0, len(nodes))

	for ready.Len() > 0 {
		n := heap.Pop(ready).(*node)
		e := entries[n]
		e.fenceIndex = len(plan)
		plan = append(plan, e)

		for _, d := range e.downstream {
			indegree[d.node]--
			if indegree[d.node] == 0 {
				heap.Push(ready, d.node)
			}
		}
	}

	if len(plan) != len(nodes) {
		return nil, ErrCyclicGraph
	}

	return plan, nil
}

func markReachesRoot(entries map[*node]*planEntry, root *node) {
	if root == nil {
		return
	}

	stack := []*node{root}
	entries[root].reachesRoot = true

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, conns := range n.inletConns {
			for _, c := range conns {
				e := entries[c.out]
				if e.reachesRoot {
					continue
				}

				e.reachesRoot = true
				stack = append(stack, c.out)
			}
		}
	}
}

// Schedule returns the execution plan of the last BeginMix.
func (g *Graph) Schedule() []ScheduleEntry {
	g.mixMu.Lock()
	defer g.mixMu.Unlock()

	out := make([]ScheduleEntry, len(g.plan))
	for i, e := range g.plan {
		out[i] = ScheduleEntry{
			Node:        e.node.handle,
			FenceIndex:  e.fenceIndex,
			FenceCount:  int(e.fenceCount),
			ReachesRoot: e.reachesRoot,
		}
	}

	return out
}
