// Package dspgraph implements a command-driven audio processing graph.
//
// A [Graph] owns a set of nodes, each running an [AudioKernel], joined by
// attenuated connections into a directed acyclic graph that ends in the
// graph's root node. The graph is mutated only through [CommandBlock]s: a
// control goroutine records commands (create nodes, connect ports, automate
// parameters) and commits the block atomically with [CommandBlock.Complete].
// Committed blocks become visible at the next [Graph.BeginMix], in commit
// order, so the mixing side never observes a half-applied change.
//
// Each mix runs the node kernels in dependency order. With [Jobified]
// execution, independent branches run in parallel on worker goroutines and
// every node waits on a fence counting its upstream nodes; with
// [Synchronous] execution, nodes run inline in the same order. Output is
// identical in both modes. [Graph.ReadMix] waits for the mix and copies the
// root node's input without allocating or taking locks, so it can be called
// from a platform audio callback.
//
// Parameters and connection attenuations interpolate linearly between
// time-stamped keyframes on the graph's sample clock.
//
// Basic usage:
//
//	g, _ := dspgraph.CreateGraph(dspgraph.FormatStereo, 2, 512, 48000)
//	defer g.Dispose()
//
//	block := g.CreateCommandBlock()
//	osc := block.CreateNode(kernel, params, nil)
//	block.AddOutletPort(osc, 2, dspgraph.FormatStereo)
//	block.Connect(osc, 0, g.RootNode(), 0)
//	if err := block.Complete(); err != nil {
//		return err
//	}
//
//	out := make([]float64, 512*2)
//	_ = g.BeginMix(512, dspgraph.Jobified)
//	_ = g.ReadMix(out, 512)
package dspgraph
