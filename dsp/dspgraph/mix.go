package dspgraph

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-dspgraph/internal/jobsystem"
)

// MixState is the state of the current mix cycle.
type MixState int32

const (
	MixIdle MixState = iota
	MixScheduleBuilt
	MixExecuting
	MixReady
)

func (s MixState) String() string {
	switch s {
	case MixIdle:
		return "idle"
	case MixScheduleBuilt:
		return "schedule-built"
	case MixExecuting:
		return "executing"
	case MixReady:
		return "mix-ready"
	default:
		return fmt.Sprintf("MixState(%d)", int32(s))
	}
}

type mixCycle struct {
	frames    int
	clock     uint64
	mode      ExecutionMode
	done      chan struct{}
	remaining atomic.Int32
}

type job struct {
	entry *planEntry
	cycle *mixCycle
}

// MixState returns the state of the current mix cycle.
func (g *Graph) MixState() MixState {
	return MixState(g.state.Load())
}

// BeginMix applies every committed command block in commit order, rebuilds
// the execution plan if the topology changed and starts executing the
// nodes for frames samples. The DSP clock advances by frames.
//
// If the previous mix was never read, BeginMix waits for it and drops its
// output.
func (g *Graph) BeginMix(frames int, mode ExecutionMode) error {
	if frames <= 0 || frames > g.bufferSize {
		return fmt.Errorf("%w: %d frames, buffer size %d", ErrFrameCount, frames, g.bufferSize)
	}

	g.mixMu.Lock()
	defer g.mixMu.Unlock()

	if g.disposed.Load() {
		return ErrGraphDisposed
	}

	start := time.Now()

	if g.last != nil {
		<-g.last.done
	}

	clock := g.clock.Load()
	g.advance(clock)

	if !g.queue.empty() {
		applied := g.queue.drain(g.applyBlock)
		g.metrics.blocksApplied.Add(float64(applied))
	}

	if g.dirty {
		if err := g.rebuildPlan(); err != nil {
			return err
		}
	}

	g.state.Store(int32(MixScheduleBuilt))

	if !mode.has(Jobified | Synchronous) {
		mode |= g.opts.DefaultMode
	}

	c := &mixCycle{
		frames: frames,
		clock:  clock,
		mode:   mode,
		done:   make(chan struct{}),
	}
	g.last = c
	g.cycle.Store(c)
	g.state.Store(int32(MixExecuting))

	if mode.has(Jobified) && !mode.has(Synchronous) && g.opts.Workers > 0 && len(g.plan) > 1 {
		g.executeJobs(c)
	} else {
		for _, e := range g.plan {
			g.runNode(e, c)
		}

		g.finishMix(c)
	}

	g.clock.Add(uint64(frames))
	g.metrics.mixes.Inc()
	g.metrics.scheduleTime.Observe(time.Since(start).Seconds())

	return nil
}

// ReadMix waits for the current mix and copies the root node's input into
// dst, interleaved, channels samples per frame. frames must match the
// frames passed to BeginMix. ReadMix neither allocates nor takes locks.
func (g *Graph) ReadMix(dst []float64, frames int) error {
	g.readers.Add(1)
	defer g.readers.Add(-1)

	if g.disposed.Load() {
		return ErrGraphDisposed
	}

	c := g.cycle.Load()
	if c == nil {
		return ErrNoMix
	}

	if frames != c.frames || len(dst) < frames*g.channels {
		return ErrFrameCount
	}

	<-c.done

	g.root.inBufs[0].Interleave(dst, frames)

	if g.cycle.CompareAndSwap(c, nil) {
		g.state.Store(int32(MixIdle))
	}

	return nil
}

func (g *Graph) advance(clock uint64) {
	for _, n := range g.live {
		for i := range n.params {
			n.params[i].advance(clock)
		}

		for _, c := range n.outConns {
			for i := range c.atten {
				c.atten[i].advance(clock)
			}
		}
	}
}

func (g *Graph) applyBlock(b *CommandBlock) {
	for _, c := range b.cmds {
		c.apply(g)
	}

	b.cmds = nil
}

func (g *Graph) rebuildPlan() error {
	plan, err := buildPlan(g.live, g.root)
	if err != nil {
		// Complete rejects cycles, so this is an internal error.
		g.logger.Error().Err(err).Msg("execution plan rebuild failed")
		return err
	}

	g.plan = plan
	g.dirty = false
	g.metrics.planRebuilds.Inc()
	g.logger.Debug().Int("nodes", len(plan)).Int("connections", g.connCount).Msg("execution plan rebuilt")

	return nil
}

// executeJobs submits every node without upstream dependencies; finishing
// nodes submit their downstream nodes once all their inputs are ready.
func (g *Graph) executeJobs(c *mixCycle) {
	if need := len(g.plan) + g.opts.Workers; g.pool == nil || g.poolSize < need {
		if g.pool != nil {
			g.pool.Stop()
		}

		g.poolSize = max(2*need, 64)
		g.pool = jobsystem.New(g.id.String(), g.opts.Workers, g.poolSize, g.runJob, g.logger)
	}

	c.remaining.Store(int32(len(g.plan)))

	for _, e := range g.plan {
		e.pending.Store(e.fenceCount)
	}

	for _, e := range g.plan {
		if e.fenceCount == 0 {
			g.pool.Submit(job{entry: e, cycle: c})
		}
	}
}

func (g *Graph) runJob(j job) {
	g.runNode(j.entry, j.cycle)

	for _, d := range j.entry.downstream {
		if d.pending.Add(-1) == 0 {
			g.pool.Submit(job{entry: d, cycle: j.cycle})
		}
	}

	if j.cycle.remaining.Add(-1) == 0 {
		g.finishMix(j.cycle)
	}
}

func (g *Graph) finishMix(c *mixCycle) {
	g.state.Store(int32(MixReady))
	close(c.done)
}

// runNode runs the pending updates of a node, mixes its inputs and executes
// its kernel. Kernel panics and failures silence the node.
func (g *Graph) runNode(e *planEntry, c *mixCycle) {
	n := e.node

	if len(n.updates) > 0 {
		g.runUpdates(n)
	}

	if !e.reachesRoot && !c.mode.has(ExecuteNodesWithNoOutputs) {
		return
	}

	for i, buf := range n.inBufs {
		buf.Zero(c.frames)

		for _, conn := range n.inletConns[i] {
			conn.mix(c.clock, c.frames)
		}
	}

	if n.root {
		return
	}

	n.silence(c.frames)

	if n.faulted || !n.initialized {
		return
	}

	for i := range n.inputs {
		n.inputs[i].frames = c.frames
	}

	for i := range n.outputs {
		n.outputs[i].frames = c.frames
	}

	ctx := &n.ctx
	ctx.DSPClock = c.clock
	ctx.Frames = c.frames
	ctx.Inputs = n.inputs
	ctx.Outputs = n.outputs
	ctx.Parameters = ParameterReader{params: n.params, clock: c.clock, frames: c.frames}
	ctx.Providers = ProviderReader{slots: n.providers, registry: g.providers}
	ctx.err = nil

	if err := g.execute(n, ctx); err != nil {
		n.silence(c.frames)
		g.fault(n, err)
	}
}

func (g *Graph) execute(n *node, ctx *ExecuteContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dspgraph: kernel panic: %v", r)
		}
	}()

	n.kernel.Execute(ctx)

	return ctx.err
}
