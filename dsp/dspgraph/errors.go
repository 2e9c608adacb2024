package dspgraph

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHandle is returned when a stale or unknown handle is used.
	ErrInvalidHandle = errors.New("dspgraph: invalid handle")
	// ErrInvalidBlock is returned by Complete when any command of the block
	// failed. Nothing of the block is applied.
	ErrInvalidBlock = errors.New("dspgraph: invalid command block")
	// ErrOutOfOrderKeyframe is returned when a keyframe precedes the previous
	// keyframe of the same parameter.
	ErrOutOfOrderKeyframe = errors.New("dspgraph: keyframe out of order")
	// ErrCyclicGraph is returned when a connection would close a cycle.
	ErrCyclicGraph = errors.New("dspgraph: connection would create a cycle")
	// ErrInvalidTopology is returned for bad port indices, mismatched port
	// layouts and port changes on connected nodes.
	ErrInvalidTopology = errors.New("dspgraph: invalid topology")
	// ErrUpdateJob reports a failed kernel update.
	ErrUpdateJob = errors.New("dspgraph: update job failed")
	// ErrUnsupportedPlatform reports an initialization-time capability
	// failure of the host platform.
	ErrUnsupportedPlatform = errors.New("dspgraph: unsupported platform")
	// ErrMissingBackend reports that no audio backend could be initialized.
	ErrMissingBackend = errors.New("dspgraph: missing audio backend")

	// ErrGraphDisposed is returned by operations on a disposed graph.
	ErrGraphDisposed = errors.New("dspgraph: graph disposed")
	// ErrNoMix is returned by ReadMix when no mix is pending.
	ErrNoMix = errors.New("dspgraph: no mix in progress")
	// ErrFrameCount is returned for frame counts outside the graph's buffer
	// size or not matching the pending mix.
	ErrFrameCount = errors.New("dspgraph: invalid frame count")
	// ErrInvalidParameter is returned for out-of-range parameter indices and
	// invalid parameter or port descriptions.
	ErrInvalidParameter = errors.New("dspgraph: invalid parameter")
	// ErrAttenuationDimension is returned when attenuation values do not
	// match the connection's dimension.
	ErrAttenuationDimension = errors.New("dspgraph: attenuation dimension mismatch")
	// ErrRequestPending is returned when an update request is inspected or
	// disposed before its fence signaled.
	ErrRequestPending = errors.New("dspgraph: update request pending")
	// ErrBlockCompleted is returned when a block is used after Complete or
	// Cancel.
	ErrBlockCompleted = fmt.Errorf("%w: command block already completed", ErrInvalidHandle)
)

// CommandError describes the first failing command of a block.
type CommandError struct {
	Index int
	Op    string
	Err   error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("dspgraph: command %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
