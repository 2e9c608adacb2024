package dspgraph

import (
	"fmt"
	"sync/atomic"
)

// RequestStatus is the state of an UpdateRequest.
type RequestStatus int32

const (
	RequestPending RequestStatus = iota
	RequestCompleted
	RequestErrored
)

func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestCompleted:
		return "completed"
	case RequestErrored:
		return "errored"
	default:
		return fmt.Sprintf("RequestStatus(%d)", int32(s))
	}
}

// UpdateRequest is an asynchronous kernel update. Its updater runs on the
// target node's job immediately before the node's next Execute; its fence
// signals afterwards and its callback then runs on the graph's dispatcher
// goroutine. Dispose must be called once the fence has signaled.
type UpdateRequest struct {
	g        *Graph
	handle   UpdateRequestHandle
	node     NodeHandle
	target   *node
	updater  KernelUpdater
	callback func(*UpdateRequest)
	fence    *Fence

	completing atomic.Bool
	status     atomic.Int32
	err        error
	disposed   atomic.Bool

	next atomic.Pointer[UpdateRequest]
}

// Handle returns the request handle.
func (r *UpdateRequest) Handle() UpdateRequestHandle {
	return r.handle
}

// Node returns the target node.
func (r *UpdateRequest) Node() NodeHandle {
	return r.node
}

// Updater returns the updater the request runs.
func (r *UpdateRequest) Updater() KernelUpdater {
	return r.updater
}

// Fence returns the completion fence.
func (r *UpdateRequest) Fence() *Fence {
	return r.fence
}

// Status returns the current request status.
func (r *UpdateRequest) Status() RequestStatus {
	return RequestStatus(r.status.Load())
}

// HasError reports whether the update failed. It returns ErrRequestPending
// until the fence has signaled.
func (r *UpdateRequest) HasError() (bool, error) {
	if !r.fence.Signaled() {
		return false, ErrRequestPending
	}

	return r.Status() == RequestErrored, nil
}

// Err returns the update error once the fence has signaled. The error wraps
// ErrUpdateJob for failed updaters, ErrInvalidHandle if the target node was
// released first, and ErrInvalidBlock if the creating block was rejected.
func (r *UpdateRequest) Err() error {
	if !r.fence.Signaled() {
		return ErrRequestPending
	}

	return r.err
}

// Dispose releases the request handle. It returns ErrRequestPending before
// the fence signaled and ErrInvalidHandle when called again.
func (r *UpdateRequest) Dispose() error {
	if !r.fence.Signaled() {
		return ErrRequestPending
	}

	if !r.disposed.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s already disposed", ErrInvalidHandle, r.handle)
	}

	r.g.requests.Free(r.handle.Handle)

	return nil
}

// IsValidUpdateRequest reports whether h references an undisposed request.
func (g *Graph) IsValidUpdateRequest(h UpdateRequestHandle) bool {
	return g.requests.IsValid(h.Handle)
}

// completeRequest settles req exactly once and hands it to the dispatcher
// for its callback.
func (g *Graph) completeRequest(req *UpdateRequest, err error) {
	if !req.completing.CompareAndSwap(false, true) {
		return
	}

	status := RequestCompleted
	if err != nil {
		req.err = err
		status = RequestErrored
	}

	req.status.Store(int32(status))
	req.fence.signal()
	g.completed.push(req)
	g.wakeDispatcher()
}

func (g *Graph) finishRequest(req *UpdateRequest) {
	if req.callback == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error().Interface("panic", r).Stringer("request", req.handle).Msg("update callback panic recovered")
		}
	}()

	req.callback(req)
}

// runUpdates runs the pending update requests of n on its job.
func (g *Graph) runUpdates(n *node) {
	for i, req := range n.updates {
		g.completeRequest(req, g.update(n, req.updater))
		n.updates[i] = nil
	}

	n.updates = n.updates[:0]
}

// update applies u to the kernel of n. A successful update clears a fault.
func (g *Graph) update(n *node, u KernelUpdater) (err error) {
	if !n.initialized {
		return fmt.Errorf("%w: %s has no initialized kernel", ErrUpdateJob, n.handle)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrUpdateJob, r)
		}
	}()

	if err := u.Update(n.kernel); err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateJob, err)
	}

	n.faulted = false

	return nil
}
