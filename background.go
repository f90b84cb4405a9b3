package lazybridge

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/google/uuid"
)

// BackgroundHandle owns a collect running on its own goroutine. The result
// is retrieved exactly once with Join. A handle that is dropped without
// being joined is cancelled and drained when it is garbage collected.
type BackgroundHandle struct {
	*background
}

// background is the part of a handle the worker goroutine references, so the
// handle itself can become unreachable while the worker runs.
type background struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	joined atomic.Bool

	// written by the worker before done is closed
	df  *DataFrame
	err error
}

// CollectBackground starts collecting the plan and returns immediately
func (lf *LazyFrame) CollectBackground() *BackgroundHandle {
	ctx, cancel := context.WithCancel(context.Background())
	bg := &background{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(bg.done)
		defer cancel()
		bg.df, bg.err = lf.CollectContext(ctx)
	}()

	h := &BackgroundHandle{background: bg}
	// Finalizers run on a single runtime goroutine, so the drain must not
	// block it; bg stays reachable from the drain until the worker exits.
	runtime.SetFinalizer(h, func(h *BackgroundHandle) {
		bg := h.background
		bg.cancel()
		go func() { <-bg.done }()
	})
	return h
}

// ID identifies the background collect
func (h *BackgroundHandle) ID() string { return h.id }

// Done is closed when the collect has finished
func (h *BackgroundHandle) Done() <-chan struct{} { return h.done }

// IsFinished reports whether the collect has finished without blocking
func (h *BackgroundHandle) IsFinished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Cancel asks the collect to stop. Join then reports the interruption
// unless the collect had already finished.
func (h *BackgroundHandle) Cancel() { h.cancel() }

// Join waits for the collect and returns its result. Every call after the
// first returns ErrAlreadyJoined.
func (h *BackgroundHandle) Join() (*DataFrame, error) {
	if !h.joined.CompareAndSwap(false, true) {
		return nil, ErrAlreadyJoined
	}
	<-h.done
	runtime.SetFinalizer(h, nil)

	df, err := h.df, h.err
	h.df, h.err = nil, nil
	return df, err
}

// Close cancels the collect and waits for the worker to exit. The result,
// if not yet joined, is discarded.
func (h *BackgroundHandle) Close() {
	h.cancel()
	if h.joined.CompareAndSwap(false, true) {
		<-h.done
		runtime.SetFinalizer(h, nil)
		h.df, h.err = nil, nil
	}
}
