package tinyterrain

import (
	"sync"
	"time"

	"github.com/df-mc/atomic"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// StreamingHandler declares a position and radius around which the terrain
// keeps chunks resident. A handler starts dirty, so its region is loaded on
// the first worker pass; it becomes dirty again whenever its position
// changes or its radius grows. Handlers must be closed when no longer
// needed or the worker will keep servicing them.
type StreamingHandler struct {
	t  *Terrain
	id uuid.UUID

	mu     sync.Mutex
	pos    mgl64.Vec2
	radius uint8

	dirty atomic.Bool
}

// CreateStreamingHandler registers a new streaming handler with the given
// radius in world units and starts the background worker if it is not
// already running.
func (t *Terrain) CreateStreamingHandler(radius uint8) *StreamingHandler {
	h := &StreamingHandler{t: t, id: uuid.New(), radius: radius}
	h.dirty.Store(true)

	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()

	t.handlers[h.id] = h
	if !t.workerRunning && !t.closed.Load() {
		t.workerRunning = true
		t.workerStop = make(chan struct{})
		t.workerDone.Add(1)
		go t.streamWorker(t.workerStop)
	}
	return h
}

// Position returns the handler's current world position.
func (h *StreamingHandler) Position() mgl64.Vec2 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

// SetPosition moves the handler, marking it dirty if the position actually
// changed.
func (h *StreamingHandler) SetPosition(p mgl64.Vec2) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p != h.pos {
		h.pos = p
		h.dirty.Store(true)
	}
}

// Radius returns the handler's radius in world units.
func (h *StreamingHandler) Radius() uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.radius
}

// SetRadius resizes the handler's region. Growing marks the handler dirty;
// shrinking does not trigger a load, the extra chunks simply age out of the
// cache.
func (h *StreamingHandler) SetRadius(r uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r > h.radius {
		h.dirty.Store(true)
	}
	h.radius = r
}

// Dirty reports whether the handler is waiting to be serviced by the
// worker.
func (h *StreamingHandler) Dirty() bool {
	return h.dirty.Load()
}

// Close unregisters the handler from its terrain. The worker stops
// servicing it on its next pass.
func (h *StreamingHandler) Close() {
	h.t.handlerMu.Lock()
	delete(h.t.handlers, h.id)
	h.t.handlerMu.Unlock()
}

// streamWorker periodically scans the registered handlers and prefetches
// the region of each dirty one. It exits when stop is closed.
func (t *Terrain) streamWorker(stop <-chan struct{}) {
	defer t.workerDone.Done()

	ticker := time.NewTicker(t.conf.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.scanHandlers()
		}
	}
}

// scanHandlers services every dirty handler with a radius of at least one.
// The dirty flag is claimed before the position is read, so a concurrent
// move during the load re-marks the handler and is picked up next pass.
// Region load errors are logged and the pass moves on; the error will
// resurface on the next client access of the failing record.
func (t *Terrain) scanHandlers() {
	t.handlerMu.Lock()
	handlers := make([]*StreamingHandler, 0, len(t.handlers))
	for _, h := range t.handlers {
		handlers = append(handlers, h)
	}
	t.handlerMu.Unlock()

	for _, h := range handlers {
		if h.Radius() < 1 || !h.dirty.CAS(true, false) {
			continue
		}
		h.mu.Lock()
		pos, radius := h.pos, h.radius
		h.mu.Unlock()

		visited, err := t.loadRegion(pos, radius)
		if err != nil {
			t.log.Errorf("tinyterrain: load region around %v: %v", pos, err)
			continue
		}
		t.notifyLoaded(visited)
	}
}

// stopWorker signals the worker to stop and waits for the pass in progress
// to finish.
func (t *Terrain) stopWorker() {
	t.handlerMu.Lock()
	if t.workerRunning {
		close(t.workerStop)
		t.workerRunning = false
	}
	t.handlerMu.Unlock()
	t.workerDone.Wait()
}
