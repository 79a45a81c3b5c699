package services

import (
	"context"
	"errors"

	"property-map-search/models"
	"property-map-search/utils"
)

// ErrDispatcherStopped is returned by Dispatcher methods once Run has exited.
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// Dispatcher lets many goroutines (HTTP handlers, the map engine) drive one
// Controller. A single loop goroutine owns the Controller; filter and
// aggregation passes run on a WorkerPool and come back to the loop, where
// the Controller's sequence check drops any pass overtaken by a later event.
type Dispatcher struct {
	ctrl   *Controller
	pool   *utils.WorkerPool
	logger *utils.Logger

	events  chan func()
	results chan passResult
	stopped chan struct{}

	// waiters is only touched on the loop goroutine.
	waiters map[uint64][]chan models.Snapshot
}

// NewDispatcher wraps ctrl. Run must be started before any other method is
// called.
func NewDispatcher(ctrl *Controller, pool *utils.WorkerPool, logger *utils.Logger) *Dispatcher {
	return &Dispatcher{
		ctrl:    ctrl,
		pool:    pool,
		logger:  logger,
		events:  make(chan func()),
		results: make(chan passResult),
		stopped: make(chan struct{}),
		waiters: make(map[uint64][]chan models.Snapshot),
	}
}

// Run processes events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.stopped)
	d.logger.Info("[dispatcher] Event loop started (workers: %d)", d.pool.Size())

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("[dispatcher] Event loop stopping: %v", ctx.Err())
			return ctx.Err()
		case fn := <-d.events:
			fn()
		case r := <-d.results:
			d.ctrl.commit(r)
			d.releaseWaiters()
		}
	}
}

// SetProperties loads a new property snapshot and waits for its pass.
func (d *Dispatcher) SetProperties(ctx context.Context, records []models.PropertyRecord) (models.Snapshot, error) {
	props := d.ctrl.normalizer.Normalize(records)
	return d.recompute(ctx, func() bool {
		d.ctrl.setNormalized(props)
		return true
	})
}

// OnViewportChange applies new bounds and waits until a pass at least as
// recent as this event has been committed.
func (d *Dispatcher) OnViewportChange(ctx context.Context, b models.ViewportBounds) (models.Snapshot, error) {
	return d.recompute(ctx, func() bool {
		return d.ctrl.setViewport(b)
	})
}

// OnFilterSettingsChange applies new sidebar settings.
func (d *Dispatcher) OnFilterSettingsChange(ctx context.Context, s models.FilterSettings) (models.Snapshot, error) {
	return d.recompute(ctx, func() bool {
		d.ctrl.setSettings(s)
		return true
	})
}

// OnReset restores default settings and drops the viewport.
func (d *Dispatcher) OnReset(ctx context.Context) (models.Snapshot, error) {
	return d.recompute(ctx, func() bool {
		d.ctrl.reset()
		return true
	})
}

// OnPropertySelect selects a property. ok is false when the id is not in
// the current results.
func (d *Dispatcher) OnPropertySelect(ctx context.Context, id string) (snap models.Snapshot, ok bool, err error) {
	err = d.do(ctx, func() {
		ok = d.ctrl.OnPropertySelect(id)
		snap = d.ctrl.Snapshot()
	})
	return snap, ok, err
}

// OnMarkerClick selects the property whose marker was clicked.
func (d *Dispatcher) OnMarkerClick(ctx context.Context, id string) (models.Snapshot, bool, error) {
	return d.OnPropertySelect(ctx, id)
}

// Deselect clears the selection.
func (d *Dispatcher) Deselect(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	err := d.do(ctx, func() {
		d.ctrl.Deselect()
		snap = d.ctrl.Snapshot()
	})
	return snap, err
}

// Snapshot returns the current derived state.
func (d *Dispatcher) Snapshot(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	err := d.do(ctx, func() {
		snap = d.ctrl.Snapshot()
	})
	return snap, err
}

// recompute applies mutate on the loop, starts a pass for the new inputs on
// the pool and waits for it (or a later pass) to be committed.
func (d *Dispatcher) recompute(ctx context.Context, mutate func() bool) (models.Snapshot, error) {
	var (
		p       pass
		started bool
		snap    models.Snapshot
		wait    = make(chan models.Snapshot, 1)
	)

	err := d.do(ctx, func() {
		if !mutate() {
			snap = d.ctrl.Snapshot()
			return
		}
		p = d.ctrl.begin()
		started = true
		d.waiters[p.seq] = append(d.waiters[p.seq], wait)
	})
	if err != nil || !started {
		return snap, err
	}

	d.pool.Submit(func() {
		r := computePass(p)
		select {
		case d.results <- r:
		case <-d.stopped:
		}
	})

	select {
	case snap = <-wait:
		return snap, nil
	case <-ctx.Done():
		return models.Snapshot{}, ctx.Err()
	case <-d.stopped:
		return models.Snapshot{}, ErrDispatcherStopped
	}
}

// do runs fn on the loop goroutine and waits for it to finish. ctx only
// bounds the wait for the loop to accept the job.
func (d *Dispatcher) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	job := func() {
		defer close(done)
		fn()
	}

	select {
	case d.events <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopped:
		return ErrDispatcherStopped
	}

	// The loop has taken the job; it always runs to completion.
	<-done
	return nil
}

// releaseWaiters answers every caller whose pass is now covered by the
// committed sequence, whether its own pass won or was overtaken.
func (d *Dispatcher) releaseWaiters() {
	committed := d.ctrl.committedSeq
	var snap models.Snapshot
	built := false

	for seq, chans := range d.waiters {
		if seq > committed {
			continue
		}
		if !built {
			snap = d.ctrl.Snapshot()
			built = true
		}
		for _, ch := range chans {
			ch <- snap
		}
		delete(d.waiters, seq)
	}
}
