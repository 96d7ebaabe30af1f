package platform

import (
	"context"
	"fmt"
	"sync"

	"situsim/internal/bounded"
	"situsim/internal/model"
)

// Spectator receives a read-only snapshot after every commit. Observe runs
// on the coordinator goroutine and must not block for long.
type Spectator interface {
	Observe(snapshot model.WorldSnapshot)
}

// Recorder is a support module that keeps the most recent snapshots.
type Recorder struct {
	name string

	mu        sync.Mutex
	snapshots *bounded.FIFOQueue[model.WorldSnapshot]
	observed  int64
}

func NewRecorder(name string, capacity int) (*Recorder, error) {
	if name == "" {
		return nil, fmt.Errorf("recorder name is required")
	}
	q, err := bounded.NewFIFOQueue[model.WorldSnapshot](capacity)
	if err != nil {
		return nil, fmt.Errorf("recorder %s: %w", name, err)
	}
	return &Recorder{name: name, snapshots: q}, nil
}

func (r *Recorder) Name() string { return r.name }

func (r *Recorder) Start(context.Context) error { return nil }

func (r *Recorder) Stop(context.Context) error { return nil }

// StopWithReason keeps the window on a normal stop so it can still be read
// afterwards. A shutdown drops it.
func (r *Recorder) StopWithReason(ctx context.Context, reason StopReason) error {
	if reason == StopReasonShutdown {
		r.Reset()
	}
	return r.Stop(ctx)
}

// Reset drops every held snapshot.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.snapshots.Clear()
	r.observed = 0
	r.mu.Unlock()
}

func (r *Recorder) Observe(snapshot model.WorldSnapshot) {
	r.mu.Lock()
	r.snapshots.Push(snapshot)
	r.observed++
	r.mu.Unlock()
}

// Latest returns the newest snapshot held.
func (r *Recorder) Latest() (model.WorldSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := r.snapshots.Items()
	if len(items) == 0 {
		return model.WorldSnapshot{}, false
	}
	return items[len(items)-1], true
}

// Snapshots returns the held snapshots, oldest first.
func (r *Recorder) Snapshots() []model.WorldSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots.Items()
}

// Observed counts every snapshot seen, including evicted ones.
func (r *Recorder) Observed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.observed
}
