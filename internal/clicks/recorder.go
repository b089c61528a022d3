package clicks

import (
	"sync"

	"github.com/Kosench/go-link-resolver/internal/metrics"
	"github.com/Kosench/go-link-resolver/internal/model"
)

// Recorder accepts click events on the resolve path. Record must never block
// and never fail the caller; events may be dropped under pressure.
type Recorder interface {
	Record(click model.Click)
	Close() error
}

// ChannelRecorder buffers events in memory for a Consumer in the same process.
type ChannelRecorder struct {
	mu     sync.RWMutex
	ch     chan model.Click
	closed bool
}

func NewChannelRecorder(bufferSize int) *ChannelRecorder {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &ChannelRecorder{ch: make(chan model.Click, bufferSize)}
}

func (r *ChannelRecorder) Record(click model.Click) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		metrics.ClicksDropped.WithLabelValues("closed").Inc()
		return
	}

	select {
	case r.ch <- click:
	default:
		metrics.ClicksDropped.WithLabelValues("buffer_full").Inc()
	}
}

func (r *ChannelRecorder) Events() <-chan model.Click {
	return r.ch
}

// Close stops accepting events and closes Events so the consumer can drain it.
func (r *ChannelRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	return nil
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) Record(model.Click) {}
func (NopRecorder) Close() error       { return nil }
