// Package recorder persists every pipeline event as one line of JSON to an
// append-only file, for offline replay and audit. Unlike the reference
// program's position store — which rewrites a whole file via a temp-file-
// then-rename — an append-only log has nothing to atomically replace: the
// file is opened once in append mode and the handle kept for the process
// lifetime. Loss tolerance mirrors the reference program's dashboard event
// channel: never block a producer, drop the oldest queued event under
// sustained backpressure and count the drop.
package recorder

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"tradingengine/internal/bus"
	"tradingengine/internal/metrics"
	"tradingengine/pkg/types"
)

const reopenInterval = 5 * time.Second

// Recorder is a single append-only JSONL sink fed by a drop-oldest bounded
// queue.
type Recorder struct {
	path   string
	queue  *bus.DropOldest[types.Event]
	m      *metrics.Metrics
	logger *slog.Logger

	mu        sync.Mutex
	file      *os.File
	writer    *bufio.Writer
	degraded  bool
}

// New constructs a Recorder that will append JSONL events to path.
func New(path string, queueCapacity int, m *metrics.Metrics, logger *slog.Logger) *Recorder {
	return &Recorder{
		path:   path,
		queue:  bus.NewDropOldest[types.Event](queueCapacity),
		m:      m,
		logger: logger.With("component", "recorder"),
	}
}

// Record enqueues an event for persistence. Never blocks; under sustained
// backpressure the oldest queued event is dropped in its place.
func (r *Recorder) Record(ev types.Event) {
	if dropped := r.queue.Publish(ev); dropped {
		if r.m != nil {
			r.m.RecorderDrop()
		}
		r.logger.Warn("recorder queue full, dropped oldest event")
	}
}

// Run drives the single writer task until done is closed. It owns the
// file handle exclusively; no other goroutine touches r.file/r.writer.
func (r *Recorder) Run(done <-chan struct{}) {
	r.openOrDegrade()
	defer r.close()

	ticker := time.NewTicker(reopenInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev := <-r.queue.Chan():
			r.write(ev)
		case <-ticker.C:
			if r.degraded {
				r.openOrDegrade()
			}
		}
	}
}

func (r *Recorder) openOrDegrade() {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		r.degraded = true
		r.logger.Error("failed to open recorder file, entering degraded mode", "error", err)
		return
	}
	r.mu.Lock()
	r.file = f
	r.writer = bufio.NewWriter(f)
	r.degraded = false
	r.mu.Unlock()
	r.logger.Info("recorder file opened", "path", r.path)
}

func (r *Recorder) write(ev types.Event) {
	if r.degraded {
		if r.m != nil {
			r.m.RecorderDrop()
		}
		return
	}

	line, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("failed to marshal event, dropping", "error", err)
		return
	}
	line = append(line, '\n')

	r.mu.Lock()
	_, werr := r.writer.Write(line)
	if werr == nil {
		werr = r.writer.Flush()
	}
	r.mu.Unlock()

	if werr != nil {
		r.logger.Error("recorder write failed, entering degraded mode", "error", werr)
		r.degraded = true
		if r.m != nil {
			r.m.RecorderDrop()
		}
	}
}

func (r *Recorder) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer != nil {
		r.writer.Flush()
	}
	if r.file != nil {
		r.file.Close()
	}
}
