package wait

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/melih/lighthouse-up/internal/core/ports"
)

// backlogSize bounds the recent lines replayed to a listener joining a live
// stream.
const backlogSize = 512

// LogWatcher shares one live log stream of a container between all interested
// listeners. The first subscription opens the stream and the last Close
// releases it. Lines are delivered to every active listener in arrival order; a
// listener joining a live stream first sees up to backlogSize recent lines.
type LogWatcher struct {
	streamer    ports.LogStreamer
	containerID string
	logger      *slog.Logger

	// openMu serialises opening and closing the underlying stream.
	openMu sync.Mutex

	mu        sync.Mutex
	listeners []*LogSubscription
	backlog   []string
	live      bool
	handle    io.Closer
}

// NewLogWatcher creates a watcher for the container with the given id.
func NewLogWatcher(streamer ports.LogStreamer, containerID string, logger *slog.Logger) *LogWatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LogWatcher{
		streamer:    streamer,
		containerID: containerID,
		logger:      logger.With(slog.String("logger", "logwatch"), slog.String("container_id", containerID)),
	}
}

// LogSubscription is a single listener of a LogWatcher.
type LogSubscription struct {
	watcher *LogWatcher
	onLine  func(line string) bool
	done    bool
	closed  bool
}

// Subscribe registers onLine, which returns false once the listener needs no
// further lines. The stream is opened if no stream is live.
func (w *LogWatcher) Subscribe(ctx context.Context, onLine func(line string) bool) (*LogSubscription, error) {
	w.openMu.Lock()
	defer w.openMu.Unlock()

	sub := &LogSubscription{watcher: w, onLine: onLine}
	w.mu.Lock()
	needOpen := !w.live
	stale := w.handle
	if needOpen {
		w.live = true
		w.handle = nil
		w.backlog = nil
	} else {
		for _, line := range w.backlog {
			if !onLine(line) {
				sub.done = true
				break
			}
		}
	}
	w.listeners = append(w.listeners, sub)
	w.mu.Unlock()

	if !needOpen {
		return sub, nil
	}
	if stale != nil {
		if err := stale.Close(); err != nil {
			w.logger.Debug("close finished log stream", slog.Any("error", err))
		}
	}

	w.logger.Debug("open log stream")
	// The stream outlives the subscribing call.
	handle, err := w.streamer.StreamLogs(context.WithoutCancel(ctx), w.containerID, w.dispatch, w.streamError)
	if err != nil {
		w.mu.Lock()
		w.remove(sub)
		w.live = false
		w.mu.Unlock()
		return nil, fmt.Errorf("stream logs of %s: %w", w.containerID, err)
	}

	w.mu.Lock()
	w.handle = handle
	w.mu.Unlock()
	return sub, nil
}

// Subscribers returns the number of open subscriptions.
func (w *LogWatcher) Subscribers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.listeners)
}

func (w *LogWatcher) dispatch(line string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.live {
		return false
	}
	if len(w.backlog) == backlogSize {
		w.backlog = append(w.backlog[:0], w.backlog[1:]...)
	}
	w.backlog = append(w.backlog, line)
	active := 0
	for _, sub := range w.listeners {
		if sub.done {
			continue
		}
		if !sub.onLine(line) {
			sub.done = true
			continue
		}
		active++
	}
	if active == 0 {
		w.live = false
		return false
	}
	return true
}

func (w *LogWatcher) streamError(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	w.logger.Error("log stream failed", slog.Any("error", err))
}

// remove must be called with mu held.
func (w *LogWatcher) remove(sub *LogSubscription) {
	for i, s := range w.listeners {
		if s == sub {
			w.listeners = append(w.listeners[:i], w.listeners[i+1:]...)
			return
		}
	}
}

// Close releases the subscription. Closing the last subscription closes the
// stream. Close is idempotent.
func (s *LogSubscription) Close() error {
	w := s.watcher
	w.openMu.Lock()
	defer w.openMu.Unlock()

	w.mu.Lock()
	if s.closed {
		w.mu.Unlock()
		return nil
	}
	s.closed = true
	s.done = true
	w.remove(s)
	var handle io.Closer
	if len(w.listeners) == 0 {
		handle = w.handle
		w.handle = nil
		w.live = false
	}
	w.mu.Unlock()

	if handle == nil {
		return nil
	}
	w.logger.Debug("close log stream")
	return handle.Close()
}
