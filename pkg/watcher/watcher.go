// Package watcher keeps the routing registry in sync with the cluster. Each
// watcher lists a resource, replays it into a handler as an initial sync,
// then applies watch events until the stream fails.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
)

// ErrStreamClosed is returned when the watch ends without an error event.
var ErrStreamClosed = errors.New("watch stream closed")

// Handler receives the events of a Watcher. Calls are sequential.
type Handler[T any] interface {
	// Init is called before the initial list is replayed.
	Init()
	// Apply is called for every listed, added or modified object.
	Apply(obj T)
	// Delete is called for every deleted object.
	Delete(obj T)
	// InitDone is called after the initial list has been replayed.
	InitDone()
}

// Watcher drives a Handler from a Source.
type Watcher[T any] struct {
	name    string
	source  Source[T]
	handler Handler[T]
	logger  *slog.Logger
	synced  atomic.Bool
}

// New creates a Watcher. name labels logs and metrics.
func New[T any](name string, source Source[T], handler Handler[T], logger *slog.Logger) *Watcher[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher[T]{
		name:    name,
		source:  source,
		handler: handler,
		logger:  logger.With("watcher", name),
	}
}

// Name returns the watcher name.
func (w *Watcher[T]) Name() string {
	return w.name
}

// Synced reports whether the current run has finished its initial sync.
func (w *Watcher[T]) Synced() bool {
	return w.synced.Load()
}

// Run lists, replays and watches until ctx is cancelled or the stream
// fails. It always returns a non-nil error.
func (w *Watcher[T]) Run(ctx context.Context) error {
	w.synced.Store(false)
	defer w.synced.Store(false)

	items, resourceVersion, err := w.source.List(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("list %s: %w", w.name, err)
	}

	// Open the watch before replaying the list so nothing changed in
	// between is lost.
	stream, err := w.source.openWatch(ctx, resourceVersion)
	if err != nil {
		return fmt.Errorf("watch %s: %w", w.name, err)
	}
	defer stream.Stop()

	w.dispatch(Event[T]{Type: EventInit})
	for _, item := range items {
		w.dispatch(Event[T]{Type: EventInitApply, Object: item})
	}
	w.dispatch(Event[T]{Type: EventInitDone})
	w.logger.Info("initial sync complete", "objects", len(items), "resourceVersion", resourceVersion)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-stream.ResultChan():
			if !ok {
				return fmt.Errorf("%s: %w", w.name, ErrStreamClosed)
			}
			if err := w.handle(event); err != nil {
				return fmt.Errorf("%s: %w", w.name, err)
			}
		}
	}
}

func (w *Watcher[T]) handle(event watch.Event) error {
	switch event.Type {
	case watch.Added, watch.Modified, watch.Deleted:
		obj, err := w.source.Convert(event.Object)
		if err != nil {
			return fmt.Errorf("decode %s event: %w", event.Type, err)
		}
		if event.Type == watch.Deleted {
			w.dispatch(Event[T]{Type: EventDelete, Object: obj})
		} else {
			w.dispatch(Event[T]{Type: EventApply, Object: obj})
		}
		return nil
	case watch.Bookmark:
		return nil
	case watch.Error:
		return fmt.Errorf("watch error: %w", apierrors.FromObject(event.Object))
	default:
		return fmt.Errorf("unexpected watch event type %q", event.Type)
	}
}

func (w *Watcher[T]) dispatch(event Event[T]) {
	eventsTotal.WithLabelValues(w.name, event.Type.String()).Inc()

	switch event.Type {
	case EventInit:
		w.synced.Store(false)
		w.handler.Init()
	case EventInitApply, EventApply:
		w.handler.Apply(event.Object)
	case EventDelete:
		w.handler.Delete(event.Object)
	case EventInitDone:
		w.handler.InitDone()
		w.synced.Store(true)
	}
}
