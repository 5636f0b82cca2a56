package watcher

import (
	"context"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	watchtools "k8s.io/client-go/tools/watch"
)

// EventType identifies a step of a list-then-watch stream.
type EventType int

const (
	// EventInit starts a (re)initialisation; handlers reset their state.
	EventInit EventType = iota
	// EventInitApply carries one object of the initial list.
	EventInitApply
	// EventInitDone ends the initial list.
	EventInitDone
	// EventApply carries an added or modified object.
	EventApply
	// EventDelete carries a deleted object.
	EventDelete
)

func (t EventType) String() string {
	switch t {
	case EventInit:
		return "init"
	case EventInitApply:
		return "init_apply"
	case EventInitDone:
		return "init_done"
	case EventApply:
		return "apply"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one step of the stream.
type Event[T any] struct {
	Type   EventType
	Object T
}

// Source lists and watches one kind of cluster resource.
type Source[T any] struct {
	// List returns the current objects and the resource version of the list.
	List func(ctx context.Context, opts metav1.ListOptions) ([]T, string, error)
	// Watch opens a watch starting at opts.ResourceVersion.
	Watch func(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error)
	// Convert decodes an object received on the watch.
	Convert func(obj runtime.Object) (T, error)
}

// watchFunc adapts a context-aware watch to cache.Watcher for RetryWatcher.
type watchFunc func(opts metav1.ListOptions) (watch.Interface, error)

func (f watchFunc) Watch(opts metav1.ListOptions) (watch.Interface, error) {
	return f(opts)
}

// openWatch starts watching from resourceVersion. Reconnects after transient
// failures are handled by RetryWatcher; it cannot start from an empty or
// zero version, in which case a single plain watch is opened.
func (s Source[T]) openWatch(ctx context.Context, resourceVersion string) (watch.Interface, error) {
	if resourceVersion == "" || resourceVersion == "0" {
		return s.Watch(ctx, metav1.ListOptions{ResourceVersion: resourceVersion})
	}
	return watchtools.NewRetryWatcher(resourceVersion, watchFunc(func(opts metav1.ListOptions) (watch.Interface, error) {
		return s.Watch(ctx, opts)
	}))
}
