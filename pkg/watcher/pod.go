package watcher

import (
	"context"
	"fmt"
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/labring/httpgate/pkg/registry"
)

const (
	// PodWatcherName labels the Pod watcher in logs, metrics and readiness.
	PodWatcherName = "pod"

	// DefaultPodLabelSelector selects the pods backing Devboxes.
	DefaultPodLabelSelector = "app.kubernetes.io/part-of=devbox"

	// DefaultOwnerKind is the owner reference kind linking a pod to its Devbox.
	DefaultOwnerKind = "Devbox"
)

// PodSource lists and watches pods matching labelSelector in all namespaces.
func PodSource(client kubernetes.Interface, labelSelector string) Source[*corev1.Pod] {
	pods := client.CoreV1().Pods(metav1.NamespaceAll)
	return Source[*corev1.Pod]{
		List: func(ctx context.Context, opts metav1.ListOptions) ([]*corev1.Pod, string, error) {
			opts.LabelSelector = labelSelector
			list, err := pods.List(ctx, opts)
			if err != nil {
				return nil, "", err
			}
			items := make([]*corev1.Pod, 0, len(list.Items))
			for i := range list.Items {
				items = append(items, &list.Items[i])
			}
			return items, list.ResourceVersion, nil
		},
		Watch: func(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error) {
			opts.LabelSelector = labelSelector
			return pods.Watch(ctx, opts)
		},
		Convert: func(obj runtime.Object) (*corev1.Pod, error) {
			pod, ok := obj.(*corev1.Pod)
			if !ok {
				return nil, fmt.Errorf("expected *v1.Pod, got %T", obj)
			}
			return pod, nil
		},
	}
}

// PodHandler maintains the pod address index from Devbox pods.
type PodHandler struct {
	registry  *registry.Registry
	ownerKind string
	logger    *slog.Logger
}

// NewPodHandler creates a PodHandler. Pods are linked to the Devbox named by
// their owner reference of kind ownerKind.
func NewPodHandler(reg *registry.Registry, ownerKind string, logger *slog.Logger) *PodHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if ownerKind == "" {
		ownerKind = DefaultOwnerKind
	}
	return &PodHandler{registry: reg, ownerKind: ownerKind, logger: logger}
}

// NewPodWatcher wires a pod source to a handler writing to reg.
func NewPodWatcher(client kubernetes.Interface, labelSelector, ownerKind string, reg *registry.Registry, logger *slog.Logger) *Watcher[*corev1.Pod] {
	return New(PodWatcherName, PodSource(client, labelSelector), NewPodHandler(reg, ownerKind, logger), logger)
}

func (h *PodHandler) Init() {
	h.logger.Info("resetting pod address index", "podAddresses", h.registry.PodAddressCount())
	h.registry.ClearPodAddresses()
}

func (h *PodHandler) Apply(pod *corev1.Pod) {
	devboxName, ok := h.ownerDevbox(pod)
	if !ok {
		h.logger.Debug("skipping pod without devbox owner", "namespace", pod.Namespace, "pod", pod.Name)
		return
	}
	// An empty IP clears the entry.
	h.registry.UpdatePodAddress(pod.Namespace, devboxName, pod.Status.PodIP)
}

func (h *PodHandler) Delete(pod *corev1.Pod) {
	devboxName, ok := h.ownerDevbox(pod)
	if !ok {
		return
	}
	h.registry.ClearPodAddress(pod.Namespace, devboxName)
}

func (h *PodHandler) InitDone() {
	h.logger.Info("pod address index synced", "podAddresses", h.registry.PodAddressCount())
}

func (h *PodHandler) ownerDevbox(pod *corev1.Pod) (string, bool) {
	for _, ref := range pod.OwnerReferences {
		if ref.Kind == h.ownerKind && ref.Name != "" {
			return ref.Name, true
		}
	}
	return "", false
}
