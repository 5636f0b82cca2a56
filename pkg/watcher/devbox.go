package watcher

import (
	"context"
	"fmt"
	"log/slog"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"

	"github.com/labring/httpgate/pkg/registry"
)

// DevboxWatcherName labels the Devbox watcher in logs, metrics and readiness.
const DevboxWatcherName = "devbox"

// DefaultDevboxGVR is the Devbox custom resource.
var DefaultDevboxGVR = schema.GroupVersionResource{
	Group:    "devbox.sealos.io",
	Version:  "v1alpha2",
	Resource: "devboxes",
}

// DevboxSource lists and watches Devbox resources across all namespaces.
func DevboxSource(client dynamic.Interface, gvr schema.GroupVersionResource) Source[*unstructured.Unstructured] {
	resource := client.Resource(gvr)
	return Source[*unstructured.Unstructured]{
		List: func(ctx context.Context, opts metav1.ListOptions) ([]*unstructured.Unstructured, string, error) {
			list, err := resource.List(ctx, opts)
			if err != nil {
				return nil, "", err
			}
			items := make([]*unstructured.Unstructured, 0, len(list.Items))
			for i := range list.Items {
				items = append(items, &list.Items[i])
			}
			return items, list.GetResourceVersion(), nil
		},
		Watch: func(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error) {
			return resource.Watch(ctx, opts)
		},
		Convert: func(obj runtime.Object) (*unstructured.Unstructured, error) {
			u, ok := obj.(*unstructured.Unstructured)
			if !ok {
				return nil, fmt.Errorf("expected *unstructured.Unstructured, got %T", obj)
			}
			return u, nil
		},
	}
}

// DevboxHandler maintains the tenant index from Devbox resources.
type DevboxHandler struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewDevboxHandler creates a DevboxHandler writing to reg.
func NewDevboxHandler(reg *registry.Registry, logger *slog.Logger) *DevboxHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DevboxHandler{registry: reg, logger: logger}
}

// NewDevboxWatcher wires a Devbox source to a handler writing to reg.
func NewDevboxWatcher(client dynamic.Interface, gvr schema.GroupVersionResource, reg *registry.Registry, logger *slog.Logger) *Watcher[*unstructured.Unstructured] {
	return New(DevboxWatcherName, DevboxSource(client, gvr), NewDevboxHandler(reg, logger), logger)
}

func (h *DevboxHandler) Init() {
	h.logger.Info("resetting tenant index", "tenants", h.registry.TenantCount())
	h.registry.ClearTenants()
}

func (h *DevboxHandler) Apply(obj *unstructured.Unstructured) {
	uniqueID := uniqueIDOf(obj)
	namespace := obj.GetNamespace()
	name := obj.GetName()

	if uniqueID == "" || namespace == "" || name == "" {
		h.logger.Warn("skipping devbox with incomplete identity",
			"namespace", namespace,
			"name", name,
			"uniqueID", uniqueID,
		)
		return
	}

	if h.registry.RegisterTenant(uniqueID, namespace, name) {
		h.logger.Debug("tenant registered", "uniqueID", uniqueID, "namespace", namespace, "name", name)
	}
}

func (h *DevboxHandler) Delete(obj *unstructured.Unstructured) {
	uniqueID := uniqueIDOf(obj)
	if uniqueID == "" {
		h.logger.Warn("deleted devbox has no uniqueID", "namespace", obj.GetNamespace(), "name", obj.GetName())
		return
	}
	if h.registry.UnregisterTenant(uniqueID) {
		h.logger.Debug("tenant unregistered", "uniqueID", uniqueID)
	}
}

func (h *DevboxHandler) InitDone() {
	h.logger.Info("tenant index synced", "tenants", h.registry.TenantCount())
}

// uniqueIDOf returns status.network.uniqueID, or "" if it is missing or not
// a string.
func uniqueIDOf(obj *unstructured.Unstructured) string {
	if obj == nil || obj.Object == nil {
		return ""
	}
	id, found, err := unstructured.NestedString(obj.Object, "status", "network", "uniqueID")
	if err != nil || !found {
		return ""
	}
	return id
}
