// Package registry holds the routing state shared between the proxy and the
// cluster watchers. It keeps two independent indices:
//
//   - tenant id -> TenantInfo, owned by the Devbox watcher
//   - "namespace/devboxName" -> pod IP, owned by the Pod watcher
//
// The indices have no referential integrity between them: a tenant may be
// registered before its pod has an address, and an address may outlive the
// tenant entry.
package registry

import (
	"log/slog"
)

// TenantInfo identifies the Devbox a tenant id maps to.
type TenantInfo struct {
	Namespace  string
	DevboxName string
}

// Registry is safe for concurrent use by any number of readers and writers.
// Each index is sharded, so mutations of one key do not stall reads or writes
// of keys living in other shards.
type Registry struct {
	tenants *shardedMap[TenantInfo]
	podIPs  *shardedMap[string]
	logger  *slog.Logger
}

// New creates an empty Registry. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tenants: newShardedMap[TenantInfo](),
		podIPs:  newShardedMap[string](),
		logger:  logger,
	}
}

// RegisterTenant inserts or overwrites the entry for id and reports whether
// the id was previously absent.
func (r *Registry) RegisterTenant(id, namespace, devboxName string) bool {
	_, existed := r.tenants.swap(id, TenantInfo{Namespace: namespace, DevboxName: devboxName})
	tenantEntries.Set(float64(r.tenants.len()))
	return !existed
}

// UnregisterTenant removes id and reports whether it existed.
func (r *Registry) UnregisterTenant(id string) bool {
	_, existed := r.tenants.remove(id)
	tenantEntries.Set(float64(r.tenants.len()))
	return existed
}

// ClearTenants drops every tenant entry. The pod address index is untouched.
func (r *Registry) ClearTenants() {
	r.tenants.clear()
	tenantEntries.Set(float64(r.tenants.len()))
	r.logger.Debug("tenant index cleared")
}

// GetTenant returns a copy of the entry for id.
func (r *Registry) GetTenant(id string) (TenantInfo, bool) {
	return r.tenants.get(id)
}

// TenantCount returns the number of registered tenants.
func (r *Registry) TenantCount() int {
	return r.tenants.len()
}

// UpdatePodAddress records the pod IP of a Devbox. An empty address is
// treated as ClearPodAddress. A change is only reported when the stored value
// differs from the previous one.
func (r *Registry) UpdatePodAddress(namespace, devboxName, address string) {
	if address == "" {
		r.ClearPodAddress(namespace, devboxName)
		return
	}

	prev, existed := r.podIPs.swap(PodKey(namespace, devboxName), address)
	podAddressEntries.Set(float64(r.podIPs.len()))
	if existed && prev == address {
		return
	}

	podAddressChanges.WithLabelValues("set").Inc()
	r.logger.Info("pod address updated",
		"namespace", namespace,
		"devboxName", devboxName,
		"podIP", address,
	)
}

// ClearPodAddress removes the pod IP of a Devbox, if any.
func (r *Registry) ClearPodAddress(namespace, devboxName string) {
	if _, existed := r.podIPs.remove(PodKey(namespace, devboxName)); !existed {
		return
	}
	podAddressEntries.Set(float64(r.podIPs.len()))
	podAddressChanges.WithLabelValues("clear").Inc()
	r.logger.Info("pod address cleared",
		"namespace", namespace,
		"devboxName", devboxName,
	)
}

// ClearPodAddresses drops every pod address. The tenant index is untouched.
func (r *Registry) ClearPodAddresses() {
	r.podIPs.clear()
	podAddressEntries.Set(float64(r.podIPs.len()))
	r.logger.Debug("pod address index cleared")
}

// GetPodAddress returns the pod IP recorded for a Devbox.
func (r *Registry) GetPodAddress(namespace, devboxName string) (string, bool) {
	return r.podIPs.get(PodKey(namespace, devboxName))
}

// PodAddressCount returns the number of recorded pod addresses.
func (r *Registry) PodAddressCount() int {
	return r.podIPs.len()
}

// PodKey builds the pod address index key for a Devbox.
func PodKey(namespace, devboxName string) string {
	return namespace + "/" + devboxName
}
