// Package kube builds the cluster clients used by the watchers.
package kube

import (
	"fmt"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"
)

// UserAgent identifies httpgate to the API server.
const UserAgent = "httpgate"

// Clients bundles the dynamic client used for Devboxes and the typed
// clientset used for pods.
type Clients struct {
	Dynamic    dynamic.Interface
	Kubernetes kubernetes.Interface
}

// LoadConfig discovers the cluster configuration from --kubeconfig,
// KUBECONFIG, the in-cluster service account or ~/.kube/config, in that
// order.
func LoadConfig() (*rest.Config, error) {
	cfg, err := ctrlconfig.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("loading cluster config: %w", err)
	}
	return cfg, nil
}

// NewClients creates both clients from cfg.
func NewClients(cfg *rest.Config) (*Clients, error) {
	cfg = rest.CopyConfig(cfg)
	if cfg.UserAgent == "" {
		cfg.UserAgent = UserAgent
	}

	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating dynamic client: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating clientset: %w", err)
	}

	return &Clients{Dynamic: dyn, Kubernetes: clientset}, nil
}
