package kube

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/rest"
)

func TestNewClients(t *testing.T) {
	cfg := &rest.Config{Host: "https://127.0.0.1:6443"}

	clients, err := NewClients(cfg)
	require.NoError(t, err)
	assert.NotNil(t, clients.Dynamic)
	assert.NotNil(t, clients.Kubernetes)
	assert.Empty(t, cfg.UserAgent, "caller's config is not modified")
}

func TestNewClientsRejectsBadHost(t *testing.T) {
	_, err := NewClients(&rest.Config{Host: "http://[::1"})
	assert.Error(t, err)
}

const testKubeconfig = `apiVersion: v1
kind: Config
clusters:
- name: test
  cluster:
    server: https://10.0.0.1:6443
contexts:
- name: test
  context:
    cluster: test
    user: test
current-context: test
users:
- name: test
  user:
    token: abc
`

func TestLoadConfigFromKubeconfigEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kubeconfig")
	require.NoError(t, os.WriteFile(path, []byte(testKubeconfig), 0o600))
	t.Setenv("KUBECONFIG", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://10.0.0.1:6443", cfg.Host)
	assert.Equal(t, "abc", cfg.BearerToken)
}
