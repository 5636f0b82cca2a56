package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	v, err := NewViper(newFlagSet(t, args...))
	require.NoError(t, err)
	return Load(v)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	assert.Equal(t, ":8080", cfg.ListenAddress)
	assert.Equal(t, "devbox-", cfg.HostPrefix)
	assert.Equal(t, 9757, cfg.AgentPort)
	assert.Equal(t, "app.kubernetes.io/part-of=devbox", cfg.PodLabelSelector)
	assert.Equal(t, 5*time.Second, cfg.WatcherRestartDelay)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTPGATE_LISTEN_ADDRESS", "0.0.0.0:80")
	t.Setenv("HTTPGATE_AGENT_PORT", "2222")
	t.Setenv("HTTPGATE_WATCHER_RESTART_DELAY", "1s")
	t.Setenv("HTTPGATE_LOG_FORMAT", "json")
	t.Setenv("HTTPGATE_ACCESS_LOG", "false")

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:80", cfg.ListenAddress)
	assert.Equal(t, 2222, cfg.AgentPort)
	assert.Equal(t, time.Second, cfg.WatcherRestartDelay)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.AccessLog)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("HTTPGATE_HOST_PREFIX", "env-")

	cfg, err := load(t, "--host-prefix=flag-", "--agent-keyword=ssh")
	require.NoError(t, err)
	assert.Equal(t, "flag-", cfg.HostPrefix)
	assert.Equal(t, "ssh", cfg.AgentKeyword)
}

func TestLoadWithoutFlags(t *testing.T) {
	t.Setenv("HTTPGATE_ERROR_TAG", "edge")

	v, err := NewViper(nil)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "edge", cfg.ErrorTag)
	assert.Equal(t, ":9090", cfg.AdminAddress)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad listen address", func(c *Config) { c.ListenAddress = "8080" }, "listen-address"},
		{"bad admin address", func(c *Config) { c.AdminAddress = "localhost" }, "admin-address"},
		{"empty prefix", func(c *Config) { c.HostPrefix = "" }, "host-prefix"},
		{"empty keyword", func(c *Config) { c.AgentKeyword = "" }, "agent-keyword"},
		{"agent port zero", func(c *Config) { c.AgentPort = 0 }, "agent-port"},
		{"agent port too large", func(c *Config) { c.AgentPort = 65536 }, "agent-port"},
		{"invalid selector", func(c *Config) { c.PodLabelSelector = "a in (" }, "pod-label-selector"},
		{"empty devbox kind", func(c *Config) { c.DevboxKind = "" }, "devbox"},
		{"zero restart delay", func(c *Config) { c.WatcherRestartDelay = 0 }, "watcher-restart-delay"},
		{"zero dial timeout", func(c *Config) { c.UpstreamDialTimeout = 0 }, "upstream-dial-timeout"},
		{"negative shutdown timeout", func(c *Config) { c.ShutdownTimeout = -time.Second }, "shutdown-timeout"},
		{"unknown log level", func(c *Config) { c.LogLevel = "chatty" }, "log-level"},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }, "log-format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("HTTPGATE_AGENT_PORT", "70000")

	_, err := load(t)
	assert.ErrorContains(t, err, "agent-port")
}

func TestDerivedConfigs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AgentPort = 2222
	cfg.ErrorTag = "edge"

	gw := cfg.GatewayConfig()
	assert.Equal(t, uint16(2222), gw.Host.AgentPort)
	assert.Equal(t, "devbox-", gw.Host.Prefix)
	assert.Equal(t, "edge", gw.ErrorTag)
	assert.Equal(t, cfg.UpstreamDialTimeout, gw.DialTimeout)

	gvr := cfg.DevboxGVR()
	assert.Equal(t, "devbox.sealos.io", gvr.Group)
	assert.Equal(t, "v1alpha2", gvr.Version)
	assert.Equal(t, "devboxes", gvr.Resource)
}
