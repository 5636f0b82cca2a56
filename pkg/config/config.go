// Package config loads httpgate settings from flags and HTTPGATE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/labring/httpgate/pkg/gateway"
	"github.com/labring/httpgate/pkg/logging"
	"github.com/labring/httpgate/pkg/tenancy"
	"github.com/labring/httpgate/pkg/watcher"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "HTTPGATE"

// Keys shared by flags, environment variables and viper.
const (
	KeyListenAddress       = "listen-address"
	KeyAdminAddress        = "admin-address"
	KeyHostPrefix          = "host-prefix"
	KeyAgentKeyword        = "agent-keyword"
	KeyAgentPort           = "agent-port"
	KeyErrorTag            = "error-tag"
	KeyPodLabelSelector    = "pod-label-selector"
	KeyDevboxGroup         = "devbox-group"
	KeyDevboxVersion       = "devbox-version"
	KeyDevboxResource      = "devbox-resource"
	KeyDevboxKind          = "devbox-kind"
	KeyWatcherRestartDelay = "watcher-restart-delay"
	KeyUpstreamDialTimeout = "upstream-dial-timeout"
	KeyReadHeaderTimeout   = "read-header-timeout"
	KeyShutdownTimeout     = "shutdown-timeout"
	KeyLogLevel            = "log-level"
	KeyLogFormat           = "log-format"
	KeyAccessLog           = "access-log"
)

// Config holds all runtime settings.
type Config struct {
	ListenAddress string
	AdminAddress  string

	HostPrefix   string
	AgentKeyword string
	AgentPort    int
	ErrorTag     string

	PodLabelSelector string
	DevboxGroup      string
	DevboxVersion    string
	DevboxResource   string
	DevboxKind       string

	WatcherRestartDelay time.Duration
	UpstreamDialTimeout time.Duration
	ReadHeaderTimeout   time.Duration
	ShutdownTimeout     time.Duration

	LogLevel  string
	LogFormat string
	AccessLog bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddress:       ":8080",
		AdminAddress:        ":9090",
		HostPrefix:          tenancy.DefaultHostPrefix,
		AgentKeyword:        tenancy.DefaultAgentKeyword,
		AgentPort:           int(tenancy.DefaultAgentPort),
		ErrorTag:            gateway.DefaultErrorTag,
		PodLabelSelector:    watcher.DefaultPodLabelSelector,
		DevboxGroup:         watcher.DefaultDevboxGVR.Group,
		DevboxVersion:       watcher.DefaultDevboxGVR.Version,
		DevboxResource:      watcher.DefaultDevboxGVR.Resource,
		DevboxKind:          watcher.DefaultOwnerKind,
		WatcherRestartDelay: watcher.DefaultRestartDelay,
		UpstreamDialTimeout: gateway.DefaultDialTimeout,
		ReadHeaderTimeout:   30 * time.Second,
		ShutdownTimeout:     30 * time.Second,
		LogLevel:            logging.LevelInfo,
		LogFormat:           logging.FormatText,
		AccessLog:           true,
	}
}

// BindFlags registers every setting on fs with its default value.
func BindFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()

	fs.String(KeyListenAddress, d.ListenAddress, "Address the proxy listens on (HTTP/1.1 and h2c)")
	fs.String(KeyAdminAddress, d.AdminAddress, "Address of the health and metrics listener")
	fs.String(KeyHostPrefix, d.HostPrefix, "Literal prefix of routed host names")
	fs.String(KeyAgentKeyword, d.AgentKeyword, "Host port token that selects the agent port")
	fs.Int(KeyAgentPort, d.AgentPort, "Backend port used for the agent keyword")
	fs.String(KeyErrorTag, d.ErrorTag, "Prefix of proxy failure response bodies")
	fs.String(KeyPodLabelSelector, d.PodLabelSelector, "Label selector of watched Devbox pods")
	fs.String(KeyDevboxGroup, d.DevboxGroup, "API group of the Devbox resource")
	fs.String(KeyDevboxVersion, d.DevboxVersion, "API version of the Devbox resource")
	fs.String(KeyDevboxResource, d.DevboxResource, "Plural resource name of the Devbox resource")
	fs.String(KeyDevboxKind, d.DevboxKind, "Owner reference kind linking pods to Devboxes")
	fs.Duration(KeyWatcherRestartDelay, d.WatcherRestartDelay, "Delay before restarting a failed watcher")
	fs.Duration(KeyUpstreamDialTimeout, d.UpstreamDialTimeout, "Timeout for connecting to a backend pod")
	fs.Duration(KeyReadHeaderTimeout, d.ReadHeaderTimeout, "Timeout for reading inbound request headers")
	fs.Duration(KeyShutdownTimeout, d.ShutdownTimeout, "Grace period for draining connections on shutdown")
	fs.String(KeyLogLevel, d.LogLevel, "Log level: debug, info, warn, error")
	fs.String(KeyLogFormat, d.LogFormat, "Log format: text or json")
	fs.Bool(KeyAccessLog, d.AccessLog, "Log one line per proxied request")
}

// NewViper returns a viper instance reading fs and HTTPGATE_* variables.
// Flags set explicitly take precedence over the environment.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}
	return v, nil
}

// Load reads a Config from v and validates it. Keys not known to v keep
// their defaults.
func Load(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}

	str(KeyListenAddress, &cfg.ListenAddress)
	str(KeyAdminAddress, &cfg.AdminAddress)
	str(KeyHostPrefix, &cfg.HostPrefix)
	str(KeyAgentKeyword, &cfg.AgentKeyword)
	if v.IsSet(KeyAgentPort) {
		cfg.AgentPort = v.GetInt(KeyAgentPort)
	}
	str(KeyErrorTag, &cfg.ErrorTag)
	str(KeyPodLabelSelector, &cfg.PodLabelSelector)
	str(KeyDevboxGroup, &cfg.DevboxGroup)
	str(KeyDevboxVersion, &cfg.DevboxVersion)
	str(KeyDevboxResource, &cfg.DevboxResource)
	str(KeyDevboxKind, &cfg.DevboxKind)
	dur(KeyWatcherRestartDelay, &cfg.WatcherRestartDelay)
	dur(KeyUpstreamDialTimeout, &cfg.UpstreamDialTimeout)
	dur(KeyReadHeaderTimeout, &cfg.ReadHeaderTimeout)
	dur(KeyShutdownTimeout, &cfg.ShutdownTimeout)
	str(KeyLogLevel, &cfg.LogLevel)
	str(KeyLogFormat, &cfg.LogFormat)
	if v.IsSet(KeyAccessLog) {
		cfg.AccessLog = v.GetBool(KeyAccessLog)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error

	for key, addr := range map[string]string{KeyListenAddress: c.ListenAddress, KeyAdminAddress: c.AdminAddress} {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", key, addr, err))
		}
	}
	if c.HostPrefix == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", KeyHostPrefix))
	}
	if c.AgentKeyword == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", KeyAgentKeyword))
	}
	if c.AgentPort < 1 || c.AgentPort > 65535 {
		errs = append(errs, fmt.Errorf("%s %d out of range 1-65535", KeyAgentPort, c.AgentPort))
	}
	if _, err := labels.Parse(c.PodLabelSelector); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyPodLabelSelector, err))
	}
	if c.DevboxVersion == "" || c.DevboxResource == "" || c.DevboxKind == "" {
		errs = append(errs, errors.New("devbox version, resource and kind must not be empty"))
	}
	if c.WatcherRestartDelay <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyWatcherRestartDelay))
	}
	if c.UpstreamDialTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyUpstreamDialTimeout))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyShutdownTimeout))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyLogLevel, err))
	}
	if c.LogFormat != logging.FormatText && c.LogFormat != logging.FormatJSON {
		errs = append(errs, fmt.Errorf("%s %q: must be text or json", KeyLogFormat, c.LogFormat))
	}

	return errors.Join(errs...)
}

// HostConfig returns the host parsing settings.
func (c Config) HostConfig() tenancy.HostConfig {
	return tenancy.HostConfig{
		Prefix:       c.HostPrefix,
		AgentKeyword: c.AgentKeyword,
		AgentPort:    uint16(c.AgentPort),
	}
}

// GatewayConfig returns the proxy settings.
func (c Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		Host:        c.HostConfig(),
		ErrorTag:    c.ErrorTag,
		DialTimeout: c.UpstreamDialTimeout,
	}
}

// DevboxGVR returns the watched Devbox resource.
func (c Config) DevboxGVR() schema.GroupVersionResource {
	return schema.GroupVersionResource{
		Group:    c.DevboxGroup,
		Version:  c.DevboxVersion,
		Resource: c.DevboxResource,
	}
}
