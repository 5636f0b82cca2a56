package tenancy

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoMatch is returned when a host does not follow the routed host grammar.
var ErrNoMatch = errors.New("host does not match the devbox host pattern")

// tenantIDPattern is a DNS-label-like id: lowercase alphanumeric and hyphens,
// starting and ending with an alphanumeric character. The greedy body lets
// the id itself contain hyphens; the last "-<port>." ends it.
const tenantIDPattern = `[a-z0-9](?:[-a-z0-9]*[a-z0-9])?`

// Target is the tenant and backend port a host addresses.
type Target struct {
	TenantID string
	Port     uint16
}

// HostParser extracts a Target from a virtual host. It is immutable and safe
// for concurrent use.
type HostParser struct {
	cfg     HostConfig
	pattern *regexp.Regexp
}

// NewHostParser compiles the host grammar for cfg.
func NewHostParser(cfg HostConfig) (*HostParser, error) {
	if cfg.Prefix == "" {
		return nil, fmt.Errorf("host prefix must not be empty")
	}
	if cfg.AgentKeyword == "" {
		cfg.AgentKeyword = DefaultAgentKeyword
	}
	if cfg.AgentPort == 0 {
		return nil, fmt.Errorf("agent port must not be zero")
	}

	expr := fmt.Sprintf(`^(%s)-([0-9]+|%s)\.`, tenantIDPattern, regexp.QuoteMeta(cfg.AgentKeyword))
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling host pattern: %w", err)
	}
	return &HostParser{cfg: cfg, pattern: re}, nil
}

// Parse returns the tenant id and port addressed by host. A trailing
// ":<port>" on the host is ignored. It returns ErrNoMatch when the host lacks
// the prefix, the id is malformed, or the port token is neither a valid port
// number nor the agent keyword.
func (p *HostParser) Parse(host string) (Target, error) {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	rest, ok := strings.CutPrefix(host, p.cfg.Prefix)
	if !ok {
		return Target{}, ErrNoMatch
	}

	m := p.pattern.FindStringSubmatch(rest)
	if m == nil {
		return Target{}, ErrNoMatch
	}

	port, ok := p.port(m[2])
	if !ok {
		return Target{}, ErrNoMatch
	}
	return Target{TenantID: m[1], Port: port}, nil
}

func (p *HostParser) port(token string) (uint16, bool) {
	if token == p.cfg.AgentKeyword {
		return p.cfg.AgentPort, true
	}
	n, err := strconv.ParseUint(token, 10, 16)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint16(n), true
}
