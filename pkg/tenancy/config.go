// Package tenancy maps an inbound virtual host to the tenant (Devbox) it
// addresses, and classifies the protocol the request must be forwarded with.
//
// Hosts follow the form
//
//	<prefix><tenant id>-<port>.<anything>[:<listener port>]
//
// for example devbox-outdoor-before-78648-8080.devbox.example.com, where the
// port is either a decimal number or the agent keyword.
package tenancy

const (
	// DefaultHostPrefix is the literal every routed host starts with.
	DefaultHostPrefix = "devbox-"
	// DefaultAgentKeyword is the port token that selects the agent port.
	DefaultAgentKeyword = "agent"
	// DefaultAgentPort is the port the in-pod agent listens on.
	DefaultAgentPort uint16 = 9757
)

// HostConfig controls how hosts are parsed.
type HostConfig struct {
	// Prefix is stripped from the host before matching. A host without it
	// does not route anywhere.
	Prefix string

	// AgentKeyword may be used instead of a numeric port. It resolves to
	// AgentPort.
	AgentKeyword string

	// AgentPort is substituted when the port token is AgentKeyword.
	AgentPort uint16
}

// DefaultHostConfig returns the host grammar used in production.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		Prefix:       DefaultHostPrefix,
		AgentKeyword: DefaultAgentKeyword,
		AgentPort:    DefaultAgentPort,
	}
}
