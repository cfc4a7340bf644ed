package registry

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config stores environment-driven settings for the registry.
type Config struct {
	// ClientName is reported to servers during the initialize handshake.
	ClientName string `env:"MCPHOST_CLIENT_NAME" envDefault:"mcphost"`
	// ClientVersion is reported alongside ClientName.
	ClientVersion string `env:"MCPHOST_CLIENT_VERSION" envDefault:"dev"`
	// HandshakeTimeout bounds the spawn-and-initialize sequence for one server.
	HandshakeTimeout time.Duration `env:"MCPHOST_HANDSHAKE_TIMEOUT" envDefault:"30s"`
	// RequestTimeout bounds individual RPC calls to a running server.
	RequestTimeout time.Duration `env:"MCPHOST_REQUEST_TIMEOUT" envDefault:"60s"`
	// ToolTimeout bounds a single tool invocation. Tools routinely run
	// longer than plain RPCs, so it has its own knob.
	ToolTimeout time.Duration `env:"MCPHOST_TOOL_TIMEOUT" envDefault:"120s"`
}

// LoadConfig parses environment variables into Config.
func LoadConfig() (Config, error) {
	return env.ParseAs[Config]()
}

// ServerConfig describes how to launch one tool server.
type ServerConfig struct {
	// Command is the executable to spawn.
	Command string `json:"command" yaml:"command"`
	// Args are passed to the command.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`
	// Env entries are added to the inherited environment.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}
