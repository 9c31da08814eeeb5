// Package config handles configuration for the relay, including defaults,
// JSON overlay and command-line flags.
package config

import "github.com/dmitrijs2005/clipsync/internal/transfer"

// Config holds runtime settings for the relay.
//
// Fields:
//   - EndpointAddrGRPC: bind address for the node-facing gRPC endpoint.
//   - DebugAddr: bind address for health, metrics and status; empty disables it.
//   - SecretKey: HMAC secret nodes' JWTs are checked with. Empty lets nodes
//     name themselves, which is only fit for a trusted network.
//   - LogLevel: debug, info, warn or error.
//   - Transfer: chunking, timing and encryption settings shared with nodes.
type Config struct {
	EndpointAddrGRPC string
	DebugAddr        string
	SecretKey        string
	LogLevel         string
	Transfer         transfer.Options
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50051"
	c.DebugAddr = ":9090"
	c.SecretKey = ""
	c.LogLevel = "info"
	c.Transfer = transfer.DefaultOptions()
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file (-c/-config) and finally from command-line flags.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Transfer.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
