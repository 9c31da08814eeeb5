package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/clipsync/internal/flagx"
	"github.com/dmitrijs2005/clipsync/internal/transfer"
)

// JsonConfig is the file form of Config. Empty fields keep the value they
// already had.
type JsonConfig struct {
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`
	DebugAddr        string `json:"debug_addr"`
	SecretKey        string `json:"secret_key"`
	LogLevel         string `json:"log_level"`
	transfer.JSONOptions
}

func parseJson(config *Config, args []string) error {
	path := flagx.ConfigFile(args)

	// nothing to load
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if c.EndpointAddrGRPC != "" {
		config.EndpointAddrGRPC = c.EndpointAddrGRPC
	}
	if c.DebugAddr != "" {
		config.DebugAddr = c.DebugAddr
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.LogLevel != "" {
		config.LogLevel = c.LogLevel
	}
	return c.JSONOptions.ApplyTo(&config.Transfer)
}
