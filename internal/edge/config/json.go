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
	Mode           string   `json:"mode"`
	RelayAddr      string   `json:"relay_addr"`
	NodeID         string   `json:"node_id"`
	SecretKey      string   `json:"secret_key"`
	NodeToken      string   `json:"node_token"`
	Owners         []string `json:"owners"`
	DataDir        string   `json:"data_dir"`
	DebugAddr      string   `json:"debug_addr"`
	LogLevel       string   `json:"log_level"`
	DatabaseDSN    string   `json:"database_dsn"`
	S3RootUser     string   `json:"s3_root_user"`
	S3RootPassword string   `json:"s3_root_password"`
	S3Bucket       string   `json:"s3_bucket"`
	S3Region       string   `json:"s3_region"`
	S3BaseEndpoint string   `json:"s3_base_endpoint"`
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

	if c.Mode != "" {
		m, err := ParseMode(c.Mode)
		if err != nil {
			return err
		}
		config.Mode = m
	}
	overlay(&config.RelayAddr, c.RelayAddr)
	overlay(&config.NodeID, c.NodeID)
	overlay(&config.SecretKey, c.SecretKey)
	overlay(&config.NodeToken, c.NodeToken)
	overlay(&config.DataDir, c.DataDir)
	overlay(&config.DebugAddr, c.DebugAddr)
	overlay(&config.LogLevel, c.LogLevel)
	overlay(&config.DatabaseDSN, c.DatabaseDSN)
	overlay(&config.S3.AccessKey, c.S3RootUser)
	overlay(&config.S3.SecretKey, c.S3RootPassword)
	overlay(&config.S3.Bucket, c.S3Bucket)
	overlay(&config.S3.Region, c.S3Region)
	overlay(&config.S3.Endpoint, c.S3BaseEndpoint)
	if len(c.Owners) > 0 {
		config.Owners = c.Owners
	}

	return c.JSONOptions.ApplyTo(&config.Transfer)
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
