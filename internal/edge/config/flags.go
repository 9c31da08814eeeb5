package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/clipsync/internal/flagx"
	"github.com/dmitrijs2005/clipsync/internal/transfer"
)

// parseFlags overlays command-line flags.
//
//	-mode string  relay, s3 or postgres
//	-r string     relay gRPC address
//	-n string     node id
//	-s string     JWT HMAC secret used to sign this node's token
//	-k string     ready-made node token
//	-o string     comma-separated owners hosted here
//	-f string     clipboard directory
//	-m string     debug HTTP bind address, "" disables
//	-l string     log level
//	-d string     PostgreSQL DSN
//	-u, -p, -b, -g, -e  S3 user, password, bucket, region, endpoint
//
// plus the long transfer flags listed in transfer.FlagNames.
func parseFlags(config *Config, args []string) error {
	names := []string{"-mode", "-r", "-n", "-s", "-k", "-o", "-f", "-m", "-l", "-d", "-u", "-p", "-b", "-g", "-e"}
	args = flagx.FilterArgs(args, append(names, transfer.FlagNames...))

	fs := flag.NewFlagSet("edge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	mode := fs.String("mode", string(config.Mode), "relay, s3 or postgres")
	fs.StringVar(&config.RelayAddr, "r", config.RelayAddr, "relay address")
	fs.StringVar(&config.NodeID, "n", config.NodeID, "node id")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key for the node token")
	fs.StringVar(&config.NodeToken, "k", config.NodeToken, "node token")
	fs.Func("o", "comma-separated owners", func(s string) error {
		config.Owners = flagx.SplitList(s)
		return nil
	})
	fs.StringVar(&config.DataDir, "f", config.DataDir, "clipboard directory")
	fs.StringVar(&config.DebugAddr, "m", config.DebugAddr, "debug API address")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.S3.AccessKey, "u", config.S3.AccessKey, "S3 root user")
	fs.StringVar(&config.S3.SecretKey, "p", config.S3.SecretKey, "S3 root password")
	fs.StringVar(&config.S3.Bucket, "b", config.S3.Bucket, "S3 bucket")
	fs.StringVar(&config.S3.Region, "g", config.S3.Region, "S3 region")
	fs.StringVar(&config.S3.Endpoint, "e", config.S3.Endpoint, "S3 base endpoint")
	finish := transfer.BindFlags(fs, &config.Transfer)

	if err := fs.Parse(args); err != nil {
		return err
	}
	m, err := ParseMode(*mode)
	if err != nil {
		return err
	}
	config.Mode = m
	return finish()
}
