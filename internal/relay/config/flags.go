package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/clipsync/internal/flagx"
	"github.com/dmitrijs2005/clipsync/internal/transfer"
)

// parseFlags overlays command-line flags.
//
//	-a string   gRPC bind address (e.g. ":50051")
//	-m string   debug HTTP bind address, "" disables
//	-s string   JWT HMAC secret for node tokens
//	-l string   log level
//
// plus the long transfer flags listed in transfer.FlagNames.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, append([]string{"-a", "-m", "-s", "-l"}, transfer.FlagNames...))

	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run the relay")
	fs.StringVar(&config.DebugAddr, "m", config.DebugAddr, "debug API address")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key for node tokens")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	finish := transfer.BindFlags(fs, &config.Transfer)

	if err := fs.Parse(args); err != nil {
		return err
	}
	return finish()
}
