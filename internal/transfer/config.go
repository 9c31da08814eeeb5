package transfer

import (
	"flag"

	"github.com/dmitrijs2005/clipsync/internal/timex"
)

// FlagNames lists the command-line flags BindFlags registers, for
// flagx.FilterArgs.
var FlagNames = []string{
	"-chunk-size", "-session-timeout", "-max-blob-size", "-max-chunks", "-chunk-send-delay",
	"-change-detector-interval", "-sweep-interval", "-shared-secret", "-hash-mismatch",
}

// BindFlags registers the transfer options on fs with o's values as defaults.
// The returned func finishes o once fs has been parsed and reports values
// that do not validate.
func BindFlags(fs *flag.FlagSet, o *Options) func() error {
	fs.IntVar(&o.ChunkSize, "chunk-size", o.ChunkSize, "chunk payload size in bytes, identical on every node")
	fs.DurationVar(&o.SessionTimeout, "session-timeout", o.SessionTimeout, "drop sessions idle for longer than this")
	fs.IntVar(&o.MaxBlobSize, "max-blob-size", o.MaxBlobSize, "largest blob in bytes")
	fs.IntVar(&o.MaxChunks, "max-chunks", o.MaxChunks, "largest declared chunk count, 0 derives it from max-blob-size")
	fs.DurationVar(&o.ChunkSendDelay, "chunk-send-delay", o.ChunkSendDelay, "pause between chunks")
	fs.DurationVar(&o.DetectorInterval, "change-detector-interval", o.DetectorInterval, "change detector period")
	fs.DurationVar(&o.SweepInterval, "sweep-interval", o.SweepInterval, "session expiry sweep period")
	fs.StringVar(&o.SharedSecret, "shared-secret", o.SharedSecret, "message encryption secret, empty disables encryption")
	policy := fs.String("hash-mismatch", string(o.HashPolicy), "warn or reject")

	return func() error {
		p, err := ParseHashPolicy(*policy)
		if err != nil {
			return err
		}
		o.HashPolicy = p
		return nil
	}
}

// JSONOptions is the JSON form of Options. Zero values leave the target
// untouched.
type JSONOptions struct {
	ChunkSize        int            `json:"chunk_size"`
	SessionTimeout   timex.Duration `json:"session_timeout"`
	MaxBlobSize      int            `json:"max_blob_size"`
	MaxChunks        int            `json:"max_chunks"`
	ChunkSendDelay   timex.Duration `json:"chunk_send_delay"`
	DetectorInterval timex.Duration `json:"change_detector_interval"`
	SweepInterval    timex.Duration `json:"sweep_interval"`
	SharedSecret     string         `json:"shared_secret"`
	HashMismatch     string         `json:"hash_mismatch"`
}

func (j JSONOptions) ApplyTo(o *Options) error {
	if j.ChunkSize != 0 {
		o.ChunkSize = j.ChunkSize
	}
	if j.SessionTimeout.Duration != 0 {
		o.SessionTimeout = j.SessionTimeout.Duration
	}
	if j.MaxBlobSize != 0 {
		o.MaxBlobSize = j.MaxBlobSize
	}
	if j.MaxChunks != 0 {
		o.MaxChunks = j.MaxChunks
	}
	if j.ChunkSendDelay.Duration != 0 {
		o.ChunkSendDelay = j.ChunkSendDelay.Duration
	}
	if j.DetectorInterval.Duration != 0 {
		o.DetectorInterval = j.DetectorInterval.Duration
	}
	if j.SweepInterval.Duration != 0 {
		o.SweepInterval = j.SweepInterval.Duration
	}
	if j.SharedSecret != "" {
		o.SharedSecret = j.SharedSecret
	}
	if j.HashMismatch != "" {
		p, err := ParseHashPolicy(j.HashMismatch)
		if err != nil {
			return err
		}
		o.HashPolicy = p
	}
	return nil
}
