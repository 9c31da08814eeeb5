package transfer

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()

	assert.Equal(t, 30000, o.ChunkSize)
	assert.Equal(t, 30*time.Second, o.SessionTimeout)
	assert.Equal(t, 50*1024*1024, o.MaxBlobSize)
	assert.Equal(t, 5*time.Millisecond, o.ChunkSendDelay)
	assert.Equal(t, time.Second, o.DetectorInterval)
	assert.Equal(t, "", o.SharedSecret)
	assert.Equal(t, HashPolicyWarn, o.HashPolicy)
	require.NoError(t, o.Validate())
}

func TestOptions_Limits(t *testing.T) {
	o := DefaultOptions()
	l := o.Limits()
	assert.Equal(t, 30000, l.ChunkSize)
	assert.Equal(t, 1024, l.Slack)
	assert.Equal(t, 1748, l.MaxChunks)
	assert.Equal(t, o.MaxBlobSize, l.MaxBlobSize)

	o.MaxChunks = 10
	assert.Equal(t, 10, o.Limits().MaxChunks)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero chunk size", func(o *Options) { o.ChunkSize = 0 }},
		{"zero blob size", func(o *Options) { o.MaxBlobSize = 0 }},
		{"zero timeout", func(o *Options) { o.SessionTimeout = 0 }},
		{"zero detector interval", func(o *Options) { o.DetectorInterval = 0 }},
		{"negative delay", func(o *Options) { o.ChunkSendDelay = -time.Millisecond }},
		{"bad policy", func(o *Options) { o.HashPolicy = "strict" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			assert.ErrorIs(t, o.Validate(), common.ErrValidation)
		})
	}
}

func TestParseHashPolicy(t *testing.T) {
	p, err := ParseHashPolicy(" Reject ")
	require.NoError(t, err)
	assert.Equal(t, HashPolicyReject, p)

	p, err = ParseHashPolicy("")
	require.NoError(t, err)
	assert.Equal(t, HashPolicyWarn, p)

	_, err = ParseHashPolicy("nope")
	assert.ErrorIs(t, err, common.ErrValidation)
}
