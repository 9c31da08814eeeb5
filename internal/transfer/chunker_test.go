package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		chunkSize int
		want      []int
	}{
		{name: "empty", size: 0, chunkSize: 4, want: []int{}},
		{name: "smaller than one chunk", size: 3, chunkSize: 4, want: []int{3}},
		{name: "exact multiple", size: 8, chunkSize: 4, want: []int{4, 4}},
		{name: "short tail", size: 9, chunkSize: 4, want: []int{4, 4, 1}},
		{name: "default size", size: 75000, chunkSize: DefaultChunkSize, want: []int{30000, 30000, 15000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Split(make([]byte, tt.size), tt.chunkSize)
			got := make([]int, 0, len(chunks))
			for _, c := range chunks {
				got = append(got, len(c))
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), ChunkCount(tt.size, tt.chunkSize))
		})
	}
}
