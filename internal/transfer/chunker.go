package transfer

import "github.com/dmitrijs2005/clipsync/internal/protocol"

// ChunkCount returns how many chunks of chunkSize are needed for total bytes.
func ChunkCount(total, chunkSize int) int {
	return protocol.ChunkCount(total, chunkSize)
}

// Split cuts data into chunkSize pieces; the last one may be shorter. The
// pieces alias data.
func Split(data []byte, chunkSize int) [][]byte {
	n := ChunkCount(len(data), chunkSize)
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		end := min((i+1)*chunkSize, len(data))
		out = append(out, data[i*chunkSize:end])
	}
	return out
}
