// Package protocol defines the tagged wire messages exchanged between edge
// nodes and the relay, their binary framing, and the validation applied to a
// decoded message before it may touch any session or cache state.
package protocol

import "fmt"

// Kind is the one-byte tag at the start of every frame.
type Kind uint8

const (
	KindUploadBegin     Kind = 1
	KindUploadChunk     Kind = 2
	KindDownloadRequest Kind = 3
	KindDownloadBegin   Kind = 4
	KindDownloadChunk   Kind = 5
	KindHashCheck       Kind = 6
	KindNoData          Kind = 7
	KindCancel          Kind = 8
	KindOwnerJoin       Kind = 9
	KindOwnerLeave      Kind = 10
)

var kindNames = map[Kind]string{
	KindUploadBegin:     "UploadBegin",
	KindUploadChunk:     "UploadChunk",
	KindDownloadRequest: "DownloadRequest",
	KindDownloadBegin:   "DownloadBegin",
	KindDownloadChunk:   "DownloadChunk",
	KindHashCheck:       "HashCheck",
	KindNoData:          "NoData",
	KindCancel:          "Cancel",
	KindOwnerJoin:       "OwnerJoin",
	KindOwnerLeave:      "OwnerLeave",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Known reports whether k is a tag this version understands.
func (k Kind) Known() bool {
	_, ok := kindNames[k]
	return ok
}

// IsBegin reports whether k opens a transfer session.
func (k Kind) IsBegin() bool {
	return k == KindUploadBegin || k == KindDownloadBegin
}

// IsChunk reports whether k carries a chunk payload.
func (k Kind) IsChunk() bool {
	return k == KindUploadChunk || k == KindDownloadChunk
}

// Message is the decoded form of every frame. Only the fields relevant to Kind
// are meaningful; chunk kinds carry no OwnerID on the wire.
type Message struct {
	Kind        Kind
	OwnerID     string
	SessionID   string
	Index       int
	Data        []byte
	TotalChunks int
	TotalBytes  int
	Hash        string
}

func NewUploadBegin(owner, session string, totalChunks, totalBytes int, hash string) Message {
	return Message{Kind: KindUploadBegin, OwnerID: owner, SessionID: session, TotalChunks: totalChunks, TotalBytes: totalBytes, Hash: hash}
}

func NewUploadChunk(session string, index int, data []byte) Message {
	return Message{Kind: KindUploadChunk, SessionID: session, Index: index, Data: data}
}

func NewDownloadRequest(owner string) Message {
	return Message{Kind: KindDownloadRequest, OwnerID: owner}
}

func NewDownloadBegin(owner, session string, totalChunks, totalBytes int, hash string) Message {
	return Message{Kind: KindDownloadBegin, OwnerID: owner, SessionID: session, TotalChunks: totalChunks, TotalBytes: totalBytes, Hash: hash}
}

func NewDownloadChunk(session string, index int, data []byte) Message {
	return Message{Kind: KindDownloadChunk, SessionID: session, Index: index, Data: data}
}

func NewHashCheck(owner, hash string) Message {
	return Message{Kind: KindHashCheck, OwnerID: owner, Hash: hash}
}

func NewNoData(owner string) Message {
	return Message{Kind: KindNoData, OwnerID: owner}
}

func NewCancel(owner string) Message {
	return Message{Kind: KindCancel, OwnerID: owner}
}

func NewOwnerJoin(owner string) Message {
	return Message{Kind: KindOwnerJoin, OwnerID: owner}
}

func NewOwnerLeave(owner string) Message {
	return Message{Kind: KindOwnerLeave, OwnerID: owner}
}
