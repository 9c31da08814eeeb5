// Package relay defines how edge nodes converge on an owner's canonical blob.
//
// Two backends satisfy Coordinator: the broadcast hub, which keeps blobs in
// memory and pushes HashCheck to the hosting node, and the shared stores
// (S3, PostgreSQL), which persist blobs and are polled by edge nodes.
package relay

import (
	"context"
	"time"
)

// Coordinator answers "is there a different version, and if so, fetch it".
// A missing blob is reported with ok == false, never with an error.
type Coordinator interface {
	// Push stores data as the canonical blob for owner.
	Push(ctx context.Context, owner string, data []byte, hash string) error
	// PullHash returns the digest of the canonical blob.
	PullHash(ctx context.Context, owner string) (hash string, ok bool, err error)
	// Pull returns the canonical blob.
	Pull(ctx context.Context, owner string) (data []byte, ok bool, err error)
}

// OwnerStatus is what a backend can tell about one owner for inspection.
type OwnerStatus struct {
	Owner      string    `json:"owner"`
	State      string    `json:"state,omitempty"`
	Node       string    `json:"node,omitempty"`
	Hash       string    `json:"hash,omitempty"`
	SizeBytes  int       `json:"size_bytes"`
	CapturedAt time.Time `json:"captured_at,omitzero"`
}
