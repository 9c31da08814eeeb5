package common

// NodeTokenHeaderName is the gRPC metadata key carrying the node access token.
const NodeTokenHeaderName = "node_token"

// NodeIDHeaderName is the gRPC metadata key carrying the node id when node
// authentication is disabled.
const NodeIDHeaderName = "node_id"
