// Package types defines the records kept by the credman package.
package types

import "time"

// Well-known secret names.
const (
	// ReplyServerSecret authenticates network operations against the
	// reply server.
	ReplyServerSecret = "reply-server"
	// RPCToken guards the daemon's HTTP JSON-RPC endpoints.
	RPCToken = "rpc-token"
)

// Secret is a named credential. Value is encrypted when persisted by
// the SecretManager.
type Secret struct {
	Name      string
	Value     string
	UpdatedAt time.Time
}
