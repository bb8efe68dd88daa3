// Package operations provides the built-in operation kinds a scenario can
// reference.
package operations

import (
	"path/filepath"
	"time"

	"github.com/energylab/metronom/pkg/logger"
	"github.com/energylab/metronom/pkg/metrolib"
)

// Operation type names.
const (
	TypeIdle          = "idle"
	TypeCryptoKeygen  = "crypto-keygen"
	TypeCryptoSign    = "crypto-sign"
	TypeCryptoVerify  = "crypto-verify"
	TypeCryptoHash    = "crypto-hash"
	TypeNetworkSingle = "network-single"
	TypeNetworkMulti  = "network-multi"
	TypeWeb           = "web"
	TypeFTPFetch      = "ftp-fetch"
	TypeSFTPFetch     = "sftp-fetch"
	TypeScript        = "script"
)

// Default reply server ports.
const (
	DefaultTCPPort          = 10042
	DefaultTCPKeepAlivePort = 10041
	DefaultUDPPort          = 10043
)

// SecretSource resolves named secrets. *credman.SecretManager satisfies it.
type SecretSource interface {
	Get(name string) (string, error)
}

// ReplyServer locates the echo service network operations talk to.
type ReplyServer struct {
	Host          string
	TCPPort       int
	KeepAlivePort int
	UDPPort       int
}

// Deps carries what the operations need from their host.
type Deps struct {
	Reply   ReplyServer
	Secrets SecretSource
	// Proxy is used by network, web and ftp operations that do not set
	// their own proxy argument.
	Proxy          string
	KnownHostsPath string
	// ScriptDir resolves relative script file arguments.
	ScriptDir string
	Clock     metrolib.Clock
	Log       logger.Logger
	// SocketTimeout bounds every network read and write.
	SocketTimeout time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Reply.Host == "" {
		d.Reply.Host = "127.0.0.1"
	}
	if d.Reply.TCPPort == 0 {
		d.Reply.TCPPort = DefaultTCPPort
	}
	if d.Reply.KeepAlivePort == 0 {
		d.Reply.KeepAlivePort = DefaultTCPKeepAlivePort
	}
	if d.Reply.UDPPort == 0 {
		d.Reply.UDPPort = DefaultUDPPort
	}
	if d.KnownHostsPath == "" {
		d.KnownHostsPath = filepath.Join(metrolib.ConfigDir, "known_hosts")
	}
	if d.ScriptDir == "" {
		d.ScriptDir = metrolib.ScenariosDir
	}
	if d.Clock == nil {
		d.Clock = metrolib.SystemClock{}
	}
	if d.Log == nil {
		d.Log = logger.NewNopLogger()
	}
	if d.SocketTimeout == 0 {
		d.SocketTimeout = 5 * time.Second
	}
	return d
}

// Register adds every built-in operation kind to reg.
func Register(reg *metrolib.Registry, deps Deps) {
	d := deps.withDefaults()
	reg.Register(TypeIdle, d.newIdle)
	reg.Register(TypeCryptoKeygen, newCryptoKeygen)
	reg.Register(TypeCryptoSign, newCryptoSign)
	reg.Register(TypeCryptoVerify, newCryptoVerify)
	reg.Register(TypeCryptoHash, newCryptoHash)
	reg.Register(TypeNetworkSingle, d.newNetworkSingle)
	reg.Register(TypeNetworkMulti, d.newNetworkMulti)
	reg.Register(TypeWeb, d.newWeb)
	reg.Register(TypeFTPFetch, d.newFTPFetch)
	reg.Register(TypeSFTPFetch, d.newSFTPFetch)
	reg.Register(TypeScript, d.newScript)
}

// NewRegistry returns a registry holding the built-in operation kinds.
func NewRegistry(deps Deps) *metrolib.Registry {
	reg := metrolib.NewRegistry()
	Register(reg, deps)
	return reg
}
