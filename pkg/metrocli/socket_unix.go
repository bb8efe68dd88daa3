//go:build !windows

package metrocli

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/energylab/metronom/common"
)

func socketPath() string {
	if path := os.Getenv(common.SocketPathEnv); path != "" {
		return path
	}
	return filepath.Join(os.TempDir(), "metronom.sock")
}

// dial prefers the Unix socket and falls back to TCP.
func dial() (net.Conn, error) {
	if forceTCP() {
		return dialFunc("tcp", tcpAddress())
	}
	debugLog("connecting via unix socket %s", socketPath())
	conn, unixErr := dialFunc("unix", socketPath())
	if unixErr == nil {
		return conn, nil
	}
	debugLog("unix socket failed: %v, falling back to tcp", unixErr)
	conn, err := dialFunc("tcp", tcpAddress())
	if err != nil {
		return nil, fmt.Errorf("unix socket error: %v; tcp error: %w", unixErr, err)
	}
	return conn, nil
}

func dialURI(uri *DaemonURI) (net.Conn, error) {
	switch uri.Scheme {
	case SchemeUnix:
		return dialFunc("unix", uri.Address)
	case SchemeTCP:
		return dialFunc("tcp", uri.Address)
	case SchemePipe:
		return nil, ErrPipeNotSupported
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, uri.Scheme)
}

func isDaemonRunning() bool {
	conn, err := dial()
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
