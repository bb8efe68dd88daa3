//go:build windows

package metrocli

import (
	"context"
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
	"github.com/energylab/metronom/common"
)

var dialPipeFunc = func(path string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), common.DefaultDialTimeout)
	defer cancel()
	return winio.DialPipeContext(ctx, path)
}

// dial prefers the named pipe and falls back to TCP.
func dial() (net.Conn, error) {
	if forceTCP() {
		return dialFunc("tcp", tcpAddress())
	}
	path := common.PipePath()
	debugLog("connecting via named pipe %s", path)
	conn, pipeErr := dialPipeFunc(path)
	if pipeErr == nil {
		return conn, nil
	}
	debugLog("named pipe failed: %v, falling back to tcp", pipeErr)
	conn, err := dialFunc("tcp", tcpAddress())
	if err != nil {
		return nil, fmt.Errorf("named pipe error: %v; tcp error: %w", pipeErr, err)
	}
	return conn, nil
}

func dialURI(uri *DaemonURI) (net.Conn, error) {
	switch uri.Scheme {
	case SchemePipe:
		return dialPipeFunc(uri.Address)
	case SchemeTCP:
		return dialFunc("tcp", uri.Address)
	case SchemeUnix:
		return nil, ErrUnixNotSupported
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
