//go:build !windows

package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	"github.com/energylab/metronom/common"
)

// socketMode restricts the control socket to the daemon user.
const socketMode = 0700

// createListener prefers a Unix socket and falls back to TCP on the
// loopback interface.
func (s *Server) createListener() (net.Listener, error) {
	if forceTCP() {
		return net.Listen("tcp", fmt.Sprintf("%s:%d", common.TCPHost, s.port))
	}
	path := socketPath()
	_ = os.Remove(path)
	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		s.log.Warning("server: unix socket unavailable: %v, trying tcp", err)
		tcpListener, tcpErr := net.Listen("tcp", fmt.Sprintf("%s:%d", common.TCPHost, s.port))
		if tcpErr != nil {
			return nil, fmt.Errorf("error listening: %w", tcpErr)
		}
		return tcpListener, nil
	}
	if err := os.Chmod(path, socketMode); err != nil {
		s.log.Warning("server: restrict socket %s: %v", path, err)
	}
	return l, nil
}

// removeSocket deletes the socket file left by createListener.
func removeSocket() error {
	if err := os.Remove(socketPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
