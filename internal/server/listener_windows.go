//go:build windows

package server

import (
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
	"github.com/energylab/metronom/common"
)

// pipeSecurityDescriptor grants access to SYSTEM, Administrators and
// the user running the daemon.
const pipeSecurityDescriptor = "D:(A;;GA;;;SY)(A;;GA;;;BA)(A;;GA;;;CO)"

// createListener prefers a named pipe and falls back to TCP on the
// loopback interface.
func (s *Server) createListener() (net.Listener, error) {
	if forceTCP() {
		return net.Listen("tcp", fmt.Sprintf("%s:%d", common.TCPHost, s.port))
	}
	l, err := winio.ListenPipe(common.PipePath(), &winio.PipeConfig{
		SecurityDescriptor: pipeSecurityDescriptor,
	})
	if err != nil {
		s.log.Warning("server: named pipe unavailable: %v, trying tcp", err)
		tcpListener, tcpErr := net.Listen("tcp", fmt.Sprintf("%s:%d", common.TCPHost, s.port))
		if tcpErr != nil {
			return nil, fmt.Errorf("error listening: %w", tcpErr)
		}
		return tcpListener, nil
	}
	return l, nil
}

// removeSocket is a no-op; the pipe goes away with its last handle.
func removeSocket() error { return nil }
