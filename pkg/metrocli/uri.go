package metrocli

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"runtime"
	"strconv"
	"strings"

	"github.com/energylab/metronom/common"
)

// DaemonURI is a parsed daemon location.
type DaemonURI struct {
	Scheme  string
	Address string
}

const (
	SchemeUnix = "unix"
	SchemeTCP  = "tcp"
	SchemePipe = "pipe"
)

var (
	ErrEmptyURI          = errors.New("daemon URI cannot be empty")
	ErrUnsupportedScheme = errors.New("unsupported URI scheme")
	ErrInvalidPath       = errors.New("invalid path in URI")
	ErrPipeNotSupported  = errors.New("pipe:// scheme only supported on Windows")
	ErrUnixNotSupported  = errors.New("unix:// scheme not supported on Windows")
)

// ParseDaemonURI accepts unix:///abs/path, tcp://host[:port] and
// pipe://name. A TCP URI without a port uses the default control port.
func ParseDaemonURI(raw string) (*DaemonURI, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyURI
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	switch strings.ToLower(u.Scheme) {
	case SchemeUnix:
		if runtime.GOOS == "windows" {
			return nil, ErrUnixNotSupported
		}
		if u.Host != "" || !strings.HasPrefix(u.Path, "/") {
			return nil, ErrInvalidPath
		}
		return &DaemonURI{Scheme: SchemeUnix, Address: u.Path}, nil

	case SchemeTCP:
		if u.Host == "" {
			return nil, ErrInvalidPath
		}
		if u.Port() == "" {
			return &DaemonURI{Scheme: SchemeTCP, Address: net.JoinHostPort(u.Hostname(), strconv.Itoa(common.DefaultTCPPort))}, nil
		}
		p, err := strconv.Atoi(u.Port())
		if err != nil || p < 1 || p > 65535 {
			return nil, fmt.Errorf("%w: invalid port %q", ErrInvalidPath, u.Port())
		}
		return &DaemonURI{Scheme: SchemeTCP, Address: u.Host}, nil

	case SchemePipe:
		if runtime.GOOS != "windows" {
			return nil, ErrPipeNotSupported
		}
		if u.Host == "" {
			return nil, ErrInvalidPath
		}
		return &DaemonURI{Scheme: SchemePipe, Address: `\\.\pipe\` + u.Host}, nil
	}
	return nil, ErrUnsupportedScheme
}
