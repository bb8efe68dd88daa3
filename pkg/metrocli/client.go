// Package metrocli is the client of the metronom daemon control socket.
package metrocli

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/creachadair/jrpc2"
	"github.com/energylab/metronom/common"
	"github.com/energylab/metronom/pkg/metrolib"
)

// DaemonURIEnv overrides where the client connects, e.g.
// "tcp://10.0.0.5:3859" or "unix:///run/metronom.sock".
const DaemonURIEnv = "METRONOM_DAEMON_URI"

type Client struct {
	conn net.Conn
	rpc  *jrpc2.Client
}

type options struct {
	uri       string
	autoStart bool
	onStatus  func(metrolib.RunStatus)
}

type Option func(*options)

// WithURI connects to an explicit daemon URI instead of the local
// socket. Auto start is disabled for explicit URIs.
func WithURI(uri string) Option {
	return func(o *options) { o.uri = uri }
}

// WithAutoStart spawns a local daemon when none answers.
func WithAutoStart() Option {
	return func(o *options) { o.autoStart = true }
}

// WithStatusHandler receives every run status pushed by the daemon.
func WithStatusHandler(fn func(metrolib.RunStatus)) Option {
	return func(o *options) { o.onStatus = fn }
}

func NewClient(opts ...Option) (*Client, error) {
	o := &options{uri: os.Getenv(DaemonURIEnv)}
	for _, opt := range opts {
		opt(o)
	}

	var conn net.Conn
	var err error
	if o.uri != "" {
		uri, perr := ParseDaemonURI(o.uri)
		if perr != nil {
			return nil, perr
		}
		conn, err = dialURI(uri)
	} else {
		if o.autoStart {
			if err := ensureDaemon(); err != nil {
				return nil, err
			}
		}
		conn, err = dial()
	}
	if err != nil {
		return nil, fmt.Errorf("error connecting to daemon: %w", err)
	}

	copts := &jrpc2.ClientOptions{}
	if o.onStatus != nil {
		copts.OnNotify = func(req *jrpc2.Request) {
			if req.Method() != common.NotifyRunStatus {
				return
			}
			var s metrolib.RunStatus
			if err := req.UnmarshalParams(&s); err != nil {
				debugLog("bad status push: %v", err)
				return
			}
			o.onStatus(s)
		}
	}
	return &Client{
		conn: conn,
		rpc:  jrpc2.NewClient(common.Framed(conn, conn), copts),
	}, nil
}

func (c *Client) Close() error {
	return c.rpc.Close()
}

func (c *Client) call(method string, params, result any) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := c.rpc.CallResult(ctx, method, params, result); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}
