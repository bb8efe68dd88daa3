package operations

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/energylab/metronom/pkg/credman/types"
	"github.com/energylab/metronom/pkg/metrolib"
)

const (
	kib             = 1024
	maxUDPPacket    = 1 * kib
	maxUDPRateBytes = 4 * 1024 * 1024
)

var (
	ErrPayloadTooShort = errors.New("write size too small for reply header")
	ErrNoSecret        = errors.New("reply server secret not configured")
)

// replyPayload builds a request for the reply server: the shared secret,
// the request length and the requested reply length, both big-endian
// uint32, zero padded to the request length.
func replyPayload(secret []byte, writeLen, readLen int) ([]byte, error) {
	if writeLen < len(secret)+8 {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrPayloadTooShort, writeLen, len(secret)+8)
	}
	b := make([]byte, writeLen)
	n := copy(b, secret)
	binary.BigEndian.PutUint32(b[n:], uint32(writeLen))
	binary.BigEndian.PutUint32(b[n+4:], uint32(readLen))
	return b, nil
}

type socketClient interface {
	send(ctx context.Context, payload []byte, readLen int) error
}

type tcpClient struct {
	addr    string
	dialer  contextDialer
	timeout time.Duration
}

func exchange(conn net.Conn, timeout time.Duration, payload []byte, readLen int) error {
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if _, err := io.CopyN(io.Discard, conn, int64(readLen)); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return nil
}

func (c *tcpClient) send(ctx context.Context, payload []byte, readLen int) error {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	return exchange(conn, c.timeout, payload, readLen)
}

// keepAliveClient reuses one connection per server address across
// operations and reconnects once when it went stale.
type keepAliveClient struct {
	addr    string
	dialer  contextDialer
	timeout time.Duration
}

var keepAlive = struct {
	sync.Mutex
	conns map[string]net.Conn
}{conns: make(map[string]net.Conn)}

func (c *keepAliveClient) send(ctx context.Context, payload []byte, readLen int) error {
	keepAlive.Lock()
	defer keepAlive.Unlock()
	err := c.sendLocked(ctx, payload, readLen)
	if err == nil {
		return nil
	}
	c.dropLocked()
	return c.sendLocked(ctx, payload, readLen)
}

func (c *keepAliveClient) sendLocked(ctx context.Context, payload []byte, readLen int) error {
	conn, ok := keepAlive.conns[c.addr]
	if !ok {
		var err error
		if conn, err = c.dialer.DialContext(ctx, "tcp", c.addr); err != nil {
			return err
		}
		keepAlive.conns[c.addr] = conn
	}
	return exchange(conn, c.timeout, payload, readLen)
}

func (c *keepAliveClient) dropLocked() {
	if conn, ok := keepAlive.conns[c.addr]; ok {
		conn.Close()
		delete(keepAlive.conns, c.addr)
	}
}

// CloseKeepAlive closes the connections pooled by tcp_keep operations.
func CloseKeepAlive() {
	keepAlive.Lock()
	defer keepAlive.Unlock()
	for addr, conn := range keepAlive.conns {
		conn.Close()
		delete(keepAlive.conns, addr)
	}
}

type udpClient struct {
	addr        string
	timeout     time.Duration
	waitForRead bool
	clock       metrolib.Clock
}

// send writes the payload in packets paced below maxUDPRateBytes, then
// reads replies until readLen bytes arrived or the socket times out.
func (c *udpClient) send(ctx context.Context, payload []byte, readLen int) error {
	conn, err := net.Dial("udp", c.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	for off := 0; off < len(payload); off += maxUDPPacket {
		end := min(off+maxUDPPacket, len(payload))
		if _, err := conn.Write(payload[off:end]); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		pace := time.Duration(end-off) * time.Second / maxUDPRateBytes
		if err := c.clock.Sleep(ctx, pace); err != nil {
			return err
		}
	}

	buf := make([]byte, maxUDPPacket)
	for remaining := readLen; c.waitForRead && remaining > 0; {
		if err := conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
		n, err := conn.Read(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		remaining -= n
	}
	return nil
}

// network holds the arguments shared by network-single and network-multi.
type network struct {
	metrolib.BaseOperation
	deps        Deps
	writeKiB    int
	readKiB     int
	protocol    string
	waitForRead bool
	proxy       string
	client      socketClient
	payload     []byte
}

func (d Deps) newNetwork(args metrolib.Args) (*network, error) {
	n := &network{deps: d}
	var err error
	if n.writeKiB, err = args.Int("write_kib", 10); err != nil {
		return nil, err
	}
	if n.readKiB, err = args.Int("read_kib", 10); err != nil {
		return nil, err
	}
	if n.protocol, err = args.Choice("protocol", "tcp", "tcp", "tcp_keep", "udp"); err != nil {
		return nil, err
	}
	if n.waitForRead, err = args.Bool("wait_for_read", true); err != nil {
		return nil, err
	}
	n.proxy = args.Get("proxy", d.Proxy)
	if n.protocol == "udp" && args.Get("proxy", "") != "" {
		return nil, fmt.Errorf("%w: udp cannot use a proxy", metrolib.ErrInvalidArgs)
	}
	dialer, err := newDialer(n.proxy, d.SocketTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", metrolib.ErrInvalidArgs, err)
	}
	host := d.Reply.Host
	switch n.protocol {
	case "tcp":
		n.client = &tcpClient{addr: net.JoinHostPort(host, strconv.Itoa(d.Reply.TCPPort)), dialer: dialer, timeout: d.SocketTimeout}
	case "tcp_keep":
		n.client = &keepAliveClient{addr: net.JoinHostPort(host, strconv.Itoa(d.Reply.KeepAlivePort)), dialer: dialer, timeout: d.SocketTimeout}
	case "udp":
		n.client = &udpClient{addr: net.JoinHostPort(host, strconv.Itoa(d.Reply.UDPPort)), timeout: d.SocketTimeout, waitForRead: n.waitForRead, clock: d.Clock}
	}
	return n, nil
}

// Before resolves the reply server secret and builds the request.
func (n *network) Before(context.Context) (bool, error) {
	if n.deps.Secrets == nil {
		return false, ErrNoSecret
	}
	secret, err := n.deps.Secrets.Get(types.ReplyServerSecret)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrNoSecret, err)
	}
	n.payload, err = replyPayload([]byte(secret), n.writeKiB*kib, n.readKiB*kib)
	return false, err
}

func (n *network) exchange(ctx context.Context) error {
	return n.client.send(ctx, n.payload, n.readKiB*kib)
}

func (n *network) baseDebug() string {
	return fmt.Sprintf("write_kib=%d&read_kib=%d&protocol=%s", n.writeKiB, n.readKiB, n.protocol)
}

type networkSingle struct{ *network }

func (d Deps) newNetworkSingle(_ string, _ metrolib.Pause, args metrolib.Args) (metrolib.Operation, error) {
	n, err := d.newNetwork(args)
	if err != nil {
		return nil, err
	}
	return networkSingle{n}, nil
}

func (o networkSingle) Run(ctx context.Context) error { return o.exchange(ctx) }

func (o networkSingle) Debug() string { return o.baseDebug() }

// networkMulti repeats the exchange every interval for a fixed duration.
// Individual failures are counted, not fatal.
type networkMulti struct {
	*network
	durationMs int
	intervalMs int
	successes  int
	failures   int
}

func (d Deps) newNetworkMulti(_ string, _ metrolib.Pause, args metrolib.Args) (metrolib.Operation, error) {
	n, err := d.newNetwork(args)
	if err != nil {
		return nil, err
	}
	o := &networkMulti{network: n}
	if o.durationMs, err = args.Int("duration_ms", 30000); err != nil {
		return nil, err
	}
	if o.intervalMs, err = args.Int("interval_ms", 5000); err != nil {
		return nil, err
	}
	if o.intervalMs <= 0 {
		return nil, fmt.Errorf("%w: interval_ms must be positive", metrolib.ErrInvalidArgs)
	}
	return o, nil
}

func (o *networkMulti) Run(ctx context.Context) error {
	clock := o.deps.Clock
	interval := float64(o.intervalMs)
	finish := clock.NowMs() + float64(o.durationMs)
	for clock.NowMs() < finish {
		start := clock.NowMs()
		if err := o.exchange(ctx); err != nil {
			o.deps.Log.Warning("%s %d/%d KiB: %v", o.protocol, o.writeKiB, o.readKiB, err)
			o.failures++
		} else {
			o.successes++
		}
		// overruns wait for the next aligned interval
		sleep := interval - (clock.NowMs() - start)
		for sleep <= 0 {
			sleep += interval
		}
		if clock.NowMs()+sleep >= finish {
			if rest := finish - clock.NowMs(); rest > 0 {
				return clock.Sleep(ctx, metrolib.MsToDuration(rest))
			}
			return nil
		}
		if err := clock.Sleep(ctx, metrolib.MsToDuration(sleep)); err != nil {
			return err
		}
	}
	return nil
}

func (o *networkMulti) Debug() string {
	return fmt.Sprintf("%s&duration_ms=%d&interval_ms=%d&successes=%d&failures=%d",
		o.baseDebug(), o.durationMs, o.intervalMs, o.successes, o.failures)
}
