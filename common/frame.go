package common

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/creachadair/jrpc2/channel"
)

// MaxFrameSize caps a single message on the control socket.
const MaxFrameSize = 16 << 20

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Framed is a jrpc2 channel framing that prefixes each message with its
// length as a little-endian uint32.
func Framed(r io.Reader, wc io.WriteCloser) channel.Channel {
	return &framedChannel{r: r, wc: wc}
}

var _ channel.Framing = Framed

type framedChannel struct {
	r    io.Reader
	wc   io.WriteCloser
	rmu  sync.Mutex
	wmu  sync.Mutex
	head [4]byte
}

func (c *framedChannel) Send(msg []byte) error {
	if len(msg) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 4+len(msg))
	binary.LittleEndian.PutUint32(buf, uint32(len(msg)))
	copy(buf[4:], msg)
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.wc.Write(buf)
	return err
}

func (c *framedChannel) Recv() ([]byte, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	if _, err := io.ReadFull(c.r, c.head[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(c.head[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

func (c *framedChannel) Close() error {
	return c.wc.Close()
}
