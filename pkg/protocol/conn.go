package protocol

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/downfa11-org/logship/util"
)

// MaxFrameSize bounds a single frame. A push carries at most one 512 KiB
// batch plus the record that crossed the cap.
const MaxFrameSize = 64 * 1024 * 1024

// Conn sends and receives whole messages over a stream connection. Send is
// safe for concurrent use; Receive must be called from one goroutine.
type Conn struct {
	raw net.Conn

	writeMu      sync.Mutex
	writeTimeout time.Duration

	closeOnce sync.Once
}

func NewConn(raw net.Conn) *Conn {
	return &Conn{raw: raw, writeTimeout: 10 * time.Second}
}

// Dial connects to a replication server.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tcp, ok := raw.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
	}
	return NewConn(raw), nil
}

func (c *Conn) Send(m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return util.WriteWithLength(c.raw, data)
}

func (c *Conn) Receive() (Message, error) {
	data, err := util.ReadWithLength(c.raw, MaxFrameSize)
	if err != nil {
		return Message{}, err
	}
	return Decode(data)
}

// SendAndClose sends a final message and closes the connection.
func (c *Conn) SendAndClose(m Message) error {
	err := c.Send(m)
	c.Close()
	return err
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.raw.Close()
	})
	return err
}

func (c *Conn) RemoteAddr() string {
	return c.raw.RemoteAddr().String()
}
