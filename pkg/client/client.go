// Package client implements the replica side of log replication: it pulls
// segment bytes from a primary and mirrors them into local Client-*.log files.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/downfa11-org/logship/pkg/disk"
	"github.com/downfa11-org/logship/pkg/metrics"
	"github.com/downfa11-org/logship/pkg/offset"
	"github.com/downfa11-org/logship/pkg/protocol"
	"github.com/downfa11-org/logship/pkg/types"
	"github.com/downfa11-org/logship/util"
)

// ErrHeartbeatTimeout closes a connection that has been silent too long.
var ErrHeartbeatTimeout = errors.New("heartbeat timeout")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

type Options struct {
	Addr       string
	Password   string
	NodeID     uint32
	ServerSide bool
	AllowPull  bool

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	PullInterval      time.Duration
	ReconnectDelay    time.Duration
}

func (o *Options) setDefaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = 65 * time.Second
	}
	if o.PullInterval <= 0 {
		o.PullInterval = time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
}

type sender interface {
	Send(protocol.Message) error
	Close() error
}

// Client is one replica connection with its mirror and durable cursor.
type Client struct {
	opts   Options
	mirror *disk.Mirror
	cursor *offset.PositionStore

	mu          sync.Mutex
	state       State
	conn        sender
	pos         types.Position
	known       bool // pos confirmed by the primary on this connection
	inFlight    bool
	lastInbound time.Time

	now func() time.Time
}

func New(dir string, opts Options) *Client {
	opts.setDefaults()
	return &Client{
		opts:   opts,
		mirror: disk.NewMirror(dir),
		cursor: offset.NewPositionStore(dir, offset.FileClient, offset.KindPosition),
		state:  StateDisconnected,
		now:    time.Now,
	}
}

// Open loads the persisted cursor. A corrupt cursor is returned as an error.
func (c *Client) Open() error {
	fresh, err := c.cursor.Open()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.pos = c.cursor.Position()
	c.mu.Unlock()

	if fresh {
		util.Info("replica starting fresh at %s", c.pos)
	} else {
		util.Info("replica resuming at %s", c.pos)
	}
	metrics.SetReplicaPosition(uint32(c.pos.Serial), c.pos.Offset)
	return nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Position() types.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

// Log forwards an application log line to the primary. It reports false
// when there is no authenticated connection to send it on.
func (c *Client) Log(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateStreaming || c.conn == nil || len(payload) == 0 {
		return false
	}
	if err := c.conn.Send(protocol.Log(payload)); err != nil {
		util.Warn("replica: send log failed: %v", err)
		return false
	}
	return true
}

// Run connects, replicates and reconnects until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	defer func() {
		if err := c.mirror.Close(); err != nil {
			util.Error("replica: close mirror: %v", err)
		}
	}()

	for {
		c.connectOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		metrics.ReplicaReconnects.Inc()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

type inbound struct {
	msg protocol.Message
	err error
}

// connectOnce runs one connection from dial to close.
func (c *Client) connectOnce(ctx context.Context) {
	c.setState(StateConnecting)

	conn, err := protocol.Dial(ctx, c.opts.Addr)
	if err != nil {
		if ctx.Err() == nil {
			util.Warn("replica: connect %s failed: %v", c.opts.Addr, err)
		}
		c.setState(StateDisconnected)
		return
	}
	util.Info("replica: connected to %s, authenticating", c.opts.Addr)

	if err := c.onConnect(conn); err != nil {
		util.Warn("replica: send auth failed: %v", err)
		c.onClose(err)
		return
	}

	msgs := make(chan inbound)
	stop := make(chan struct{})
	go func() {
		for {
			m, err := conn.Receive()
			if err != nil && errors.Is(err, protocol.ErrBadMessage) {
				util.Debug("replica: %v", err)
				continue
			}
			select {
			case msgs <- inbound{msg: m, err: err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	defer close(stop)

	ping := time.NewTicker(c.opts.HeartbeatInterval)
	pull := time.NewTicker(c.opts.PullInterval)
	defer ping.Stop()
	defer pull.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case in := <-msgs:
			if in.err != nil {
				err = in.err
			} else {
				err = c.onMessage(in.msg)
			}
		case <-ping.C:
			err = c.onPingTick()
		case <-pull.C:
			err = c.onPullTick()
		}
		if err != nil {
			c.onClose(err)
			return
		}
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// onConnect resets per-connection state and authenticates with the durable position.
func (c *Client) onConnect(conn sender) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn = conn
	c.state = StateAuthenticating
	c.known = false
	c.inFlight = false
	c.lastInbound = c.now()
	return conn.Send(protocol.Auth(c.opts.Password, c.opts.NodeID, c.pos, c.opts.ServerSide))
}

func (c *Client) onMessage(m protocol.Message) error {
	c.mu.Lock()
	c.lastInbound = c.now()
	c.mu.Unlock()

	switch m.Type {
	case protocol.TypeSetPos:
		return c.onSetPos(m.Position())
	case protocol.TypePush:
		return c.onPush(m)
	case protocol.TypePong:
		return nil
	case protocol.TypeAuthFailed:
		util.Warn("replica: primary rejected credentials for node %d", c.opts.NodeID)
		return nil
	case protocol.TypeLogNotExists:
		util.Error("replica: primary has no segment %06d, position %s is unreliable", c.Position().Serial, c.Position())
		return nil
	default:
		util.Debug("replica: ignoring message type %q", m.Type)
		return nil
	}
}

// onSetPos adopts the position named by the primary.
func (c *Client) onSetPos(pos types.Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !pos.Valid() {
		return fmt.Errorf("primary sent invalid position %s", pos)
	}
	c.mirror.Release(pos.Serial)

	if pos != c.pos {
		if err := c.cursor.Save(pos); err != nil {
			return err
		}
		util.Info("replica: position set to %s", pos)
	}
	c.pos = pos
	c.known = true
	c.inFlight = false
	c.state = StateStreaming
	metrics.SetReplicaPosition(uint32(pos.Serial), pos.Offset)
	return nil
}

// onPush applies a batch at the requested position. The cursor is persisted
// only after the bytes are synced, then the next pull goes out at once.
func (c *Client) onPush(m protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m.Bytes == 0 || len(m.Data) == 0 {
		c.inFlight = false
		return nil
	}

	at := types.Position{Serial: c.pos.Serial, Offset: m.Pos}
	if err := c.mirror.WriteAt(at, m.Data); err != nil {
		return err
	}
	next := at.Advance(int64(len(m.Data)))
	if err := c.cursor.Save(next); err != nil {
		return err
	}
	c.pos = next
	metrics.ReplicaBytesApplied.Add(float64(len(m.Data)))
	metrics.SetReplicaPosition(uint32(next.Serial), next.Offset)
	util.Debug("replica: applied %d records (%d bytes) at %s", m.Count, len(m.Data), at)

	c.inFlight = true
	return c.conn.Send(protocol.Pull(next))
}

func (c *Client) onPingTick() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idle := c.now().Sub(c.lastInbound); idle > c.opts.HeartbeatTimeout {
		return fmt.Errorf("%w: silent for %s", ErrHeartbeatTimeout, idle.Truncate(time.Second))
	}
	return c.conn.Send(protocol.Ping())
}

// onPullTick issues a pull when none is outstanding.
func (c *Client) onPullTick() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opts.AllowPull || c.inFlight || !c.known {
		return nil
	}
	c.inFlight = true
	return c.conn.Send(protocol.Pull(c.pos))
}

// onClose drops the connection and all in-flight state. The persisted
// position is left as is.
func (c *Client) onClose(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case errors.Is(cause, context.Canceled):
		util.Info("replica: shutting down")
	case errors.Is(cause, io.EOF), errors.Is(cause, net.ErrClosed):
		util.Warn("replica: connection closed by primary, reconnecting in %s", c.opts.ReconnectDelay)
	default:
		util.Warn("replica: connection lost (%v), reconnecting in %s", cause, c.opts.ReconnectDelay)
	}

	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.state = StateDisconnected
	c.known = false
	c.inFlight = false
}
