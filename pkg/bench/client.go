package bench

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/downfa11-org/logship/pkg/protocol"
	"github.com/downfa11-org/logship/pkg/types"
	"github.com/downfa11-org/logship/util"
)

const AckTimeout = 5 * time.Second

// BenchClient is one authenticated peer driving load against a primary.
type BenchClient struct {
	Addr        string
	Password    string
	NodeID      uint32
	NumMessages int
	MessageSize int
}

// connect dials and authenticates, returning the position the primary assigned.
func (c *BenchClient) connect(ctx context.Context, from types.Position) (*protocol.Conn, types.Position, error) {
	dctx, cancel := context.WithTimeout(ctx, AckTimeout)
	defer cancel()

	conn, err := protocol.Dial(dctx, c.Addr)
	if err != nil {
		return nil, types.Position{}, fmt.Errorf("connect to primary: %w", err)
	}
	if err := conn.Send(protocol.Auth(c.Password, c.NodeID, from, false)); err != nil {
		conn.Close()
		return nil, types.Position{}, fmt.Errorf("send auth: %w", err)
	}

	m, err := conn.Receive()
	if err != nil {
		conn.Close()
		return nil, types.Position{}, fmt.Errorf("read auth reply: %w", err)
	}
	if m.Type != protocol.TypeSetPos {
		conn.Close()
		return nil, types.Position{}, fmt.Errorf("auth rejected: %s", m.Type)
	}
	return conn, m.Position(), nil
}

// Produce sends NumMessages log lines and waits until the primary has
// handled them all.
func (c *BenchClient) Produce(ctx context.Context) error {
	conn, _, err := c.connect(ctx, types.Start)
	if err != nil {
		return err
	}
	defer conn.Close()

	payload := bytes.Repeat([]byte{'x'}, c.MessageSize)
	for i := 0; i < c.NumMessages; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := conn.Send(protocol.Log(payload)); err != nil {
			return fmt.Errorf("send log %d: %w", i, err)
		}
	}

	// messages on one connection are handled in order, so the pong
	// confirms every log before it was appended
	if err := conn.Send(protocol.Ping()); err != nil {
		return err
	}
	for {
		m, err := conn.Receive()
		if err != nil {
			return fmt.Errorf("await pong: %w", err)
		}
		if m.Type == protocol.TypePong {
			return nil
		}
	}
}

// Drain pulls from the given position until the primary reports no new data.
func (c *BenchClient) Drain(ctx context.Context, from types.Position) (records int, total int64, err error) {
	conn, pos, err := c.connect(ctx, from)
	if err != nil {
		return 0, 0, err
	}
	defer conn.Close()

	for ctx.Err() == nil {
		if err := conn.Send(protocol.Pull(pos)); err != nil {
			return records, total, err
		}
		m, err := conn.Receive()
		if err != nil {
			return records, total, err
		}

		switch m.Type {
		case protocol.TypeSetPos:
			util.Debug("bench: advancing to %s", m.Position())
			pos = m.Position()
		case protocol.TypePush:
			if m.Bytes == 0 {
				return records, total, nil
			}
			records += m.Count
			total += m.Bytes
			pos = pos.Advance(m.Bytes)
		case protocol.TypeLogNotExists:
			return records, total, fmt.Errorf("segment %06d no longer exists on primary", pos.Serial)
		}
	}
	return records, total, ctx.Err()
}
