package server

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/downfa11-org/logship/pkg/disk"
	"github.com/downfa11-org/logship/pkg/metrics"
	"github.com/downfa11-org/logship/pkg/protocol"
	"github.com/downfa11-org/logship/pkg/record"
	"github.com/downfa11-org/logship/pkg/types"
	"github.com/downfa11-org/logship/util"
	"github.com/google/uuid"
)

var (
	ErrAuthFailed     = errors.New("authentication failed")
	ErrMissingSegment = errors.New("segment does not exist")
)

// State of one replication connection.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the protocol state of one connection. All methods run under the
// server lock.
type Session struct {
	ID     string
	Remote string

	srv   *Server
	conn  *protocol.Conn
	state State

	nodeID       uint32
	pos          types.Position
	lastActivity time.Time
}

func (s *Server) newSession(conn *protocol.Conn, remote string) *Session {
	return &Session{
		ID:           uuid.NewString(),
		Remote:       remote,
		srv:          s,
		conn:         conn,
		state:        StateUnauthenticated,
		lastActivity: s.now(),
	}
}

func (ss *Session) State() State {
	return ss.state
}

func (ss *Session) NodeID() uint32 {
	return ss.nodeID
}

// Handle applies one inbound message and returns the replies to send. When
// closeAfter is set the connection is closed once the replies are out.
func (ss *Session) Handle(msg protocol.Message) (replies []protocol.Message, closeAfter bool) {
	if ss.state == StateClosed {
		return nil, true
	}
	ss.lastActivity = ss.srv.now()

	switch msg.Type {
	case protocol.TypePing:
		return []protocol.Message{protocol.Pong()}, false
	case protocol.TypeAuth:
		return ss.handleAuth(msg)
	}

	if ss.state != StateAuthenticated {
		util.Debug("session %s: ignoring %q before auth", ss.ID, msg.Type)
		return nil, false
	}

	switch msg.Type {
	case protocol.TypePull:
		return ss.handlePull(msg.Position())
	case protocol.TypeLog:
		ss.handleLog(msg.Data)
		return nil, false
	default:
		util.Debug("session %s: ignoring unknown message type %q", ss.ID, msg.Type)
		return nil, false
	}
}

func (ss *Session) handleAuth(msg protocol.Message) ([]protocol.Message, bool) {
	if msg.Password != ss.srv.opts.Password {
		util.Warn("session %s: %v for node %d from %s", ss.ID, ErrAuthFailed, msg.NodeID, ss.Remote)
		metrics.AuthFailures.Inc()
		ss.state = StateClosed
		return []protocol.Message{protocol.AuthFailed()}, true
	}

	pos := msg.Position()
	if msg.ServerSide {
		if stored, ok := ss.srv.nodes.Lookup(msg.NodeID); ok {
			if stored != pos {
				util.Info("session %s: node %d claimed %s, using stored %s", ss.ID, msg.NodeID, pos, stored)
			}
			pos = stored
		}
	}
	if !pos.Valid() {
		util.Warn("session %s: node %d sent invalid position %s, starting at %s", ss.ID, msg.NodeID, pos, types.Start)
		pos = types.Start
	}

	ss.nodeID = msg.NodeID
	ss.pos = pos
	ss.state = StateAuthenticated
	util.Info("session %s: node %d authenticated from %s at %s", ss.ID, msg.NodeID, ss.Remote, pos)
	return []protocol.Message{protocol.SetPos(pos)}, false
}

func (ss *Session) handlePull(pos types.Position) ([]protocol.Message, bool) {
	srv := ss.srv
	path := srv.store.SegmentPath(pos.Serial)

	// Serial before size: a concurrent rotation must read as growth, not exhaustion.
	current := srv.store.CurrentSerial()
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			util.Error("session %s: node %d pulled %s: %v", ss.ID, ss.nodeID, pos, ErrMissingSegment)
		} else {
			util.Error("session %s: stat %s: %v", ss.ID, path, err)
		}
		metrics.PullsServed.WithLabelValues("logNotExists").Inc()
		ss.state = StateClosed
		return []protocol.Message{protocol.LogNotExists()}, true
	}

	if pos.Serial != current && pos.Offset == info.Size() {
		srv.handles.Drop(ss.ID, pos.Serial)
		next := pos.Rotate()
		ss.pos = next
		srv.nodes.Record(ss.nodeID, next)
		metrics.PullsServed.WithLabelValues("setPos").Inc()
		util.Debug("session %s: segment %06d exhausted, advancing to %s", ss.ID, pos.Serial, next)
		return []protocol.Message{protocol.SetPos(next)}, false
	}

	f, err := srv.handles.Get(ss.ID, pos.Serial)
	if err != nil {
		util.Error("session %s: open %s: %v", ss.ID, path, err)
		metrics.PullsServed.WithLabelValues("logNotExists").Inc()
		ss.state = StateClosed
		return []protocol.Message{protocol.LogNotExists()}, true
	}

	batch, err := record.ReadBatch(f, pos.Offset, info.Size(), srv.opts.MaxPushBytes)
	if err != nil && !errors.Is(err, io.EOF) {
		// Whatever whole records were gathered still go out.
		util.Error("session %s: read %s at %d: %v", ss.ID, path, pos.Offset, err)
	}

	ss.pos = pos
	srv.nodes.Record(ss.nodeID, pos)
	metrics.ObservePush(batch.Bytes())
	return []protocol.Message{protocol.Push(pos.Offset, batch.Count, batch.Data)}, false
}

func (ss *Session) handleLog(payload []byte) {
	if _, err := ss.srv.store.Append(ss.nodeID, payload); err != nil {
		if errors.Is(err, disk.ErrEmptyPayload) {
			util.Debug("session %s: ignoring empty log from node %d", ss.ID, ss.nodeID)
			return
		}
		util.Error("session %s: append from node %d failed: %v", ss.ID, ss.nodeID, err)
	}
}

// close releases the session's handles. The connection itself is closed by the caller.
func (ss *Session) close() {
	ss.state = StateClosed
	ss.srv.handles.DropOwner(ss.ID)
}
