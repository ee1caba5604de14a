// Package protocol defines the replication wire messages and the framed
// connection they travel over.
package protocol

import "github.com/downfa11-org/logship/pkg/types"

// Message types.
const (
	TypeAuth         = "auth"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeSetPos       = "setPos"
	TypePull         = "pull"
	TypePush         = "push"
	TypeLog          = "log"
	TypeAuthFailed   = "authFailed"
	TypeLogNotExists = "logNotExists"
)

// Message is one frame on the wire. Only the fields of its Type are set.
type Message struct {
	Type string `codec:"type"`

	// auth
	Password   string `codec:"password,omitempty"`
	NodeID     uint32 `codec:"nodeId,omitempty"`
	ServerSide bool   `codec:"serverSide,omitempty"`

	// auth, setPos, pull
	LogSN  uint32 `codec:"logSN,omitempty"`
	LogPos int64  `codec:"logPos,omitempty"`

	// push
	Pos   int64 `codec:"pos,omitempty"`
	Count int   `codec:"count,omitempty"`
	Bytes int64 `codec:"bytes,omitempty"`

	// push, log
	Data []byte `codec:"data,omitempty"`
}

func (m Message) Position() types.Position {
	return types.Position{Serial: types.Serial(m.LogSN), Offset: m.LogPos}
}

func Ping() Message { return Message{Type: TypePing} }

func Pong() Message { return Message{Type: TypePong} }

func AuthFailed() Message { return Message{Type: TypeAuthFailed} }

func LogNotExists() Message { return Message{Type: TypeLogNotExists} }

func Auth(password string, nodeID uint32, pos types.Position, serverSide bool) Message {
	return Message{
		Type:       TypeAuth,
		Password:   password,
		NodeID:     nodeID,
		LogSN:      uint32(pos.Serial),
		LogPos:     pos.Offset,
		ServerSide: serverSide,
	}
}

func SetPos(pos types.Position) Message {
	return Message{Type: TypeSetPos, LogSN: uint32(pos.Serial), LogPos: pos.Offset}
}

func Pull(pos types.Position) Message {
	return Message{Type: TypePull, LogSN: uint32(pos.Serial), LogPos: pos.Offset}
}

// Push carries count whole records read from pos. Bytes == 0 means no new data.
func Push(pos int64, count int, data []byte) Message {
	return Message{Type: TypePush, Pos: pos, Count: count, Data: data, Bytes: int64(len(data))}
}

func Log(payload []byte) Message {
	return Message{Type: TypeLog, Data: payload}
}
