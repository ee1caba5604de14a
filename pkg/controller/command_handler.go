package controller

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/downfa11-org/logship/pkg/disk"
	"github.com/downfa11-org/logship/pkg/protocol"
	"github.com/downfa11-org/logship/pkg/types"
)

// handleHelp processes HELP command
func (ch *CommandHandler) handleHelp() string {
	return `Available commands:
LOG message=<text> - append a line to the primary log
PULL serial=<N> offset=<N> - show what a replica receives from that position
INSPECT path=<file> - list the records of a local segment file
STATUS - show connection state and last position
HELP - show this help
EXIT - exit`
}

// handleLog processes LOG command
func (ch *CommandHandler) handleLog(args map[string]string, ctx *ClientContext) string {
	msg := args["message"]
	if msg == "" {
		return "ERROR: missing message parameter. Expected: LOG message=<text>"
	}

	peer, err := ch.connect(ctx)
	if err != nil {
		return fmt.Sprintf("ERROR: connect: %v", err)
	}
	if err := peer.Send(protocol.Log([]byte(msg))); err != nil {
		ch.Close()
		return fmt.Sprintf("ERROR: send: %v", err)
	}
	return "OK"
}

// handlePull processes PULL command
func (ch *CommandHandler) handlePull(args map[string]string, ctx *ClientContext) string {
	serial, err := strconv.ParseUint(args["serial"], 10, 32)
	if err != nil || !types.Serial(serial).Valid() {
		return "ERROR: serial must be between 1 and 999999. Expected: PULL serial=<N> offset=<N>"
	}
	off, err := strconv.ParseInt(args["offset"], 10, 64)
	if err != nil || off < 0 {
		return "ERROR: offset must be a non-negative integer. Expected: PULL serial=<N> offset=<N>"
	}
	pos := types.Position{Serial: types.Serial(serial), Offset: off}

	peer, err := ch.connect(ctx)
	if err != nil {
		return fmt.Sprintf("ERROR: connect: %v", err)
	}
	if err := peer.Send(protocol.Pull(pos)); err != nil {
		ch.Close()
		return fmt.Sprintf("ERROR: send: %v", err)
	}

	// logs are fire-and-forget; skip pongs until the pull reply
	for {
		m, err := peer.Receive()
		if err != nil {
			ch.Close()
			return fmt.Sprintf("ERROR: receive: %v", err)
		}
		switch m.Type {
		case protocol.TypePush:
			ctx.Position = pos.Advance(m.Bytes)
			return fmt.Sprintf("push pos=%d count=%d bytes=%d", m.Pos, m.Count, m.Bytes)
		case protocol.TypeSetPos:
			ctx.Position = m.Position()
			return fmt.Sprintf("setPos %s", m.Position())
		case protocol.TypeLogNotExists:
			ch.Close()
			return fmt.Sprintf("ERROR: segment %06d does not exist on primary", pos.Serial)
		}
	}
}

// handleInspect processes INSPECT command
func (ch *CommandHandler) handleInspect(args map[string]string) string {
	path := args["path"]
	if path == "" {
		return "ERROR: missing path parameter. Expected: INSPECT path=<file>"
	}

	sum, err := disk.InspectSegment(path)
	if err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}

	var b strings.Builder
	for _, r := range sum.Records {
		if r.IsSentinel() {
			fmt.Fprintf(&b, "%10d  ts=%d  <sentinel>\n", r.Offset, r.Timestamp)
			continue
		}
		fmt.Fprintf(&b, "%10d  ts=%d  src=%d  len=%d\n", r.Offset, r.Timestamp, r.SourceID, r.Length)
	}
	fmt.Fprintf(&b, "%d records, %d bytes, finalized=%v", len(sum.Records), sum.Size, sum.Finalized)
	if sum.Trailing > 0 {
		fmt.Fprintf(&b, ", %d trailing bytes", sum.Trailing)
	}
	return b.String()
}

// handleStatus processes STATUS command
func (ch *CommandHandler) handleStatus(ctx *ClientContext) string {
	state := "disconnected"
	if ch.peer != nil {
		state = "connected"
	}
	return fmt.Sprintf("node=%d %s position=%s", ctx.NodeID, state, ctx.Position)
}
