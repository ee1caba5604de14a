package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/downfa11-org/logship/pkg/protocol"
	"github.com/downfa11-org/logship/pkg/types"
	"github.com/downfa11-org/logship/util"
)

// Peer is an authenticated connection to a primary.
type Peer interface {
	Send(protocol.Message) error
	Receive() (protocol.Message, error)
	Close() error
}

// Dialer opens an authenticated Peer and returns the position the primary assigned.
type Dialer func(ctx *ClientContext) (Peer, types.Position, error)

// DialPrimary returns a Dialer that authenticates against addr.
func DialPrimary(addr string) Dialer {
	return func(cc *ClientContext) (Peer, types.Position, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		conn, err := protocol.Dial(ctx, addr)
		if err != nil {
			return nil, types.Position{}, err
		}
		if err := conn.Send(protocol.Auth(cc.Password, cc.NodeID, cc.Position, false)); err != nil {
			conn.Close()
			return nil, types.Position{}, err
		}
		m, err := conn.Receive()
		if err != nil {
			conn.Close()
			return nil, types.Position{}, err
		}
		if m.Type != protocol.TypeSetPos {
			conn.Close()
			return nil, types.Position{}, fmt.Errorf("auth rejected: %s", m.Type)
		}
		return conn, m.Position(), nil
	}
}

// CommandHandler runs text commands against a primary and local segment files.
type CommandHandler struct {
	dial Dialer
	peer Peer
}

func NewCommandHandler(dial Dialer) *CommandHandler {
	return &CommandHandler{dial: dial}
}

func (ch *CommandHandler) logCommandResult(cmd, response string) {
	cleanCmd := strings.ReplaceAll(cmd, "\n", " ")
	cleanResp := strings.ReplaceAll(response, "\n", " ")
	if strings.HasPrefix(response, "ERROR:") {
		util.Warn("command %q failed: %s", cleanCmd, cleanResp)
		return
	}
	util.Debug("command %q -> %s", cleanCmd, cleanResp)
}

// HandleCommand executes one command line and returns the response text.
func (ch *CommandHandler) HandleCommand(rawCmd string, ctx *ClientContext) string {
	cmd := strings.TrimSpace(rawCmd)
	if cmd == "" {
		resp := "ERROR: empty command"
		ch.logCommandResult(rawCmd, resp)
		return resp
	}

	name, rest, _ := strings.Cut(cmd, " ")
	args := parseKeyValueArgs(rest)

	var resp string
	switch strings.ToUpper(name) {
	case "HELP":
		resp = ch.handleHelp()
	case "LOG":
		resp = ch.handleLog(args, ctx)
	case "PULL":
		resp = ch.handlePull(args, ctx)
	case "INSPECT":
		resp = ch.handleInspect(args)
	case "STATUS":
		resp = ch.handleStatus(ctx)
	default:
		resp = fmt.Sprintf("ERROR: unknown command: %s", name)
	}

	ch.logCommandResult(rawCmd, resp)
	return resp
}

// connect returns the open peer, dialing on first use.
func (ch *CommandHandler) connect(ctx *ClientContext) (Peer, error) {
	if ch.peer != nil {
		return ch.peer, nil
	}
	peer, pos, err := ch.dial(ctx)
	if err != nil {
		return nil, err
	}
	ch.peer = peer
	ctx.Position = pos
	return peer, nil
}

// Close drops the connection to the primary, if any.
func (ch *CommandHandler) Close() {
	if ch.peer != nil {
		ch.peer.Close()
		ch.peer = nil
	}
}

func parseKeyValueArgs(argsStr string) map[string]string {
	result := make(map[string]string)

	messageIdx := strings.Index(argsStr, "message=")
	if messageIdx != -1 {
		for _, part := range strings.Fields(argsStr[:messageIdx]) {
			if k, v, ok := strings.Cut(part, "="); ok {
				result[k] = v
			}
		}
		result["message"] = strings.TrimSpace(argsStr[messageIdx+8:])
		return result
	}

	for _, part := range strings.Fields(argsStr) {
		if k, v, ok := strings.Cut(part, "="); ok {
			result[k] = v
		}
	}
	return result
}
