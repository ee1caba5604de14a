package controller

import "github.com/downfa11-org/logship/pkg/types"

// ClientContext is the identity and last seen position of one CLI session.
type ClientContext struct {
	NodeID   uint32
	Password string
	Position types.Position
}

func NewClientContext(nodeID uint32, password string) *ClientContext {
	return &ClientContext{
		NodeID:   nodeID,
		Password: password,
		Position: types.Start,
	}
}
