package types

import "fmt"

// Serial identifies one segment file. Valid serials are 1..MaxSerial.
type Serial uint32

const (
	MinSerial Serial = 1
	MaxSerial Serial = 999999
)

// Next returns the serial that follows s, wrapping 999999 to 1.
func (s Serial) Next() Serial {
	if s >= MaxSerial || s < MinSerial {
		return MinSerial
	}
	return s + 1
}

func (s Serial) Valid() bool {
	return s >= MinSerial && s <= MaxSerial
}

// Position is a byte-exact cursor into one segment.
type Position struct {
	Serial Serial `json:"logSN"`
	Offset int64  `json:"logPos"`
}

// Start is the position a fresh node begins from.
var Start = Position{Serial: MinSerial, Offset: 0}

func (p Position) Valid() bool {
	return p.Serial.Valid() && p.Offset >= 0
}

// Advance returns p moved n bytes forward within the same segment.
func (p Position) Advance(n int64) Position {
	return Position{Serial: p.Serial, Offset: p.Offset + n}
}

// Rotate returns the start of the segment after p.
func (p Position) Rotate() Position {
	return Position{Serial: p.Serial.Next(), Offset: 0}
}

func (p Position) String() string {
	return fmt.Sprintf("%06d@%d", p.Serial, p.Offset)
}

// Role prefixes used in segment file names.
const (
	PrefixServer = "Server"
	PrefixClient = "Client"
)
