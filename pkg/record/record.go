// Package record implements the on-disk record framing shared by segment
// writers, the replication server and the relay.
//
// A record is a 12-byte big-endian header [timestamp][sourceId][length]
// followed by length payload bytes. A zero length marks the end of a
// finalized segment.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const HeaderSize = 12

// ErrIncomplete means the reader hit the end of the data in the middle of a
// record. Callers treat it as "no more data yet".
var ErrIncomplete = errors.New("incomplete record")

type Header struct {
	Timestamp uint32
	SourceID  uint32
	Length    uint32
}

// IsSentinel reports whether the header terminates a segment.
func (h Header) IsSentinel() bool {
	return h.Length == 0
}

// Size is the encoded size of the whole record.
func (h Header) Size() int64 {
	return HeaderSize + int64(h.Length)
}

func (h Header) Put(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], h.Timestamp)
	binary.BigEndian.PutUint32(b[4:8], h.SourceID)
	binary.BigEndian.PutUint32(b[8:12], h.Length)
}

func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrIncomplete
	}
	return Header{
		Timestamp: binary.BigEndian.Uint32(b[0:4]),
		SourceID:  binary.BigEndian.Uint32(b[4:8]),
		Length:    binary.BigEndian.Uint32(b[8:12]),
	}, nil
}

type Record struct {
	Header
	Payload []byte
}

// Encode builds header and payload into one buffer so a single write
// puts the whole record on disk.
func Encode(ts, sourceID uint32, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	Header{Timestamp: ts, SourceID: sourceID, Length: uint32(len(payload))}.Put(buf)
	copy(buf[HeaderSize:], payload)
	return buf
}

// Sentinel is the payload-less record written once at the end of a finalized segment.
func Sentinel(ts uint32) []byte {
	buf := make([]byte, HeaderSize)
	Header{Timestamp: ts}.Put(buf)
	return buf
}

// ReadFrom decodes the next record from r. A short header or a short payload
// yields ErrIncomplete; a clean end of stream yields io.EOF.
func ReadFrom(r io.Reader) (Record, error) {
	return ReadLimited(r, math.MaxInt64)
}

// ReadLimited is ReadFrom over a stream holding at most limit more bytes.
// A header announcing a longer record yields ErrIncomplete before any
// payload buffer is allocated.
func ReadLimited(r io.Reader, limit int64) (Record, error) {
	var hb [HeaderSize]byte
	n, err := io.ReadFull(r, hb[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, ErrIncomplete
		}
		return Record{}, fmt.Errorf("read record header: %w", err)
	}

	h, _ := ParseHeader(hb[:])
	rec := Record{Header: h}
	if h.Length == 0 {
		return rec, nil
	}
	if h.Size() > limit {
		return Record{}, ErrIncomplete
	}

	rec.Payload = make([]byte, h.Length)
	if _, err := io.ReadFull(r, rec.Payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, ErrIncomplete
		}
		return Record{}, fmt.Errorf("read record payload: %w", err)
	}
	return rec, nil
}

// Scan decodes one record from the front of buf and returns it together with
// the number of bytes consumed.
func Scan(buf []byte) (Record, int, error) {
	h, err := ParseHeader(buf)
	if err != nil {
		return Record{}, 0, err
	}
	end := HeaderSize + int(h.Length)
	if end > len(buf) || end < HeaderSize {
		return Record{}, 0, ErrIncomplete
	}
	rec := Record{Header: h}
	if h.Length > 0 {
		rec.Payload = buf[HeaderSize:end]
	}
	return rec, end, nil
}
