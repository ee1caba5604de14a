package record

import (
	"bufio"
	"errors"
	"io"
)

// Batch is a run of whole records copied verbatim from a segment.
type Batch struct {
	Data     []byte
	Count    int
	Sentinel bool
}

func (b Batch) Bytes() int64 {
	return int64(len(b.Data))
}

// ReadBatch copies whole records from r between off and end until the data
// ends or at least max bytes have been gathered. The record that crosses max
// is still included; a trailing partial record never is. Reading stops after
// a sentinel since nothing may follow it.
func ReadBatch(r io.ReaderAt, off, end, max int64) (Batch, error) {
	var b Batch
	remaining := end - off
	if remaining <= 0 {
		return b, nil
	}
	br := bufio.NewReaderSize(io.NewSectionReader(r, off, remaining), 64*1024)

	for int64(len(b.Data)) < max {
		rec, err := ReadLimited(br, remaining)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrIncomplete) {
				return b, nil
			}
			return b, err
		}

		var hb [HeaderSize]byte
		rec.Header.Put(hb[:])
		b.Data = append(b.Data, hb[:]...)
		b.Data = append(b.Data, rec.Payload...)
		b.Count++
		remaining -= rec.Size()

		if rec.IsSentinel() {
			b.Sentinel = true
			return b, nil
		}
	}
	return b, nil
}
