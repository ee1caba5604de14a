package util_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/downfa11-org/logship/util"
)

func TestWriteReadWithLength(t *testing.T) {
	var buf bytes.Buffer
	payloads := [][]byte{[]byte("ping"), {}, bytes.Repeat([]byte{0xAB}, 4096)}

	for _, p := range payloads {
		if err := util.WriteWithLength(&buf, p); err != nil {
			t.Fatalf("WriteWithLength: %v", err)
		}
	}

	for i, want := range payloads {
		got, err := util.ReadWithLength(&buf, 0)
		if err != nil {
			t.Fatalf("frame %d: ReadWithLength: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d: got %d bytes, want %d", i, len(got), len(want))
		}
	}
}

func TestReadWithLengthTooLarge(t *testing.T) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 1024)

	_, err := util.ReadWithLength(bytes.NewReader(lenBuf[:]), 512)
	if !errors.Is(err, util.ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadWithLengthShortBody(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 10)
	buf.Write(lenBuf[:])
	buf.WriteString("abc")

	_, err := util.ReadWithLength(&buf, 0)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}
