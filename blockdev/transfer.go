package blockdev

import (
	"fmt"
)

// TransferSink is the caller-buffer capability a read transfers into.
// The store only needs the buffer's length and a bounded slice copy;
// it does not know or care how the buffer is backed.
type TransferSink interface {
	// Len returns the capacity of the caller's buffer in bytes.
	Len() int

	// WriteSlice copies src into the caller's buffer. len(src) never
	// exceeds Len().
	WriteSlice(src []byte) error
}

// TransferSource is the caller-buffer capability a write transfers from.
type TransferSource interface {
	Len() int

	// ReadSlice fills dst from the caller's buffer. len(dst) never
	// exceeds Len().
	ReadSlice(dst []byte) error
}

// BufferSink adapts a plain byte slice as a TransferSink for in-process
// callers.
type BufferSink struct {
	buf []byte
}

func NewBufferSink(buf []byte) *BufferSink {
	return &BufferSink{buf: buf}
}

func (b *BufferSink) Len() int {
	return len(b.buf)
}

func (b *BufferSink) WriteSlice(src []byte) error {
	if len(src) > len(b.buf) {
		return fmt.Errorf("transfer of %d bytes exceeds sink capacity %d", len(src), len(b.buf))
	}
	copy(b.buf, src)
	return nil
}

// BufferSource adapts a plain byte slice as a TransferSource.
type BufferSource struct {
	buf []byte
}

func NewBufferSource(buf []byte) *BufferSource {
	return &BufferSource{buf: buf}
}

func (b *BufferSource) Len() int {
	return len(b.buf)
}

func (b *BufferSource) ReadSlice(dst []byte) error {
	if len(dst) > len(b.buf) {
		return fmt.Errorf("transfer of %d bytes exceeds source capacity %d", len(dst), len(b.buf))
	}
	copy(dst, b.buf[:len(dst)])
	return nil
}
