package device

import (
	"fmt"
	"math"

	"memdev/blockdev"
	"memdev/errors"
	"memdev/monitoring"
)

// Device wraps one block store under a name and adapts it to the standard
// io.ReaderAt / io.WriterAt contract. The store never spans a transfer
// across a block boundary in one call, so Device carries the continuation
// loop: it re-invokes the store with an advanced offset until the caller's
// buffer is satisfied.
type Device struct {
	name  string
	store *blockdev.Store
}

func NewDevice(name string, store *blockdev.Store) (*Device, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	return &Device{name: name, store: store}, nil
}

// Name returns the registered device name.
func (d *Device) Name() string {
	return d.name
}

// Store exposes the underlying block store for callers that want the raw
// clipped single-block transfers.
func (d *Device) Store() *blockdev.Store {
	return d.store
}

// ReadAt implements io.ReaderAt over the block store. It always fills p
// completely or returns an error: the backing blocks materialize lazily, so
// there is no EOF to hit.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.NewError(errors.ErrCodeInvalidOffset,
			fmt.Sprintf("Negative offset %d", off))
	}
	n := 0
	for n < len(p) {
		if uint64(off) > math.MaxUint64-uint64(n) {
			return n, errors.NewError(errors.ErrCodeOffsetOverflow,
				fmt.Sprintf(errors.ErrMsgOffsetOverflow, off, n))
		}
		m, err := d.store.ReadAt(uint64(off)+uint64(n), blockdev.NewBufferSink(p[n:]))
		if err != nil {
			return n, err
		}
		n += m
	}
	monitoring.RecordRead(n)
	return n, nil
}

// WriteAt implements io.WriterAt over the block store, looping past block
// boundaries the same way ReadAt does.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.NewError(errors.ErrCodeInvalidOffset,
			fmt.Sprintf("Negative offset %d", off))
	}
	n := 0
	for n < len(p) {
		if uint64(off) > math.MaxUint64-uint64(n) {
			return n, errors.NewError(errors.ErrCodeOffsetOverflow,
				fmt.Sprintf(errors.ErrMsgOffsetOverflow, off, n))
		}
		m, err := d.store.WriteAt(uint64(off)+uint64(n), blockdev.NewBufferSource(p[n:]))
		if err != nil {
			return n, err
		}
		n += m
	}
	monitoring.RecordWrite(n)
	return n, nil
}

// Seek positions the store's shared cursor. All handles of the device share
// the one cursor, matching the single-device semantics of the backend.
func (d *Device) Seek(pos uint64) {
	d.store.SetCursor(pos)
}

// Position returns the shared cursor value.
func (d *Device) Position() uint64 {
	return d.store.Cursor()
}

// Stats snapshots the backing store's allocation state.
func (d *Device) Stats() blockdev.StoreStats {
	return d.store.Stats()
}
