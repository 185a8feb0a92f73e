package device

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memdev/blockdev"
	"memdev/errors"
)

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	store, err := blockdev.NewStore(blockdev.StoreConfig{CapacityHint: 8})
	require.NoError(t, err)
	dev, err := NewDevice("mem0", store)
	require.NoError(t, err)
	return dev
}

func TestDeviceSpansBlockBoundaries(t *testing.T) {
	dev := newTestDevice(t)

	// 10000 bytes starting at 100 touch three blocks; the device loops
	// past each clip so the caller sees one full transfer.
	payload := bytes.Repeat([]byte{0xab}, 10000)
	n, err := dev.WriteAt(payload, 100)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	assert.Equal(t, 3, dev.Stats().Blocks)

	got := make([]byte, len(payload))
	n, err = dev.ReadAt(got, 100)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	assert.Equal(t, payload, got)
}

func TestDeviceRejectsNegativeOffset(t *testing.T) {
	dev := newTestDevice(t)

	_, err := dev.ReadAt(make([]byte, 1), -1)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidOffset))

	_, err = dev.WriteAt([]byte{1}, -1)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidOffset))
}

func TestDeviceSharedCursor(t *testing.T) {
	dev := newTestDevice(t)

	dev.Seek(4096)
	_, err := dev.WriteAt([]byte{7}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), dev.Position())

	dev.Seek(0)
	got := make([]byte, 1)
	_, err = dev.ReadAt(got, 4096)
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, got)
}

func TestRegistryLifecycle(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Register("mem0", blockdev.DefaultStoreConfig())
	require.NoError(t, err)

	_, err = reg.Register("mem0", blockdev.DefaultStoreConfig())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDeviceExists))

	_, err = reg.Lookup("mem1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDeviceNotFound))

	assert.Equal(t, []string{"mem0"}, reg.Names())
}

func TestRegistryHandlesShareTheStore(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Register("mem0", blockdev.DefaultStoreConfig())
	require.NoError(t, err)

	h1, err := reg.Open("mem0")
	require.NoError(t, err)
	h2, err := reg.Open("mem0")
	require.NoError(t, err)

	_, err = h1.WriteAt([]byte{1, 2, 3}, 64)
	require.NoError(t, err)

	got := make([]byte, 3)
	_, err = h2.ReadAt(got, 64)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	// Unregister refuses while handles are open.
	err = reg.Unregister("mem0")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDeviceBusy))

	require.NoError(t, h1.Close())
	require.NoError(t, h2.Close())
	require.NoError(t, reg.Unregister("mem0"))
}

func TestClosedHandleIsUnusable(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Register("mem0", blockdev.DefaultStoreConfig())
	require.NoError(t, err)

	h, err := reg.Open("mem0")
	require.NoError(t, err)
	require.NoError(t, h.Close())

	_, err = h.ReadAt(make([]byte, 1), 0)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeHandleClosed))

	err = h.Close()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeHandleClosed))
}
