package blockdev

import (
	"bytes"
	"math"
	"sync"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memdev/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{CapacityHint: 8})
	require.NoError(t, err)
	return store
}

func writeBytes(t *testing.T, s *Store, offset uint64, data []byte) int {
	t.Helper()
	n, err := s.WriteAt(offset, NewBufferSource(data))
	require.NoError(t, err)
	return n
}

func readBytes(t *testing.T, s *Store, offset uint64, length int) []byte {
	t.Helper()
	buf := make([]byte, length)
	n, err := s.ReadAt(offset, NewBufferSink(buf))
	require.NoError(t, err)
	return buf[:n]
}

func TestRoundTripWithinBlock(t *testing.T) {
	store := newTestStore(t)

	payload := []byte("hello, block zero")
	n := writeBytes(t, store, 100, payload)
	require.Equal(t, len(payload), n)

	got := readBytes(t, store, 100, len(payload))
	assert.Equal(t, payload, got)
}

func TestBoundaryClipping(t *testing.T) {
	store := newTestStore(t)

	// Writing 8 bytes at offset 4090 must clip to the last 6 bytes of
	// block 0 and report 6.
	n := writeBytes(t, store, 4090, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.Equal(t, 6, n)
	assert.Equal(t, 1, store.Stats().Blocks)

	// Continuing at the next block boundary grows to block 1.
	n = writeBytes(t, store, 4096, []byte{7, 8})
	require.Equal(t, 2, n)
	assert.Equal(t, 2, store.Stats().Blocks)

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, readBytes(t, store, 4090, 6))
	assert.Equal(t, []byte{7, 8}, readBytes(t, store, 4096, 2))
}

func TestReadClipsAtBlockBoundary(t *testing.T) {
	store := newTestStore(t)

	writeBytes(t, store, 4090, []byte{9, 9, 9, 9, 9, 9})
	got := readBytes(t, store, 4090, 100)
	assert.Equal(t, []byte{9, 9, 9, 9, 9, 9}, got)
}

func TestZeroLengthNoop(t *testing.T) {
	store := newTestStore(t)

	n, err := store.ReadAt(1<<30, NewBufferSink(nil))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = store.WriteAt(1<<30, NewBufferSource(nil))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// No block growth happened.
	assert.Equal(t, 0, store.Stats().Blocks)
	assert.Equal(t, uint64(0), store.Stats().BytesMaterialized)
}

func TestLazyZeroFill(t *testing.T) {
	store := newTestStore(t)

	// Reading an untouched offset materializes the block zero-filled.
	got := readBytes(t, store, 8192+17, 64)
	assert.Equal(t, make([]byte, 64), got)
	assert.Equal(t, 3, store.Stats().Blocks)

	// A write elsewhere in the block leaves the rest zero.
	writeBytes(t, store, 8192, []byte{0xff})
	got = readBytes(t, store, 8193, 32)
	assert.Equal(t, make([]byte, 32), got)
}

func TestGrowthMonotonic(t *testing.T) {
	store := newTestStore(t)

	prev := 0
	offsets := []uint64{0, 5 * 4096, 4096, 20 * 4096, 3}
	for _, off := range offsets {
		writeBytes(t, store, off, []byte{1})
		blocks := store.Stats().Blocks
		require.GreaterOrEqual(t, blocks, prev, "block count shrank")
		prev = blocks
	}
	assert.Equal(t, 21, prev)
}

func TestCursorAddsToOffset(t *testing.T) {
	store := newTestStore(t)

	store.SetCursor(4096)
	writeBytes(t, store, 10, []byte{42})
	store.SetCursor(0)

	got := readBytes(t, store, 4106, 1)
	assert.Equal(t, []byte{42}, got)
	assert.Equal(t, uint64(0), store.Cursor())
}

func TestOffsetOverflowRejected(t *testing.T) {
	store := newTestStore(t)

	store.SetCursor(math.MaxUint64)
	_, err := store.ReadAt(1, NewBufferSink(make([]byte, 8)))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeOffsetOverflow))

	_, err = store.WriteAt(1, NewBufferSource([]byte{1}))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeOffsetOverflow))

	// Nothing was allocated on the failed paths.
	assert.Equal(t, 0, store.Stats().Blocks)
}

func TestRowBudgetExhausted(t *testing.T) {
	store, err := NewStore(StoreConfig{MaxBlocks: 2})
	require.NoError(t, err)

	// Rows 0 and 1 fit the budget.
	writeBytes(t, store, 4096, []byte{1})
	require.Equal(t, 2, store.Stats().Blocks)

	// Row 5 does not; rows appended before the failure remain appended.
	_, err = store.WriteAt(5*4096, NewBufferSource([]byte{1}))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeOutOfMemory))
	assert.Equal(t, 2, store.Stats().Blocks)

	// The budget failure is retryable; in-budget rows still work.
	got := readBytes(t, store, 4096, 1)
	assert.Equal(t, []byte{1}, got)
}

func TestByteBudgetExhausted(t *testing.T) {
	store, err := NewStore(StoreConfig{MaxBytes: BlockSize})
	require.NoError(t, err)

	writeBytes(t, store, 0, []byte{1})
	require.Equal(t, uint64(BlockSize), store.Stats().BytesMaterialized)

	// The append step succeeds, the resize step fails: the empty row stays.
	_, err = store.WriteAt(BlockSize, NewBufferSource([]byte{1}))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeOutOfMemory))
	assert.Equal(t, 2, store.Stats().Blocks)
	assert.Equal(t, uint64(BlockSize), store.Stats().BytesMaterialized)
}

func TestCapacityHintOverBudgetFailsConstruction(t *testing.T) {
	_, err := NewStore(StoreConfig{CapacityHint: 100, MaxBlocks: 10})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeOutOfMemory))
}

func TestFuzzedRoundTrips(t *testing.T) {
	store := newTestStore(t)
	f := fuzz.New().NilChance(0)

	for i := 0; i < 200; i++ {
		var off uint16
		var payload []byte
		f.Fuzz(&off)
		f.Fuzz(&payload)
		if len(payload) == 0 {
			continue
		}

		offset := uint64(off)
		n, err := store.WriteAt(offset, NewBufferSource(payload))
		require.NoError(t, err)

		want := int(BlockSize - offset%BlockSize)
		if len(payload) < want {
			want = len(payload)
		}
		require.Equal(t, want, n)

		got := readBytes(t, store, offset, n)
		assert.Equal(t, payload[:n], got)
	}
}

func TestConcurrentWritersDisjointRanges(t *testing.T) {
	store := newTestStore(t)

	const workers = 16
	const span = 512

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			payload := bytes.Repeat([]byte{byte(w + 1)}, span)
			offset := uint64(w) * BlockSize
			for len(payload) > 0 {
				n, err := store.WriteAt(offset, NewBufferSource(payload))
				if err != nil {
					t.Error(err)
					return
				}
				payload = payload[n:]
				offset += uint64(n)
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, workers, store.Stats().Blocks)
	for w := 0; w < workers; w++ {
		got := readBytes(t, store, uint64(w)*BlockSize, span)
		assert.Equal(t, bytes.Repeat([]byte{byte(w + 1)}, span), got)
	}
}
