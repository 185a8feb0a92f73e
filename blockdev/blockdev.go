package blockdev

import (
	"fmt"
	"math"
	"sync"

	"memdev/errors"
	"memdev/logx"
	"memdev/monitoring"
)

// BlockSize is the fixed size of every materialized block in bytes.
const BlockSize = 4096

// DefaultCapacityHint is the number of block slots a store pre-reserves
// when the config does not say otherwise.
const DefaultCapacityHint = 4096

// StoreConfig controls slot reservation and the allocation budgets.
// Go cannot observe allocator failure, so the budgets stand in for the
// backend's out-of-memory condition: a zero budget means unbounded.
type StoreConfig struct {
	// CapacityHint is the number of block slots to pre-reserve.
	CapacityHint int

	// MaxBlocks bounds the number of block slots the store may ever hold.
	MaxBlocks int

	// MaxBytes bounds the total materialized (zero-filled) bytes.
	MaxBytes uint64
}

// DefaultStoreConfig returns the config an unconfigured device runs with.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{CapacityHint: DefaultCapacityHint}
}

// Store is a byte-addressable backend over an ordered, growable sequence of
// fixed-size blocks, allocated lazily on first touch. Block indices are
// stable once assigned and the sequence only ever grows.
//
// A single shared cursor is kept alongside the blocks; the store never
// advances it itself, it is only added to caller-supplied offsets before
// block translation.
type Store struct {
	mu           sync.Mutex
	blocks       [][]byte
	materialized uint64

	cursorMu sync.Mutex
	cursor   uint64

	maxBlocks int
	maxBytes  uint64
}

// NewStore creates an empty store with cursor 0. Construction fails when
// the capacity hint already exceeds the row budget; reservation is an
// optimization hint, not a correctness requirement, but a hint the budget
// can never satisfy is refused eagerly rather than degraded silently.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.MaxBlocks > 0 && cfg.CapacityHint > cfg.MaxBlocks {
		monitoring.RecordOOM(monitoring.OOMReserve)
		return nil, errors.NewError(errors.ErrCodeOutOfMemory,
			fmt.Sprintf(errors.ErrMsgCapacityReserve, cfg.CapacityHint, cfg.MaxBlocks))
	}
	hint := cfg.CapacityHint
	if hint < 0 {
		hint = 0
	}
	return &Store{
		blocks:    make([][]byte, 0, hint),
		maxBlocks: cfg.MaxBlocks,
		maxBytes:  cfg.MaxBytes,
	}, nil
}

// ensureBlock is the single growth path: it appends empty rows until row is
// a valid index, then zero-extends the row to exactly BlockSize. Append and
// resize are two independently failing allocation points; rows appended
// before a failure remain appended, so a retry resumes from the larger
// length. Returns the block size on success.
func (s *Store) ensureBlock(row int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row >= len(s.blocks) {
		fill := row - len(s.blocks) + 1
		for i := 0; i < fill; i++ {
			if s.maxBlocks > 0 && len(s.blocks) >= s.maxBlocks {
				logx.Error("BLOCKDEV", fmt.Sprintf("OOM creating row %d", len(s.blocks)))
				monitoring.RecordOOM(monitoring.OOMAppend)
				return 0, errors.NewError(errors.ErrCodeOutOfMemory,
					fmt.Sprintf(errors.ErrMsgRowBudget, len(s.blocks), s.maxBlocks))
			}
			s.blocks = append(s.blocks, nil)
		}
		monitoring.SetBlocksAllocated(len(s.blocks))
	}

	if len(s.blocks[row]) != BlockSize {
		if s.maxBytes > 0 && s.materialized+BlockSize > s.maxBytes {
			logx.Error("BLOCKDEV", fmt.Sprintf("OOM while allocating %d bytes for block %d", BlockSize, row))
			monitoring.RecordOOM(monitoring.OOMResize)
			return 0, errors.NewError(errors.ErrCodeOutOfMemory,
				fmt.Sprintf(errors.ErrMsgByteBudget, BlockSize, row, s.maxBytes))
		}
		blk := make([]byte, BlockSize)
		copy(blk, s.blocks[row])
		s.blocks[row] = blk
		s.materialized += BlockSize
		monitoring.SetBytesMaterialized(s.materialized)
	}
	return BlockSize, nil
}

// translate resolves an absolute offset plus the shared cursor into a
// (block row, in-block offset) pair. The cursor is read under its own lock
// and released before any block work begins.
func (s *Store) translate(offset uint64) (int, int, error) {
	s.cursorMu.Lock()
	cur := s.cursor
	s.cursorMu.Unlock()

	if offset > math.MaxUint64-cur {
		return 0, 0, errors.NewError(errors.ErrCodeOffsetOverflow,
			fmt.Sprintf(errors.ErrMsgOffsetOverflow, offset, cur))
	}
	total := offset + cur

	rowU := total / BlockSize
	if rowU > uint64(math.MaxInt) {
		return 0, 0, errors.NewError(errors.ErrCodeInvalidOffset,
			fmt.Sprintf(errors.ErrMsgRowTooLarge, rowU))
	}
	return int(rowU), int(total % BlockSize), nil
}

// clip bounds a transfer starting at blockOff so it never crosses the block
// boundary. Returns the exclusive end of the block byte range to touch.
func clip(blockOff, want int) (int, error) {
	if want > math.MaxInt-blockOff {
		return 0, errors.NewError(errors.ErrCodeOffsetOverflow,
			fmt.Sprintf(errors.ErrMsgLengthOverflow, blockOff, want))
	}
	end := BlockSize
	if tot := blockOff + want; tot < end {
		end = tot
	}
	return end, nil
}

// ReadAt copies bytes starting at offset (plus the shared cursor) into dst,
// bounded by the end of the addressed block. It returns the number of bytes
// transferred, which may be less than dst.Len() when the block boundary is
// hit; callers continue past a boundary by re-invoking with an advanced
// offset. A zero-capacity sink is a no-op, not an error.
func (s *Store) ReadAt(offset uint64, dst TransferSink) (int, error) {
	if dst == nil || dst.Len() == 0 {
		return 0, nil
	}
	row, blockOff, err := s.translate(offset)
	if err != nil {
		return 0, err
	}
	if _, err := s.ensureBlock(row); err != nil {
		return 0, err
	}
	end, err := clip(blockOff, dst.Len())
	if err != nil {
		return 0, err
	}

	// The blocks lock was dropped after ensureBlock; growth is monotonic,
	// so the row stays valid and fully sized across the gap.
	s.mu.Lock()
	err = dst.WriteSlice(s.blocks[row][blockOff:end])
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return end - blockOff, nil
}

// WriteAt is the mirror of ReadAt: same offset derivation, same growth,
// same end clipping, copying from src into the block instead of out of it.
func (s *Store) WriteAt(offset uint64, src TransferSource) (int, error) {
	if src == nil || src.Len() == 0 {
		return 0, nil
	}
	row, blockOff, err := s.translate(offset)
	if err != nil {
		return 0, err
	}
	if _, err := s.ensureBlock(row); err != nil {
		return 0, err
	}
	end, err := clip(blockOff, src.Len())
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	err = src.ReadSlice(s.blocks[row][blockOff:end])
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return end - blockOff, nil
}

// Cursor returns the shared cursor value.
func (s *Store) Cursor() uint64 {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	return s.cursor
}

// SetCursor replaces the shared cursor value. The store never advances the
// cursor on its own; positioning is entirely caller-defined.
func (s *Store) SetCursor(pos uint64) {
	s.cursorMu.Lock()
	s.cursor = pos
	s.cursorMu.Unlock()
}

// StoreStats is a point-in-time snapshot of the store's allocation state.
type StoreStats struct {
	Blocks            int    `json:"blocks"`
	BytesMaterialized uint64 `json:"bytes_materialized"`
	Cursor            uint64 `json:"cursor"`
}

func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	blocks := len(s.blocks)
	materialized := s.materialized
	s.mu.Unlock()
	return StoreStats{
		Blocks:            blocks,
		BytesMaterialized: materialized,
		Cursor:            s.Cursor(),
	}
}
