package blockdev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferSinkRejectsOversizedCopy(t *testing.T) {
	sink := NewBufferSink(make([]byte, 4))
	require.Equal(t, 4, sink.Len())

	err := sink.WriteSlice(make([]byte, 8))
	assert.Error(t, err)

	err = sink.WriteSlice([]byte{1, 2})
	assert.NoError(t, err)
}

func TestBufferSourceFillsExactly(t *testing.T) {
	src := NewBufferSource([]byte{1, 2, 3, 4})
	require.Equal(t, 4, src.Len())

	dst := make([]byte, 3)
	require.NoError(t, src.ReadSlice(dst))
	assert.Equal(t, []byte{1, 2, 3}, dst)

	err := src.ReadSlice(make([]byte, 5))
	assert.Error(t, err)
}
