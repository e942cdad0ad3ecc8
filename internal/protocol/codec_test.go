package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/gridlab/internal/grid"
)

func TestSnapshotRoundTrip(t *testing.T) {
	e := grid.NewEngine(4, 4)
	_, err := e.AddItem("a", 0, 0, 2, 2)
	require.NoError(t, err)

	encoded, err := EncodeSnapshot(e.View())
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(encoded)
	require.NoError(t, err)

	assert.Equal(t, e.View(), decoded)
}

func TestBatchRoundTripPreservesChangeTags(t *testing.T) {
	batch := grid.ChangeBatch{
		Changes: []grid.Change{
			grid.NewAdd(grid.Node{ID: "a", X: 0, Y: 0, W: 1, H: 1}),
			grid.NewMove(grid.Node{ID: "b", X: 0, Y: 0, W: 1, H: 1}, grid.Node{ID: "b", X: 1, Y: 0, W: 1, H: 1}),
			grid.NewRemove(grid.Node{ID: "c", X: 2, Y: 2, W: 1, H: 1}),
		},
		HashBefore: 111,
		HashAfter:  222,
	}

	encoded, err := EncodeBatch(batch)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"type":"Add"`)
	assert.Contains(t, string(encoded), `"type":"Move"`)
	assert.Contains(t, string(encoded), `"old_value"`)

	decoded, err := DecodeBatch(encoded)
	require.NoError(t, err)
	assert.Equal(t, batch, decoded)
}

func TestDecodeSnapshotMalformed(t *testing.T) {
	_, err := DecodeSnapshot([]byte("not json"))
	require.Error(t, err)
}

func TestDecodeBatchMalformedChangeType(t *testing.T) {
	_, err := DecodeBatch([]byte(`{"changes":[{"type":"Bogus","value":{}}],"hash_before":0,"hash_after":0}`))
	require.Error(t, err)
}
