package room

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/gridlab/internal/grid"
	"github.com/adred-codev/gridlab/internal/protocol"
)

func TestBroadcastExcludesOrigin(t *testing.T) {
	r := New("test", nil, nil)

	x := make(chan []byte, 4)
	y := make(chan []byte, 4)
	z := make(chan []byte, 4)
	r.Join("x", x)
	r.Join("y", y)
	r.Join("z", z)

	currentHash, err := r.Engine().View().Hash()
	require.NoError(t, err)
	batch := grid.ChangeBatch{
		Changes:    []grid.Change{grid.NewAdd(grid.Node{ID: "0", X: 0, Y: 0, W: 1, H: 1})},
		HashBefore: currentHash,
	}
	require.NoError(t, r.ApplyInbound("x", batch))

	select {
	case payload := <-y:
		batch, decodeErr := protocol.DecodeBatch(payload)
		require.NoError(t, decodeErr)
		assert.Len(t, batch.Changes, 1)
	case <-time.After(time.Second):
		t.Fatal("y did not receive broadcast")
	}

	select {
	case payload := <-z:
		_, decodeErr := protocol.DecodeBatch(payload)
		require.NoError(t, decodeErr)
	case <-time.After(time.Second):
		t.Fatal("z did not receive broadcast")
	}

	select {
	case <-x:
		t.Fatal("x should not receive its own broadcast back from forward()")
	default:
	}
}

func TestCloseConnectionIsIdempotent(t *testing.T) {
	r := New("test", nil, nil)
	out := make(chan []byte, 1)
	r.Join("a", out)
	assert.Equal(t, 1, r.ClientCount())

	r.CloseConnection("a")
	assert.Equal(t, 0, r.ClientCount())

	assert.NotPanics(t, func() { r.CloseConnection("a") })
	assert.NotPanics(t, func() { r.CloseConnection("never-joined") })
}

func TestApplyInboundRejectsDivergence(t *testing.T) {
	r := New("test", nil, nil)
	out := make(chan []byte, 1)
	r.Join("a", out)

	stale := grid.ChangeBatch{
		Changes:    []grid.Change{grid.NewAdd(grid.Node{ID: "z", X: 0, Y: 0, W: 1, H: 1})},
		HashBefore: 424242,
		HashAfter:  0,
	}

	err := r.ApplyInbound("a", stale)
	require.Error(t, err)
	assert.True(t, errors.Is(err, grid.ErrDivergence))
	assert.Empty(t, r.Engine().GetNodes())
}

func TestApplyInboundAcceptsMatchingHash(t *testing.T) {
	r := New("test", nil, nil)

	currentHash, err := r.Engine().View().Hash()
	require.NoError(t, err)

	n := grid.Node{ID: "z", X: 0, Y: 0, W: 1, H: 1}
	batch := grid.ChangeBatch{
		Changes:    []grid.Change{grid.NewAdd(n)},
		HashBefore: currentHash,
	}

	err = r.ApplyInbound("client", batch)
	require.NoError(t, err)
	assert.Equal(t, []grid.Node{n}, r.Engine().GetNodes())
}

func TestDefaultRoomDimensions(t *testing.T) {
	r := New("unknown-grid", nil, nil)
	v := r.Engine().View()
	assert.Equal(t, DefaultRows, v.Rows)
	assert.Equal(t, DefaultCols, v.Cols)
}
