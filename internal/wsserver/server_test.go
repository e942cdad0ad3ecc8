package wsserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/adred-codev/gridlab/internal/grid"
	"github.com/adred-codev/gridlab/internal/protocol"
)

func startTestServer(t *testing.T) (addr string, stop func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	s := New("127.0.0.1", port, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	return fmt.Sprintf("127.0.0.1:%d", port), func() {
		cancel()
		s.Stop()
	}
}

func dial(t *testing.T, addr, gridID string) net.Conn {
	t.Helper()
	url := "ws://" + addr + "/"
	dialer := ws.Dialer{
		Header: ws.HandshakeHeaderHTTP(http.Header{"X-Grid-Id": []string{gridID}}),
	}
	conn, _, _, err := dialer.Dial(context.Background(), url)
	require.NoError(t, err)
	return conn
}

func TestHandshakeSendsInitialSnapshot(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn := dial(t, addr, "room-a")
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgs, err := wsutil.ReadServerMessage(conn, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	view, err := protocol.DecodeSnapshot(msgs[0].Payload)
	require.NoError(t, err)
	require.Equal(t, 16, view.Rows)
	require.Equal(t, 12, view.Cols)
}

func TestHandshakeRejectsMissingGridID(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	dialer := ws.Dialer{}
	_, resp, _, err := dialer.Dial(context.Background(), "ws://"+addr+"/")
	require.Error(t, err)
	if resp != nil {
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
}

func TestHandshakeReusesRoomAcrossConnections(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	a := dial(t, addr, "shared")
	defer a.Close()
	_ = a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := wsutil.ReadServerMessage(a, nil)
	require.NoError(t, err)

	b := dial(t, addr, "shared")
	defer b.Close()
	_ = b.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = wsutil.ReadServerMessage(b, nil)
	require.NoError(t, err)

	// A batch sent by a must reach b, which only happens if both
	// connections joined the same room.
	emptyHash, err := grid.NewEngine(16, 12).View().Hash()
	require.NoError(t, err)
	payload, err := protocol.EncodeBatch(grid.ChangeBatch{
		Changes:    []grid.Change{grid.NewAdd(grid.Node{ID: "0", X: 0, Y: 0, W: 1, H: 1})},
		HashBefore: emptyHash,
	})
	require.NoError(t, err)
	require.NoError(t, wsutil.WriteClientMessage(a, ws.OpBinary, payload))

	_ = b.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgs, err := wsutil.ReadServerMessage(b, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	got, err := protocol.DecodeBatch(msgs[0].Payload)
	require.NoError(t, err)
	require.Len(t, got.Changes, 1)
}

func TestDebugEventLoggingLogsBatchChange(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	s := New("127.0.0.1", port, logger, WithDebugEventLogging(true))
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.Stop()
	}()
	require.NoError(t, s.Start(ctx))

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn := dial(t, addr, "debug-room")
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = wsutil.ReadServerMessage(conn, nil)
	require.NoError(t, err)

	r := s.resolveRoom("debug-room")
	_, err = r.Engine().AddItem("item-1", 0, 0, 1, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, entry := range logs.All() {
			if entry.Message == "grid event" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	found := false
	for _, entry := range logs.FilterMessage("grid event").All() {
		fields := entry.ContextMap()
		if fields["grid_id"] == "debug-room" && fields["name"] == string(grid.EventBatchChange) {
			found = true
		}
	}
	require.True(t, found)
}
