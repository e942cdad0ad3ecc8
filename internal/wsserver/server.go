// Package wsserver accepts TCP connections, performs the WebSocket
// upgrade, and resolves each connection to a room keyed by the
// x-grid-id header (spec §4.8, §6).
package wsserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adred-codev/gridlab/internal/grid"
	"github.com/adred-codev/gridlab/internal/metrics"
	"github.com/adred-codev/gridlab/internal/protocol"
	"github.com/adred-codev/gridlab/internal/room"
)

const (
	headerGridID          = "x-grid-id"
	headerIdentification  = "x-identification"
	defaultHandshakeGrace = 10 * time.Second
)

// Server owns the TCP listener and the map of rooms it serves.
type Server struct {
	host              string
	port              int
	handshakeTimeout  time.Duration
	outboundQueueSize int
	logger            *zap.Logger
	metrics           *metrics.Registry
	hook              room.SnapshotHook
	debugEvents       bool

	roomsMu sync.Mutex
	rooms   map[string]*room.Room

	listener net.Listener
	wg       sync.WaitGroup
}

// Option configures optional Server fields.
type Option func(*Server)

// WithMetrics attaches a metrics registry; nil disables metrics.
func WithMetrics(r *metrics.Registry) Option {
	return func(s *Server) { s.metrics = r }
}

// WithAuditHook attaches a snapshot/audit hook shared by every room.
func WithAuditHook(h room.SnapshotHook) Option {
	return func(s *Server) { s.hook = h }
}

// WithHandshakeTimeout overrides the default upgrade deadline.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Server) { s.handshakeTimeout = d }
}

// WithOutboundQueueSize overrides the default per-client outbound
// channel capacity.
func WithOutboundQueueSize(n int) Option {
	return func(s *Server) { s.outboundQueueSize = n }
}

// WithDebugEventLogging subscribes every room's engine to a debug-level
// listener that logs each BatchChange event as it fires. This is the Go
// equivalent of the original CLI's println!("BatchChange: {:#?}")
// trace — a structured zap line instead of a raw print — and is meant
// to be enabled only when the configured log level is debug.
func WithDebugEventLogging(enabled bool) Option {
	return func(s *Server) { s.debugEvents = enabled }
}

// New constructs a Server bound to host:port. logger must not be nil.
func New(host string, port int, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		host:              host,
		port:              port,
		handshakeTimeout:  defaultHandshakeGrace,
		outboundQueueSize: 32,
		logger:            logger,
		rooms:             make(map[string]*room.Room),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and begins accepting connections in the
// background. It returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	if s.listener != nil {
		return errors.New("wsserver already started")
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = ln
	s.logger.Info("wsserver listening", zap.String("addr", addr))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()
	return nil
}

// Stop closes the listener and waits for every connection goroutine to
// exit.
func (s *Server) Stop() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			s.logger.Error("accept error", zap.Error(err))
			return
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConnection(ctx, c)
		}(conn)
	}
}

// resolveRoom returns the existing room for gridID, or creates one of
// default dimensions. Per spec §6, an unknown grid id is not an error —
// it is simply a fresh room.
func (s *Server) resolveRoom(gridID string) *room.Room {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	r, ok := s.rooms[gridID]
	if ok {
		return r
	}
	r = room.New(gridID, s.logger, s.hook)
	s.rooms[gridID] = r
	if s.metrics != nil {
		s.metrics.Connections.ActiveRooms.Set(float64(len(s.rooms)))
	}
	if s.debugEvents {
		r.Engine().Events().Subscribe(grid.EventBatchChange, func(_ grid.View, value grid.EventValue) {
			s.logger.Debug("grid event",
				zap.String("grid_id", gridID),
				zap.String("name", string(value.Name)),
				zap.String("origin", value.Origin),
			)
		})
	}
	s.logger.Info("room created", zap.String("grid_id", gridID))
	return r
}

func (s *Server) handleConnection(parent context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.handshakeTimeout)); err != nil {
		s.logger.Debug("set handshake deadline", zap.Error(err))
	}

	gridID, identification, err := s.upgrade(conn)
	if err != nil {
		s.logger.Debug("upgrade failed", zap.Error(err))
		if s.metrics != nil {
			s.metrics.Messages.DecodeErrors.Inc()
		}
		return
	}
	_ = conn.SetDeadline(time.Time{})

	r := s.resolveRoom(gridID)

	clientID := identification
	if clientID == "" {
		clientID = uuid.NewString()
	}

	outbound := make(chan []byte, s.outboundQueueSize)
	r.Join(clientID, outbound)
	defer r.CloseConnection(clientID)

	if s.metrics != nil {
		s.metrics.Connections.ActiveConnections.Inc()
		defer s.metrics.Connections.ActiveConnections.Dec()
	}

	if !s.sendSnapshot(conn, r) {
		return
	}

	connCtx, cancel := context.WithCancel(parent)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(connCtx, outbound, conn)
	}()

	s.readLoop(connCtx, conn, r, clientID)
	cancel()
	<-done
}

// upgrade performs the WebSocket handshake and extracts x-grid-id
// (required) and x-identification (optional). A missing x-grid-id
// rejects the handshake with 400, per spec §6.
func (s *Server) upgrade(conn net.Conn) (gridID, identification string, err error) {
	upgrader := ws.Upgrader{
		OnHeader: func(key, value []byte) error {
			switch {
			case bytes.EqualFold(key, []byte(headerGridID)):
				gridID = string(value)
			case bytes.EqualFold(key, []byte(headerIdentification)):
				identification = string(value)
			}
			return nil
		},
		OnBeforeUpgrade: func() (ws.HandshakeHeader, error) {
			if gridID == "" {
				return nil, ws.RejectConnectionError(
					ws.RejectionStatus(http.StatusBadRequest),
					ws.RejectionReason("missing "+headerGridID),
				)
			}
			return nil, nil
		},
	}

	_, err = upgrader.Upgrade(conn)
	return gridID, identification, err
}

func (s *Server) sendSnapshot(conn net.Conn, r *room.Room) bool {
	snapshot, err := protocol.EncodeSnapshot(r.Engine().View())
	if err != nil {
		s.logger.Error("encode initial snapshot", zap.Error(err))
		return false
	}
	if err := wsutil.WriteServerMessage(conn, ws.OpBinary, snapshot); err != nil {
		s.logger.Debug("send initial snapshot", zap.Error(err))
		return false
	}
	return true
}

func (s *Server) readLoop(ctx context.Context, conn net.Conn, r *room.Room, clientID string) {
	reader := wsutil.NewReader(conn, ws.StateServerSide)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		head, err := reader.NextFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("read frame error", zap.String("client", clientID), zap.Error(err))
			}
			return
		}

		switch head.OpCode {
		case ws.OpClose:
			_ = wsutil.WriteServerMessage(conn, ws.OpClose, nil)
			return
		case ws.OpPing:
			if err := wsutil.WriteServerMessage(conn, ws.OpPong, nil); err != nil {
				s.logger.Debug("write pong error", zap.Error(err))
				return
			}
		case ws.OpText, ws.OpBinary:
			payload := make([]byte, head.Length)
			if _, err := io.ReadFull(reader, payload); err != nil {
				s.logger.Debug("read message data error", zap.Error(err))
				return
			}
			s.handleInbound(r, clientID, payload)
		default:
			if _, err := io.CopyN(io.Discard, reader, int64(head.Length)); err != nil {
				s.logger.Debug("drain frame data error", zap.Error(err))
				return
			}
		}
	}
}

// handleInbound applies a client-submitted batch. Per spec §7, a
// decode failure or a hash_before mismatch is routine peer behavior —
// logged and dropped, never a connection-fatal error.
func (s *Server) handleInbound(r *room.Room, clientID string, payload []byte) {
	batch, err := protocol.DecodeBatch(payload)
	if err != nil {
		s.logger.Warn("dropping malformed frame", zap.String("client", clientID), zap.Error(err))
		if s.metrics != nil {
			s.metrics.Messages.DecodeErrors.Inc()
		}
		return
	}

	if err := r.ApplyInbound(clientID, batch); err != nil {
		switch {
		case errors.Is(err, grid.ErrDivergence):
			s.logger.Warn("dropping diverged batch", zap.String("client", clientID), zap.String("room", r.ID()))
			if s.metrics != nil {
				s.metrics.Messages.DivergenceDropped.Inc()
			}
		case errors.Is(err, grid.ErrMalformed):
			s.logger.Warn("dropping malformed batch", zap.String("client", clientID), zap.Error(err))
			if s.metrics != nil {
				s.metrics.Messages.DecodeErrors.Inc()
			}
		default:
			s.logger.Error("apply inbound batch", zap.String("client", clientID), zap.Error(err))
		}
		return
	}

	if s.metrics != nil {
		s.metrics.Messages.BatchesApplied.Inc()
	}
}

func (s *Server) writeLoop(ctx context.Context, outbound <-chan []byte, conn net.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-outbound:
			if !ok {
				return
			}
			if err := wsutil.WriteServerMessage(conn, ws.OpBinary, payload); err != nil {
				s.logger.Debug("write message error", zap.Error(err))
				return
			}
			if s.metrics != nil {
				s.metrics.Messages.BatchesBroadcast.Inc()
			}
		}
	}
}
