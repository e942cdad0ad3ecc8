// Package room implements the server-side aggregate of one canonical
// grid engine and the set of clients sharing it (spec §4.7).
package room

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/adred-codev/gridlab/internal/grid"
	"github.com/adred-codev/gridlab/internal/protocol"
)

// DefaultRows and DefaultCols are the dimensions of a room created for
// an unknown grid id (spec §6).
const (
	DefaultRows = 16
	DefaultCols = 12
)

// ClientHandle is the room's view of one connected client.
type ClientHandle struct {
	ID       string
	Outbound chan<- []byte
}

// Room holds exactly one grid engine and the registry of clients
// currently subscribed to its changes. The engine guards its own state
// with its own internal mutex (see grid.Engine); Room.mu guards only
// the clients map, so a Room method is never holding its own lock while
// it calls into the engine — that ordering is what lets the engine's
// single BatchChange handler (registered once in New, below) take
// Room.mu itself without risking a self-deadlock.
type Room struct {
	id     string
	engine *grid.Engine
	logger *zap.Logger
	hook   SnapshotHook

	subscriptionID uuid.UUID

	mu      sync.Mutex
	clients map[string]*ClientHandle
}

// New creates an empty room of default dimensions and subscribes its
// single broadcaster to the engine's event bus.
func New(id string, logger *zap.Logger, hook SnapshotHook) *Room {
	r := &Room{
		id:      id,
		engine:  grid.NewEngine(DefaultRows, DefaultCols),
		logger:  logger,
		hook:    hook,
		clients: make(map[string]*ClientHandle),
	}
	r.subscriptionID = r.engine.Events().Subscribe(grid.EventBatchChange, func(_ grid.View, value grid.EventValue) {
		r.forward(value)
	})
	return r
}

// ID returns the room's grid identifier.
func (r *Room) ID() string { return r.id }

// Engine returns the room's grid engine.
func (r *Room) Engine() *grid.Engine { return r.engine }

// Join registers a new client to receive future broadcasts.
func (r *Room) Join(clientID string, outbound chan<- []byte) *ClientHandle {
	handle := &ClientHandle{ID: clientID, Outbound: outbound}
	r.mu.Lock()
	r.clients[clientID] = handle
	r.mu.Unlock()
	return handle
}

// forward runs as the engine's event-bus handler, synchronously, while
// the engine still considers its bus borrowed. It must not call back
// into r.engine — it only reads the client registry and does
// non-blocking channel sends, per the re-entrancy rule in spec §5. The
// batch's Origin identifies the client that already has this change
// (empty for a batch applied without an origin); that client alone is
// excluded from the fan-out (spec §9 fixes a broadcast predicate bug in
// the source that had this backwards).
func (r *Room) forward(value grid.EventValue) {
	if value.BatchChange == nil {
		return
	}

	r.mu.Lock()
	peers := make([]*ClientHandle, 0, len(r.clients))
	for id, c := range r.clients {
		if id == value.Origin {
			continue
		}
		peers = append(peers, c)
	}
	r.mu.Unlock()

	if len(peers) == 0 {
		r.publishAudit(value)
		return
	}

	payload, err := protocol.EncodeBatch(*value.BatchChange)
	if err != nil {
		r.logf(zap.ErrorLevel, "encode batch for broadcast", zap.Error(err))
		return
	}

	for _, c := range peers {
		select {
		case c.Outbound <- payload:
		default:
			r.logf(zap.WarnLevel, "dropping slow client, outbound queue full", zap.String("client", c.ID))
			go r.CloseConnection(c.ID)
		}
	}

	r.publishAudit(value)
}

func (r *Room) publishAudit(value grid.EventValue) {
	if r.hook == nil || value.BatchChange == nil {
		return
	}
	r.hook.Publish(r.id, *value.BatchChange)
}

// ApplyInbound validates and applies a batch received from clientID.
// Per spec §4.8 point 4: if hash_before no longer matches the room's
// current view, the batch has diverged from a concurrent change
// already applied by another peer; it is dropped, not reconciled.
func (r *Room) ApplyInbound(clientID string, batch grid.ChangeBatch) error {
	current, err := r.engine.View().Hash()
	if err != nil {
		return err
	}
	if current != batch.HashBefore {
		return fmt.Errorf("room %q: batch from %q: %w", r.id, clientID, grid.ErrDivergence)
	}
	_, err = r.engine.ApplyChangesFrom(clientID, batch.Changes)
	return err
}

// CloseConnection removes a client. It is idempotent: closing an
// unknown or already-closed id is a no-op.
func (r *Room) CloseConnection(id string) {
	r.mu.Lock()
	delete(r.clients, id)
	r.mu.Unlock()
}

// ClientCount returns the number of clients currently joined.
func (r *Room) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Room) logf(level zapcore.Level, msg string, fields ...zap.Field) {
	if r.logger == nil {
		return
	}
	switch level {
	case zap.ErrorLevel:
		r.logger.Error(msg, fields...)
	case zap.WarnLevel:
		r.logger.Warn(msg, fields...)
	default:
		r.logger.Info(msg, fields...)
	}
}
