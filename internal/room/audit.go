package room

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/adred-codev/gridlab/internal/grid"
	"github.com/adred-codev/gridlab/internal/protocol"
)

// SnapshotHook receives every accepted change batch for a room, after
// it has been applied to the canonical engine. It is a pure observation
// point — nothing reads a hook's output back into a room, so wiring one
// can never introduce persistence or reconciliation semantics the
// protocol doesn't already have (spec's Non-goals carve out the
// interface point, not a durable store behind it).
type SnapshotHook interface {
	Publish(roomID string, batch grid.ChangeBatch)
}

// NATSAuditHook mirrors every accepted batch onto a NATS subject for
// external observers — dashboards, audit trails. It never blocks a
// room: NATS publishes are fire-and-forget from the caller's
// perspective, and a nil or disconnected hook is simply a no-op.
type NATSAuditHook struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSAuditHook wraps an existing NATS connection. subjectPrefix is
// combined with the room id to form the publish subject, e.g.
// "gridlab.changes.<room-id>".
func NewNATSAuditHook(conn *nats.Conn, subjectPrefix string) *NATSAuditHook {
	return &NATSAuditHook{conn: conn, subjectPrefix: subjectPrefix}
}

func (h *NATSAuditHook) Publish(roomID string, batch grid.ChangeBatch) {
	if h == nil || h.conn == nil {
		return
	}
	payload, err := protocol.EncodeBatch(batch)
	if err != nil {
		return
	}
	_ = h.conn.Publish(fmt.Sprintf("%s.%s", h.subjectPrefix, roomID), payload)
}
