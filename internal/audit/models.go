package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

// EventKind names a business event.
type EventKind string

const (
	EventDeviceRegistered   EventKind = "device.registered"
	EventDeviceStateChanged EventKind = "device.state_changed"
	EventDeviceAbandoned    EventKind = "device.abandoned"
	EventDeviceRemoved      EventKind = "device.removed"

	EventOrderNew       EventKind = "order.new"
	EventOrderAccepted  EventKind = "order.accepted"
	EventOrderRejected  EventKind = "order.rejected"
	EventOrderCancelled EventKind = "order.cancelled"
	EventOrderDone      EventKind = "order.done"
	EventOrderSent      EventKind = "order.sent"

	EventRemoteAccepted  EventKind = "remote.accepted"
	EventRemoteRejected  EventKind = "remote.rejected"
	EventRemoteCompleted EventKind = "remote.completed"
	EventRemoteReclaimed EventKind = "remote.reclaimed"

	EventMessageDropped EventKind = "message.dropped"
)

// Event is emitted from domain logic once a transition is committed. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID        `json:"id"`
	Kind      EventKind        `json:"kind"`
	Timestamp time.Time        `json:"timestamp"`
	Device    domain.AccountID `json:"device,omitempty"`
	Client    domain.AccountID `json:"client,omitempty"`
	Domain    domain.DomainID  `json:"domain,omitempty"`
	OrderID   uuid.UUID        `json:"order_id,omitempty"`
	State     string           `json:"state,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}
