package protocol

import (
	"fmt"

	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

// Kind tags a message on the wire.
type Kind uint8

const (
	KindNewOrder       Kind = 1
	KindOrderAccepted  Kind = 2
	KindOrderRejected  Kind = 3
	KindOrderCompleted Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindNewOrder:
		return "new_order"
	case KindOrderAccepted:
		return "order_accepted"
	case KindOrderRejected:
		return "order_rejected"
	case KindOrderCompleted:
		return "order_completed"
	default:
		return fmt.Sprintf("kind_%d", uint8(k))
	}
}

// ForDevice reports whether the message is addressed to the device role.
// Every other kind is a notice for the client role.
func (k Kind) ForDevice() bool {
	return k == KindNewOrder
}

// Message is one of NewOrder, OrderAccepted, OrderRejected, OrderCompleted.
type Message interface {
	Kind() Kind
}

// NewOrder asks the device domain to accept an order. The receiver fills the
// origin domain from the message source.
type NewOrder struct {
	Client  domain.AccountID
	Request models.OrderRequest
}

func (NewOrder) Kind() Kind { return KindNewOrder }

// OrderAccepted tells the client domain the device confirmed the order.
type OrderAccepted struct {
	Client domain.AccountID
	Device domain.AccountID
}

func (OrderAccepted) Kind() Kind { return KindOrderAccepted }

// OrderRejected tells the client domain the order is gone without being
// fulfilled. On carries the device's resulting power state.
type OrderRejected struct {
	Client domain.AccountID
	Device domain.AccountID
	On     bool
}

func (OrderRejected) Kind() Kind { return KindOrderRejected }

// OrderCompleted tells the client domain the order was fulfilled.
type OrderCompleted struct {
	Client domain.AccountID
	Device domain.AccountID
	On     bool
}

func (OrderCompleted) Kind() Kind { return KindOrderCompleted }
