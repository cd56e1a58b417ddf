// Package channel carries leasing messages between domains.
//
// Bus is an in-process channel for tests and single-binary demos. The Kafka
// adapter maps each destination domain to a topic. Both deliver to a
// Receiver, normally the leasing service of the destination domain.
package channel

import (
	"context"
	"errors"

	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

// ErrUnreachable is returned by Send when the destination cannot take the
// payload right now.
var ErrUnreachable = errors.New("channel: destination unreachable")

// Receiver consumes inbound payloads. Nothing flows back to the sender. A
// non-nil error means the payload was not handled and must be delivered
// again; payloads the receiver chooses to drop return nil.
type Receiver interface {
	Receive(ctx context.Context, source domain.DomainID, payload []byte) error
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, source domain.DomainID, payload []byte) error

func (f ReceiverFunc) Receive(ctx context.Context, source domain.DomainID, payload []byte) error {
	return f(ctx, source, payload)
}
