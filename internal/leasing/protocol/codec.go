package protocol

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

// MaxOrderPayload bounds the opaque order payload accepted on decode.
const MaxOrderPayload = 64 * 1024

const (
	fieldKind    protowire.Number = 1
	fieldClient  protowire.Number = 2
	fieldDevice  protowire.Number = 3
	fieldOn      protowire.Number = 4
	fieldRequest protowire.Number = 5

	fieldReqDeadline protowire.Number = 1
	fieldReqPayload  protowire.Number = 2
	fieldReqFee      protowire.Number = 3
	fieldReqDevice   protowire.Number = 4
)

// Encode serializes m.
func Encode(m Message) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Kind()))

	switch msg := m.(type) {
	case NewOrder:
		b = appendString(b, fieldClient, string(msg.Client))
		b = protowire.AppendTag(b, fieldRequest, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeRequest(msg.Request))
	case OrderAccepted:
		b = appendString(b, fieldClient, string(msg.Client))
		b = appendString(b, fieldDevice, string(msg.Device))
	case OrderRejected:
		b = appendString(b, fieldClient, string(msg.Client))
		b = appendString(b, fieldDevice, string(msg.Device))
		b = appendBool(b, fieldOn, msg.On)
	case OrderCompleted:
		b = appendString(b, fieldClient, string(msg.Client))
		b = appendString(b, fieldDevice, string(msg.Device))
		b = appendBool(b, fieldOn, msg.On)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, m)
	}
	return b, nil
}

func encodeRequest(r models.OrderRequest) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldReqDeadline, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Deadline.UnixMilli()))
	if len(r.Payload) > 0 {
		b = protowire.AppendTag(b, fieldReqPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Payload)
	}
	b = protowire.AppendTag(b, fieldReqFee, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Fee))
	b = appendString(b, fieldReqDevice, string(r.Device))
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// raw holds the decoded top-level fields before they are shaped into a
// Message.
type raw struct {
	kind       uint64
	client     string
	device     string
	on         bool
	request    models.OrderRequest
	hasRequest bool
}

// Decode parses a message. Unknown fields are skipped; unknown kinds and
// missing identities are errors.
func Decode(b []byte) (Message, error) {
	var r raw
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldKind:
			return consumeVarint(typ, v, &r.kind)
		case fieldClient:
			return consumeString(typ, v, &r.client)
		case fieldDevice:
			return consumeString(typ, v, &r.device)
		case fieldOn:
			var x uint64
			n, err := consumeVarint(typ, v, &x)
			r.on = protowire.DecodeBool(x)
			return n, err
		case fieldRequest:
			if typ != protowire.BytesType {
				return 0, ErrFieldType
			}
			inner, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return 0, malformed(n)
			}
			req, err := decodeRequest(inner)
			if err != nil {
				return 0, err
			}
			r.request = req
			r.hasRequest = true
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	return r.message()
}

func (r *raw) message() (Message, error) {
	if r.client == "" {
		return nil, fmt.Errorf("%w: client", ErrMissingField)
	}
	client := domain.AccountID(r.client)
	device := domain.AccountID(r.device)

	switch Kind(r.kind) {
	case KindNewOrder:
		if !r.hasRequest {
			return nil, fmt.Errorf("%w: request", ErrMissingField)
		}
		if r.request.Device == "" {
			return nil, fmt.Errorf("%w: request device", ErrMissingField)
		}
		return NewOrder{Client: client, Request: r.request}, nil
	case KindOrderAccepted, KindOrderRejected, KindOrderCompleted:
		if device == "" {
			return nil, fmt.Errorf("%w: device", ErrMissingField)
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, r.kind)
	}

	switch Kind(r.kind) {
	case KindOrderAccepted:
		return OrderAccepted{Client: client, Device: device}, nil
	case KindOrderRejected:
		return OrderRejected{Client: client, Device: device, On: r.on}, nil
	default:
		return OrderCompleted{Client: client, Device: device, On: r.on}, nil
	}
}

func decodeRequest(b []byte) (models.OrderRequest, error) {
	var (
		req      models.OrderRequest
		deadline uint64
		fee      uint64
		device   string
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldReqDeadline:
			return consumeVarint(typ, v, &deadline)
		case fieldReqPayload:
			if typ != protowire.BytesType {
				return 0, ErrFieldType
			}
			p, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return 0, malformed(n)
			}
			if len(p) > MaxOrderPayload {
				return 0, ErrPayloadTooLarge
			}
			if len(p) > 0 {
				req.Payload = append([]byte(nil), p...)
			}
			return n, nil
		case fieldReqFee:
			return consumeVarint(typ, v, &fee)
		case fieldReqDevice:
			return consumeString(typ, v, &device)
		}
		return -1, nil
	})
	if err != nil {
		return models.OrderRequest{}, err
	}
	req.Deadline = time.UnixMilli(int64(deadline)).UTC()
	req.Fee = domain.Amount(fee)
	req.Device = domain.AccountID(device)
	return req, nil
}

// walk iterates the fields of b. fn consumes the value of a known field and
// returns its length, or -1 to have walk skip an unknown field.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return malformed(m)
			}
		}
		b = b[m:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte, out *uint64) (int, error) {
	if typ != protowire.VarintType {
		return 0, ErrFieldType
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, malformed(n)
	}
	*out = v
	return n, nil
}

func consumeString(typ protowire.Type, b []byte, out *string) (int, error) {
	if typ != protowire.BytesType {
		return 0, ErrFieldType
	}
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, malformed(n)
	}
	*out = v
	return n, nil
}

func malformed(n int) error {
	return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
}
