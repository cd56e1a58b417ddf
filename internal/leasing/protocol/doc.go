// Package protocol defines the four cross-domain leasing messages and their
// wire encoding.
//
// Messages use the protobuf wire format without a schema compiler:
//
//	1  kind       varint (1 NewOrder, 2 OrderAccepted, 3 OrderRejected, 4 OrderCompleted)
//	2  client     bytes
//	3  device     bytes
//	4  on         varint bool
//	5  request    embedded message:
//	     1 deadline  varint, unix milliseconds
//	     2 payload   bytes
//	     3 fee       varint
//	     4 device    bytes
//
// Decoders skip unknown fields so either side may add fields without a
// coordinated rollout.
package protocol
