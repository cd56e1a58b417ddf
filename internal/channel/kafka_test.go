package channel

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

func record(id, source, payload string) *kgo.Record {
	return &kgo.Record{
		Topic: "robobank.2",
		Value: []byte(payload),
		Headers: []kgo.RecordHeader{
			{Key: HeaderSourceDomain, Value: []byte(source)},
			{Key: HeaderMessageID, Value: []byte(id)},
		},
	}
}

func newTestConsumer(r Receiver, d Deduper) *KafkaConsumer {
	return NewKafkaConsumer(nil, r,
		WithDeduper(d),
		WithConsumerLogger(slog.New(slog.DiscardHandler)),
		WithRetryBackoff(time.Millisecond, time.Millisecond),
	)
}

func TestConsumerRetriesUntilHandled(t *testing.T) {
	ctx := context.Background()
	dedup := NewMemoryDeduper(time.Minute)
	inbox := &flakyReceiver{failures: 2}
	c := newTestConsumer(inbox, dedup)

	assert.True(t, c.handle(ctx, record("m1", "1", "settle")))
	assert.Equal(t, []string{"settle"}, inbox.payloads())

	seen, err := dedup.Seen(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, seen, "handled records are remembered")

	assert.True(t, c.handle(ctx, record("m1", "1", "settle")))
	assert.Len(t, inbox.payloads(), 1, "a redelivered record is skipped")
}

func TestConsumerLeavesRecordUncommittedOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dedup := NewMemoryDeduper(time.Minute)
	c := newTestConsumer(ReceiverFunc(func(context.Context, domain.DomainID, []byte) error {
		cancel()
		return assert.AnError
	}), dedup)

	assert.False(t, c.handle(ctx, record("m1", "1", "settle")))
	seen, err := dedup.Seen(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, seen, "a record that was never handled stays eligible")
}

func TestConsumerSkipsRecordWithoutSource(t *testing.T) {
	inbox := &collector{}
	c := newTestConsumer(inbox, NewMemoryDeduper(time.Minute))

	assert.True(t, c.handle(context.Background(), record("m1", "", "x")))
	assert.Empty(t, inbox.payloads())
}
