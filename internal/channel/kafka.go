package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/airalab/xcm-robobank-prototype/internal/leasing/ports"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

// Record headers set by KafkaChannel.
const (
	HeaderSourceDomain = "source-domain"
	HeaderMessageID    = "message-id"
	HeaderQuality      = "quality"
)

// Topic is the inbox topic of domain d.
func Topic(prefix string, d domain.DomainID) string {
	return prefix + "." + d.String()
}

// KafkaChannel sends to the inbox topic of the destination domain. Each send
// waits for the broker ack, so a failure is reported synchronously.
type KafkaChannel struct {
	client *kgo.Client
	prefix string
	source domain.DomainID
}

func NewKafkaChannel(client *kgo.Client, prefix string, source domain.DomainID) *KafkaChannel {
	return &KafkaChannel{client: client, prefix: prefix, source: source}
}

var _ ports.Channel = (*KafkaChannel)(nil)

// Send produces payload to dest's topic. Ordered payloads are keyed by the
// source domain so they land on one partition and keep their order.
func (k *KafkaChannel) Send(ctx context.Context, dest domain.DomainID, payload []byte, quality ports.Quality) error {
	rec := &kgo.Record{
		Topic: Topic(k.prefix, dest),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: HeaderSourceDomain, Value: []byte(k.source.String())},
			{Key: HeaderMessageID, Value: []byte(uuid.NewString())},
			{Key: HeaderQuality, Value: []byte(quality.String())},
		},
	}
	if quality == ports.QualityOrdered {
		rec.Key = []byte(k.source.String())
	}
	if err := k.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("%w: produce to %s: %v", ErrUnreachable, rec.Topic, err)
	}
	return nil
}

// KafkaConsumer polls the local inbox topic and hands records to a Receiver.
// The client must be built with kgo.AutoCommitMarks: a record's offset is
// only committed after the receiver handled it, so a crash or a failing
// receiver never loses a message.
type KafkaConsumer struct {
	client     *kgo.Client
	receiver   Receiver
	dedup      Deduper
	logger     *slog.Logger
	retryBase  time.Duration
	retryLimit time.Duration
}

type ConsumerOption func(*KafkaConsumer)

func WithDeduper(d Deduper) ConsumerOption {
	return func(c *KafkaConsumer) {
		c.dedup = d
	}
}

func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *KafkaConsumer) {
		c.logger = logger
	}
}

// WithRetryBackoff bounds the wait between attempts at a record the receiver
// failed to handle. The wait doubles from base up to limit.
func WithRetryBackoff(base, limit time.Duration) ConsumerOption {
	return func(c *KafkaConsumer) {
		c.retryBase = base
		c.retryLimit = limit
	}
}

// NewKafkaConsumer wraps a client already subscribed to the inbox topic.
func NewKafkaConsumer(client *kgo.Client, receiver Receiver, opts ...ConsumerOption) *KafkaConsumer {
	c := &KafkaConsumer{
		client:     client,
		receiver:   receiver,
		logger:     slog.Default(),
		retryBase:  200 * time.Millisecond,
		retryLimit: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run polls until ctx is done or the client is closed.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.ErrorContext(ctx, "kafka fetch failed",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			if c.handle(ctx, rec) {
				c.client.MarkCommitRecords(rec)
			}
		})
	}
}

// handle delivers rec and reports whether it is done with. A record the
// receiver fails on is retried in place, which keeps partition order; it is
// given up only when ctx ends, leaving the offset uncommitted.
func (c *KafkaConsumer) handle(ctx context.Context, rec *kgo.Record) bool {
	var sourceHeader, id string
	for _, h := range rec.Headers {
		switch h.Key {
		case HeaderSourceDomain:
			sourceHeader = string(h.Value)
		case HeaderMessageID:
			id = string(h.Value)
		}
	}
	source, err := domain.ParseDomainID(sourceHeader)
	if err != nil {
		c.logger.WarnContext(ctx, "dropping record without source domain",
			"topic", rec.Topic,
			"offset", rec.Offset,
			"error", err,
		)
		return true
	}
	if c.dedup != nil {
		seen, err := c.dedup.Seen(ctx, id)
		if err != nil {
			c.logger.WarnContext(ctx, "dedup check failed, delivering anyway",
				"message_id", id,
				"error", err,
			)
		}
		if seen {
			c.logger.DebugContext(ctx, "dropping redelivered record", "message_id", id)
			return true
		}
	}

	wait := c.retryBase
	for attempt := 1; ; attempt++ {
		err := c.receiver.Receive(ctx, source, rec.Value)
		if err == nil {
			break
		}
		c.logger.WarnContext(ctx, "record not handled, retrying",
			"message_id", id,
			"offset", rec.Offset,
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		wait = min(wait*2, c.retryLimit)
	}

	if c.dedup != nil {
		if err := c.dedup.Mark(ctx, id); err != nil {
			c.logger.WarnContext(ctx, "failed to mark record as handled",
				"message_id", id,
				"error", err,
			)
		}
	}
	return true
}
