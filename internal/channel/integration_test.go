//go:build integration

package channel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/airalab/xcm-robobank-prototype/internal/channel"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/ports"
	"github.com/airalab/xcm-robobank-prototype/internal/platform/config"
	"github.com/airalab/xcm-robobank-prototype/internal/platform/kafka"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	"github.com/airalab/xcm-robobank-prototype/pkg/testutil/containers"
)

func TestRedisDeduper(t *testing.T) {
	ctx := context.Background()
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.FlushAll(ctx))

	d := channel.NewRedisDeduper(rc.Client, "", time.Minute)

	seen, err := d.Seen(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.Mark(ctx, "m1"))
	seen, err = d.Seen(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, seen)

	ttl, err := rc.Client.TTL(ctx, "robobank:dedup:m1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

type inbound struct {
	source  domain.DomainID
	payload string
}

func TestKafkaRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	rp := containers.GetManager().GetRedpanda(t)
	prefix := "robobank-test-" + time.Now().Format("150405.000000")

	producer, err := kgo.NewClient(kgo.SeedBrokers(rp.Brokers...), kgo.AllowAutoTopicCreation())
	require.NoError(t, err)
	defer producer.Close()

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(channel.Topic(prefix, 2)),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.AllowAutoTopicCreation(),
	)
	require.NoError(t, err)
	defer consumer.Close()

	got := make(chan inbound, 4)
	receiver := channel.ReceiverFunc(func(_ context.Context, source domain.DomainID, payload []byte) error {
		got <- inbound{source: source, payload: string(payload)}
		return nil
	})
	c := channel.NewKafkaConsumer(consumer, receiver, channel.WithDeduper(channel.NewMemoryDeduper(time.Minute)))
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.Run(runCtx) }()

	out := channel.NewKafkaChannel(producer, prefix, 1)
	require.NoError(t, out.Send(ctx, 2, []byte("first"), ports.QualityOrdered))
	require.NoError(t, out.Send(ctx, 2, []byte("second"), ports.QualityOrdered))

	for _, want := range []string{"first", "second"} {
		select {
		case m := <-got:
			assert.Equal(t, domain.DomainID(1), m.source)
			assert.Equal(t, want, m.payload)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	stop()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestKafkaConsumerCommitsOnlyHandledRecords(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	rp := containers.GetManager().GetRedpanda(t)
	prefix := "robobank-commit-" + time.Now().Format("150405.000000")
	cfg := config.KafkaConfig{Brokers: rp.Brokers, TopicPrefix: prefix, ConsumerGroup: prefix + "-group"}
	topic := channel.Topic(prefix, 2)

	producer, err := kafka.NewProducer(cfg)
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, kafka.EnsureTopics(ctx, producer, cfg, topic))
	require.NoError(t, channel.NewKafkaChannel(producer, prefix, 1).Send(ctx, 2, []byte("settle"), ports.QualityOrdered))

	// The first consumer never manages to handle the record.
	failing, err := kafka.NewConsumer(cfg, topic)
	require.NoError(t, err)
	attempted := make(chan struct{}, 1)
	first := channel.NewKafkaConsumer(failing, channel.ReceiverFunc(func(context.Context, domain.DomainID, []byte) error {
		select {
		case attempted <- struct{}{}:
		default:
		}
		return errors.New("store unavailable")
	}), channel.WithRetryBackoff(50*time.Millisecond, 50*time.Millisecond))
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- first.Run(runCtx) }()
	select {
	case <-attempted:
	case <-ctx.Done():
		t.Fatal("record never reached the first consumer")
	}
	stop()
	<-done
	failing.Close()

	// A fresh member of the same group gets the record again.
	healthy, err := kafka.NewConsumer(cfg, topic)
	require.NoError(t, err)
	defer healthy.Close()
	got := make(chan string, 1)
	second := channel.NewKafkaConsumer(healthy, channel.ReceiverFunc(func(_ context.Context, _ domain.DomainID, payload []byte) error {
		got <- string(payload)
		return nil
	}))
	runCtx, stop = context.WithCancel(ctx)
	defer stop()
	go func() { _ = second.Run(runCtx) }()

	select {
	case p := <-got:
		assert.Equal(t, "settle", p)
	case <-ctx.Done():
		t.Fatal("record was committed without being handled")
	}
}
