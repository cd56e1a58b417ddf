//go:build integration

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/airalab/xcm-robobank-prototype/internal/platform/config"
	"github.com/airalab/xcm-robobank-prototype/pkg/testutil/containers"
)

func TestEnsureTopicsIsIdempotent(t *testing.T) {
	rp := containers.GetManager().GetRedpanda(t)
	cfg := config.KafkaConfig{Brokers: rp.Brokers, Partitions: 3}

	client, err := NewProducer(cfg)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, EnsureTopics(ctx, client, cfg, "ensure.7"))
	require.NoError(t, EnsureTopics(ctx, client, cfg, "ensure.7"))

	details, err := kadm.NewClient(client).ListTopics(ctx, "ensure.7")
	require.NoError(t, err)
	assert.Len(t, details["ensure.7"].Partitions, 3)
}

func TestProducerAndConsumer(t *testing.T) {
	rp := containers.GetManager().GetRedpanda(t)
	cfg := config.KafkaConfig{Brokers: rp.Brokers, ConsumerGroup: "robobank-test"}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	producer, err := NewProducer(cfg)
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, EnsureTopics(ctx, producer, cfg, "roundtrip.1"))

	consumer, err := NewConsumer(cfg, "roundtrip.1")
	require.NoError(t, err)
	defer consumer.Close()

	require.NoError(t, producer.ProduceSync(ctx, &kgo.Record{Topic: "roundtrip.1", Value: []byte("ping")}).FirstErr())

	fetches := consumer.PollRecords(ctx, 1)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.Len(t, records, 1)
	assert.Equal(t, []byte("ping"), records[0].Value)
}
