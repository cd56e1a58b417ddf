package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airalab/xcm-robobank-prototype/internal/platform/config"
)

func TestNoBrokers(t *testing.T) {
	client, err := NewProducer(config.KafkaConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)

	_, err = NewConsumer(config.KafkaConfig{}, "robobank.1")
	assert.Error(t, err)
}
