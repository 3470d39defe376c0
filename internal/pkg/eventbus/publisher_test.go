package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogPublisherEncodesPayload(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := NewLogPublisher(zap.New(core))

	err := p.Publish(context.Background(), "billing.payment.completed", map[string]string{"orderId": "ord-1"})
	require.NoError(t, err)

	entries := logs.FilterMessage("event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "billing.payment.completed", fields["routing_key"])
	assert.Equal(t, `{"orderId":"ord-1"}`, fields["payload"])
}

func TestEncode(t *testing.T) {
	raw, err := encode([]byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(raw))

	_, err = encode(make(chan int))
	assert.Error(t, err)
}
