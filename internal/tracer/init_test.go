package tracer

import (
	"context"
	"strings"
	"testing"

	"ai-genbot-gateway/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestSetupDisabledLeavesGlobalProvider(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestResourceDescribesDeployment(t *testing.T) {
	cfg := &config.Config{
		App:      config.AppConfig{Environment: "production"},
		Telegram: config.TelegramConfig{Mode: "webhook"},
		Broker:   config.BrokerConfig{Kind: "nats", Queue: "genbot.jobs"},
	}

	set := newResource(cfg).Set()
	for key, want := range map[attribute.Key]string{
		"service.name":           serviceName,
		"deployment.environment": "production",
		"genbot.telegram.mode":   "webhook",
		"genbot.broker.kind":     "nats",
		"genbot.broker.queue":    "genbot.jobs",
	} {
		got, ok := set.Value(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got.AsString(), key)
	}
}

func TestSamplerRatioBounds(t *testing.T) {
	assert.True(t, strings.HasPrefix(sampler(1).Description(), "ParentBased{root:AlwaysOnSampler,"))
	assert.True(t, strings.HasPrefix(sampler(0).Description(), "ParentBased{root:AlwaysOffSampler,"))
	assert.True(t, strings.HasPrefix(sampler(0.25).Description(), "ParentBased{root:TraceIDRatioBased{0.25},"))
}
