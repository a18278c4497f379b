package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturePublisher struct {
	routingKey string
	event      any
	err        error
}

func (c *capturePublisher) Publish(_ context.Context, routingKey string, event any) error {
	c.routingKey = routingKey
	c.event = event
	return c.err
}

func (c *capturePublisher) Close() error { return nil }

func TestEmitGroupBuildsEnvelope(t *testing.T) {
	pub := &capturePublisher{}
	emitter := NewAuditEmitter(pub, "audit.chat-sync", "studygroup-chat", "test", zap.NewNop().Sugar())
	user := "u1"

	emitter.EmitGroup(context.Background(), "INFO", "message sent", "req-1", &user, "g1")

	require.Equal(t, "audit.chat-sync", pub.routingKey)
	env, ok := pub.event.(AuditEnvelope)
	require.True(t, ok)
	require.Equal(t, "audit_log", env.EventType)
	require.Equal(t, "studygroup-chat", env.Service)
	require.Equal(t, "req-1", env.RequestID)
	require.Equal(t, &user, env.UserID)
	require.Equal(t, AuditPayload{Level: "INFO", Text: "message sent", GroupID: "g1"}, env.Payload)
}

func TestEmitSurvivesPublishFailure(t *testing.T) {
	pub := &capturePublisher{err: errors.New("down")}
	emitter := NewAuditEmitter(pub, "k", "s", "e", zap.NewNop().Sugar())

	require.NotPanics(t, func() { emitter.Emit(context.Background(), "WARN", "x", "r", nil) })
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	require.NotPanics(t, func() { emitter.Emit(context.Background(), "INFO", "x", "r", nil) })
}

func TestInitTracingWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "", "svc", "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
