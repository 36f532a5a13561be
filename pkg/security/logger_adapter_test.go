package security

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kevin07696/squareup-service/internal/domain/ports"
)

func TestZapLoggerAdapter_ConvertsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapter := NewZapLogger(zap.New(core)).Named("square")

	adapter.Error("Square API Error: boom",
		ports.String("endpoint", "payments"),
		ports.Int64("amount", 2999),
		ports.Err(errors.New("boom")),
	)
	adapter.Debug("debug line")

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "square", entry.LoggerName)
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)

	fields := entry.ContextMap()
	assert.Equal(t, "payments", fields["endpoint"])
	assert.Equal(t, int64(2999), fields["amount"])
	assert.Equal(t, "boom", fields["error"])
}
