package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rbacabac/pkg/contextkeys"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(logrus.InfoLevel, &buf)

	logger.Debug("hidden")
	assert.Zero(t, buf.Len(), "debug is filtered at info level")

	logger.WithField("user_id", "u1").Info("decision made")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "decision made", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "u1", entry["user_id"])
}

func TestNewDiscardLogger(t *testing.T) {
	logger := NewDiscardLogger()
	hook := test.NewLocal(logger)

	logger.Info("dropped")
	require.Len(t, hook.AllEntries(), 1, "hooks still fire")
	assert.Equal(t, "dropped", hook.LastEntry().Message)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"verbose", logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.input))
		})
	}
}

func TestFromContext(t *testing.T) {
	fallback, fallbackHook := test.NewNullLogger()
	scoped, scopedHook := test.NewNullLogger()

	t.Run("fallback logger", func(t *testing.T) {
		FromContext(context.Background(), fallback).Info("hello")
		require.NotNil(t, fallbackHook.LastEntry())
		assert.Empty(t, fallbackHook.LastEntry().Data)
	})

	t.Run("context logger and request fields", func(t *testing.T) {
		ctx := WithLogger(context.Background(), scoped)
		ctx = contextkeys.WithRequestID(ctx, "req-1")
		ctx = contextkeys.WithUserID(ctx, "u1")

		FromContext(ctx, fallback).Info("scoped")
		entry := scopedHook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, "req-1", entry.Data["request_id"])
		assert.Equal(t, "u1", entry.Data["user_id"])
	})

	t.Run("no logger at all", func(t *testing.T) {
		assert.NotPanics(t, func() {
			FromContext(context.Background(), nil).Info("nowhere")
		})
	})
}
