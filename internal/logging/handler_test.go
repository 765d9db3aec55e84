// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "Failed to parse JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("identityd", "1.0.0", "json", slog.LevelInfo, &buf)

	logger.Info("test message")

	entry := decode(t, &buf)
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "identityd", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Contains(t, entry, "time", "time field missing")
	assert.Contains(t, entry, "level", "level field missing")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("identityd", "1.0.0", "text", slog.LevelInfo, &buf)

	logger.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "test message", "Output missing message")
	assert.Contains(t, output, "identityd", "Output missing service")
}

func TestSetup_DefaultFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("identityd", "1.0.0", "", slog.LevelInfo, &buf)

	logger.Info("test message")

	decode(t, &buf)
}

func TestSetup_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("identityd", "1.0.0", "json", slog.LevelWarn, &buf)

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Equal(t, "kept", decode(t, &buf)["msg"])
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("identityd", "1.0.0", "json", slog.LevelInfo, &buf)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "traced message")

	entry := decode(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_NoTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("identityd", "1.0.0", "json", slog.LevelInfo, &buf)

	logger.Info("no trace message")

	entry := decode(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
	assert.NotContains(t, entry, "request_id")
}

func TestHandler_RequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("identityd", "1.0.0", "json", slog.LevelInfo, &buf)

	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestID(ctx))

	logger.With("component", "web").InfoContext(ctx, "handled")

	entry := decode(t, &buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "web", entry["component"])
}

func TestHandler_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("identityd", "1.0.0", "json", slog.LevelInfo, &buf)

	logger.Info("careless", "password", "Password1!", "refresh_token", "eyJ...", "email", "a@example.com")

	entry := decode(t, &buf)
	assert.Equal(t, Redacted, entry["password"])
	assert.Equal(t, Redacted, entry["refresh_token"])
	assert.Equal(t, "a@example.com", entry["email"])
	assert.NotContains(t, buf.String(), "Password1!")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	var buf bytes.Buffer
	logger := SetDefault("identityd", "2.0.0", "json", slog.LevelInfo, &buf)

	assert.Same(t, logger, slog.Default())
	slog.Info("through default")
	assert.Contains(t, buf.String(), `"msg":"through default"`)
	assert.Contains(t, buf.String(), `"service":"identityd"`)
}
