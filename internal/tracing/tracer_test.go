package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNewProvider_Disabled hands out a working no-op tracer.
func TestNewProvider_Disabled(t *testing.T) {
	t.Parallel()

	provider, err := NewProvider(context.Background(), DefaultConfig())
	require.NoError(t, err)
	require.False(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), SpanRun)
	require.False(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

// TestNewProvider_Stdout exports ended spans on shutdown.
func TestNewProvider_Stdout(t *testing.T) {
	var output bytes.Buffer

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Output = &output

	provider, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), SpanArtifact)
	require.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
	require.Contains(t, output.String(), SpanArtifact)
}

// TestNewProvider_UnsupportedExporter rejects unknown exporters.
func TestNewProvider_UnsupportedExporter(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter = "jaeger"

	_, err := NewProvider(context.Background(), cfg)
	require.ErrorIs(t, err, errUnsupportedExporter)
}
