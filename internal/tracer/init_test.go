package tracer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitTracer_DisabledIsNoop(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")

	shutdown := InitTracer()
	assert.NoError(t, shutdown(context.Background()))
}

func TestSampleRatio(t *testing.T) {
	t.Setenv("OTEL_SAMPLE_RATIO", "0.25")
	assert.Equal(t, 0.25, sampleRatio())

	t.Setenv("OTEL_SAMPLE_RATIO", "7")
	assert.Equal(t, 1.0, sampleRatio())

	t.Setenv("OTEL_SAMPLE_RATIO", "")
	assert.Equal(t, 1.0, sampleRatio())
}
