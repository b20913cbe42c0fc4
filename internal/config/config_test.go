package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RETRIEVAL_MIN_RELEVANCE", "")
	t.Setenv("PIPELINE_MAX_ATTEMPTS", "")

	cfg := Load()

	assert.Equal(t, 0.35, cfg.Retrieval.MinRelevance)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, "gochannel", cfg.Queue.Driver)
	assert.Equal(t, int64(10*1024*1024), cfg.Storage.MaxUploadBytes)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RETRIEVAL_MIN_RELEVANCE", "0.5")
	t.Setenv("PIPELINE_EMBED_TIMEOUT", "90s")
	t.Setenv("QUEUE_MIRROR_EVENTS", "false")
	t.Setenv("PIPELINE_PARSE_WORKERS", "8")
	t.Setenv("GO_ENV", "production")

	cfg := Load()

	assert.Equal(t, 0.5, cfg.Retrieval.MinRelevance)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.EmbedTimeout)
	assert.False(t, cfg.Queue.MirrorEvents)
	assert.Equal(t, 8, cfg.Pipeline.ParseWorkers)
	assert.True(t, cfg.IsProduction())
}

func TestGetEnvHelpers_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_FLOAT", "nope")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DURATION", "10")

	assert.Equal(t, 7, getEnvAsInt("X_INT", 7))
	assert.Equal(t, 1.5, getEnvAsFloat("X_FLOAT", 1.5))
	assert.True(t, getEnvAsBool("X_BOOL", true))
	assert.Equal(t, time.Second, getEnvAsDuration("X_DURATION", time.Second))
}
