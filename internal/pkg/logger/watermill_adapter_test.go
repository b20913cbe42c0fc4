package logger

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
)

type recordingLogger struct {
	entries []map[string]interface{}
	levels  []string
}

func (r *recordingLogger) record(level string, details map[string]interface{}) {
	r.levels = append(r.levels, level)
	r.entries = append(r.entries, details)
}

func (r *recordingLogger) Debug(_, _ string, d map[string]interface{}) { r.record("debug", d) }
func (r *recordingLogger) Info(_, _ string, d map[string]interface{})  { r.record("info", d) }
func (r *recordingLogger) Warn(_, _ string, d map[string]interface{})  { r.record("warn", d) }
func (r *recordingLogger) Error(_, _ string, d map[string]interface{}) { r.record("error", d) }
func (r *recordingLogger) Sync() error                                 { return nil }

func TestWatermillAdapter_MergesFields(t *testing.T) {
	rec := &recordingLogger{}
	adapter := NewWatermillAdapter(rec).With(watermill.LogFields{"topic": "pipeline.parse"})

	adapter.Info("subscribed", watermill.LogFields{"consumer": "parse"})
	adapter.Error("publish failed", errors.New("boom"), nil)

	assert.Equal(t, []string{"info", "error"}, rec.levels)
	assert.Equal(t, "pipeline.parse", rec.entries[0]["topic"])
	assert.Equal(t, "parse", rec.entries[0]["consumer"])
	assert.EqualError(t, rec.entries[1]["error"].(error), "boom")
}
