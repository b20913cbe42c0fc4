package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessingStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to ProcessingStatus
		want     bool
	}{
		{StatusPending, StatusParsing, true},
		{StatusParsing, StatusChunking, true},
		{StatusChunking, StatusEmbedding, true},
		{StatusEmbedding, StatusIndexing, true},
		{StatusIndexing, StatusReady, true},
		{StatusPending, StatusChunking, false},
		{StatusEmbedding, StatusParsing, false},
		{StatusReady, StatusPending, false},
		{StatusParsing, StatusError, true},
		{StatusPending, StatusError, true},
		{StatusReady, StatusError, false},
		{StatusError, StatusParsing, false},
		{StatusError, StatusError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestProcessingStatus_Helpers(t *testing.T) {
	assert.True(t, StatusReady.CanReingest())
	assert.True(t, StatusError.CanReingest())
	assert.False(t, StatusIndexing.CanReingest())

	assert.True(t, StatusEmbedding.IsStage())
	assert.False(t, StatusPending.IsStage())
	assert.False(t, ProcessingStatus("bogus").IsValid())

	_, ok := StatusReady.Next()
	assert.False(t, ok)
}

func TestRagConfig_Validate(t *testing.T) {
	valid := DefaultRagConfig("hash")
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *RagConfig)
	}{
		{"overlap not below size", func(c *RagConfig) { c.ChunkOverlap = c.ChunkSize }},
		{"top k too large", func(c *RagConfig) { c.TopK = 51 }},
		{"top k zero", func(c *RagConfig) { c.TopK = 0 }},
		{"rerank without algorithm", func(c *RagConfig) { c.RerankEnabled = true }},
		{"unknown retriever", func(c *RagConfig) { c.RetrieverType = "keyword" }},
		{"graph without hops", func(c *RagConfig) { c.RetrieverType = RetrieverGraph }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultRagConfig("hash")
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
