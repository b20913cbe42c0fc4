package pipeline

import (
	"time"

	"docrag-be/internal/config"
	"docrag-be/internal/entity"
	"docrag-be/pkg/events"
)

type Config struct {
	Workers  map[entity.ProcessingStatus]int
	Timeouts map[entity.ProcessingStatus]time.Duration

	MaxAttempts      int
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	EmbedBatchSize   int
	LeaseDuration    time.Duration
	RecoveryInterval time.Duration
	StaleQueuedAfter time.Duration
	// RecoveryBatch bounds how many rows a single sweep inspects.
	RecoveryBatch int
}

func ConfigFrom(c config.PipelineConfig) Config {
	return Config{
		Workers: map[entity.ProcessingStatus]int{
			entity.StatusParsing:   c.ParseWorkers,
			entity.StatusChunking:  c.ChunkWorkers,
			entity.StatusEmbedding: c.EmbedWorkers,
			entity.StatusIndexing:  c.IndexWorkers,
		},
		Timeouts: map[entity.ProcessingStatus]time.Duration{
			entity.StatusParsing:   c.ParseTimeout,
			entity.StatusChunking:  c.ChunkTimeout,
			entity.StatusEmbedding: c.EmbedTimeout,
			entity.StatusIndexing:  c.IndexTimeout,
		},
		MaxAttempts:      c.MaxAttempts,
		BackoffInitial:   c.BackoffInitial,
		BackoffMax:       c.BackoffMax,
		EmbedBatchSize:   c.EmbedBatchSize,
		LeaseDuration:    c.LeaseDuration,
		RecoveryInterval: c.RecoveryInterval,
		StaleQueuedAfter: c.StaleQueuedAfter,
		RecoveryBatch:    100,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = 500 * time.Millisecond
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = c.BackoffInitial
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 16
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 15 * time.Minute
	}
	if c.RecoveryInterval <= 0 {
		c.RecoveryInterval = 30 * time.Second
	}
	if c.StaleQueuedAfter <= 0 {
		c.StaleQueuedAfter = 2 * time.Minute
	}
	if c.RecoveryBatch <= 0 {
		c.RecoveryBatch = 100
	}
	return c
}

func (c Config) workersFor(stage entity.ProcessingStatus) int {
	if n := c.Workers[stage]; n > 0 {
		return n
	}
	return 1
}

func (c Config) timeoutFor(stage entity.ProcessingStatus) time.Duration {
	if d := c.Timeouts[stage]; d > 0 {
		return d
	}
	return 2 * time.Minute
}

var stageTopics = map[entity.ProcessingStatus]string{
	entity.StatusParsing:   events.TopicParseJobs,
	entity.StatusChunking:  events.TopicChunkJobs,
	entity.StatusEmbedding: events.TopicEmbedJobs,
	entity.StatusIndexing:  events.TopicIndexJobs,
}

var stageEvents = map[entity.ProcessingStatus]string{
	entity.StatusParsing:   events.DocumentParsed,
	entity.StatusChunking:  events.DocumentChunked,
	entity.StatusEmbedding: events.DocumentEmbedded,
	entity.StatusIndexing:  events.DocumentIndexed,
}
