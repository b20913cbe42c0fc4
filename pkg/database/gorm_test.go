package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

func TestPoolConfig_Defaults(t *testing.T) {
	cfg := PoolConfig{MaxOpenConns: 5}.withDefaults()

	assert.Equal(t, 10, cfg.MaxIdleConns)
	assert.Equal(t, 5, cfg.MaxOpenConns)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, parseLogLevel("silent"))
	assert.Equal(t, logger.Info, parseLogLevel("INFO"))
	assert.Equal(t, logger.Error, parseLogLevel("error"))
	assert.Equal(t, logger.Warn, parseLogLevel(""))
}
