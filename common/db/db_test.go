package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleflower/otrs-updater/common/config"
	"github.com/scaleflower/otrs-updater/common/logger"
)

func TestWithMigrations(t *testing.T) {
	var s settings
	WithMigrations()(&s)
	assert.True(t, s.migrate)
}

func TestNew_UnreachableDatabaseFailsFast(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1,
			Database: "otrs",
			User:     "otrs",
			Password: "otrs",
			MaxConns: 2,
			MinConns: 0,
		},
	}

	start := time.Now()
	_, err := New(context.Background(), cfg, logger.New("error", "text"))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*connectTimeout)
}
