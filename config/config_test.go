package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsWhenEnvUnset(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Store.Host)
	assert.Equal(t, 5, cfg.Store.PoolSize)
	assert.Equal(t, 9, cfg.Schedule.PriceCrawlHour)
	assert.Equal(t, 10, cfg.Schedule.RedditCrawlHour)
	assert.Equal(t, 100.0, cfg.Risk.Threshold)
	assert.Equal(t, []string{"nvidia", "pcmasterrace"}, cfg.Reddit.Subreddits)
	assert.Equal(t, "", cfg.Redis.Host)
	assert.Equal(t, "", cfg.Archive.Bucket)
}

func TestLoad_ReadsOverridesFromEnvironment(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_POOL_SIZE", "20")
	t.Setenv("RISK_THRESHOLD", "150.5")
	t.Setenv("REDDIT_SUBREDDITS", "nvidia, amd , pcmasterrace")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Store.Host)
	assert.Equal(t, 20, cfg.Store.PoolSize)
	assert.Equal(t, 150.5, cfg.Risk.Threshold)
	assert.Equal(t, []string{"nvidia", "amd", "pcmasterrace"}, cfg.Reddit.Subreddits)
}

func TestStoreConfig_DSNFormatsAllFields(t *testing.T) {
	sc := StoreConfig{Host: "localhost", Port: "5432", User: "postgres", Password: "secret", Name: "gpu_market_etl", SSLMode: "disable"}
	dsn := sc.DSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=gpu_market_etl")
	assert.Contains(t, dsn, "sslmode=disable")
}
