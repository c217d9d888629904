package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JUDGE_POLL_INTERVAL", "")
	t.Setenv("MQ_BACKEND", "")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 500*time.Millisecond, cfg.Judge.PollInterval)
	assert.Equal(t, 20, cfg.Judge.MaxPollAttempts)
	assert.Equal(t, "submission.evaluated", cfg.MQ.EvaluatedChannel)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JUDGE_POLL_INTERVAL", "250ms")
	t.Setenv("JUDGE_MAX_POLL_ATTEMPTS", "7")
	t.Setenv("DB_USE_SSL", "true")
	t.Setenv("MQ_BACKEND", "RabbitMQ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg := LoadConfig()

	assert.Equal(t, 250*time.Millisecond, cfg.Judge.PollInterval)
	assert.Equal(t, 7, cfg.Judge.MaxPollAttempts)
	assert.True(t, cfg.Database.UseSSL)
	assert.Equal(t, "rabbitmq", cfg.MQ.Backend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}
