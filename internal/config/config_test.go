package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FIREBASE_PROJECT_ID", "hero-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "redis", cfg.Dispatch.ResponderSource)
	assert.Equal(t, 10.0, cfg.Dispatch.MaxAcceptKm)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, 3, cfg.Dispatch.SubmitsPerMinute)
	assert.Equal(t, "dispatch", cfg.Redis.Channel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("FIREBASE_PROJECT_ID", "hero-test")
	t.Setenv("DISPATCH_MAX_ACCEPT_KM", "7.5")
	t.Setenv("DISPATCH_NOTIFY_WORKERS", "8")
	t.Setenv("DISPATCH_REDIS_DB", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7.5, cfg.Dispatch.MaxAcceptKm)
	assert.Equal(t, 8, cfg.Dispatch.Workers)
	assert.Equal(t, 0, cfg.Redis.DB, "malformed ints fall back to the default")
}

func TestValidate(t *testing.T) {
	t.Setenv("FIREBASE_PROJECT_ID", "hero-test")
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing project", func(c *Config) { c.Firebase.ProjectID = "" }},
		{"unknown source", func(c *Config) { c.Dispatch.ResponderSource = "mongo" }},
		{"firebase source without rtdb", func(c *Config) {
			c.Dispatch.ResponderSource = "firebase"
			c.Firebase.DatabaseURL = ""
		}},
		{"zero accept distance", func(c *Config) { c.Dispatch.MaxAcceptKm = 0 }},
		{"no workers", func(c *Config) { c.Dispatch.Workers = 0 }},
		{"no submit budget", func(c *Config) { c.Dispatch.SubmitsPerMinute = 0 }},
		{"no ping burst", func(c *Config) { c.Location.PingBurst = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
