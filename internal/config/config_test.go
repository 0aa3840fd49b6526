package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "deskbot", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
	assert.Equal(t, TelegramModePolling, cfg.Telegram.Mode)
	assert.Empty(t, cfg.Roles.AdminIDs)
	assert.Equal(t, []string{"Цех 1", "Цех 2", "Склад", "Офис"}, cfg.Catalog.Locations)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL())
	assert.Equal(t, 10*time.Second, cfg.Worker.JobTimeout())
	assert.Equal(t, 15*time.Minute, cfg.Export.LinkTTL())
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
}

func TestLoadParsesIDSets(t *testing.T) {
	// Commas and whitespace both separate; junk entries are skipped.
	t.Setenv("ADMIN_IDS", "1, 2 3x 4")
	t.Setenv("TECH_IDS", "10,11")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4}, cfg.Roles.AdminIDs)
	assert.Equal(t, []int64{10, 11}, cfg.Roles.TechnicianIDs)
}

func TestLoadParsesCatalog(t *testing.T) {
	t.Setenv("CATALOG_LOCATIONS", " Цех 5 ,, Крыша ")
	t.Setenv("CATALOG_EQUIPMENT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"Цех 5", "Крыша"}, cfg.Catalog.Locations)
	assert.Equal(t, []string{"Станок", "Сушилка", "Компрессор", "Электрика"}, cfg.Catalog.Equipment)
}

func TestLoadRejectsBadMode(t *testing.T) {
	t.Setenv("TELEGRAM_MODE", "carrier-pigeon")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_MODE")
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "abc")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_DB")
}

func TestDurationsDisableAtZero(t *testing.T) {
	assert.Zero(t, SessionConfig{TTLMinutes: 0}.TTL())
	assert.Zero(t, WorkerConfig{JobTimeoutSeconds: -1}.JobTimeout())
	assert.Zero(t, AppConfig{RequestTimeoutSeconds: 0}.RequestTimeout())
	// Export links always get a floor.
	assert.Equal(t, 15*time.Minute, ExportConfig{LinkTTLMinutes: 0}.LinkTTL())
}
