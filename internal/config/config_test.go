package config

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/property-import-service/internal/events"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 50, cfg.Import.MaxIssuesPerEntity)
	assert.Equal(t, 5, cfg.Import.PreviewRows)
	assert.Equal(t, int64(262144), cfg.Import.SyncMaxBytes)
	assert.Equal(t, 24*time.Hour, cfg.Import.JobCacheTTL)
	assert.InDelta(t, 0.8, cfg.Import.FuzzyThreshold, 1e-9)
	assert.Empty(t, cfg.Import.DateFormats)
	assert.Equal(t, "property-imports", cfg.Events.ImportTopic)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("IMPORT_DATE_FORMATS", "02/01/2006;2006-01-02")
	t.Setenv("IMPORT_MAX_ISSUES_PER_ENTITY", "10")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"02/01/2006", "2006-01-02"}, cfg.Import.DateFormats)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.GetKafkaBrokers())

	opts := cfg.Import.PipelineOptions()
	assert.Equal(t, 10, opts.Validator.MaxIssuesPerEntity)
	assert.Equal(t, cfg.Import.DateFormats, opts.DateFormats)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "invalid configuration")

	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("IMPORT_PREVIEW_ROWS", "many")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "failed to parse environment")
}

func TestEventConfig_CreateEventPublisher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	disabled := EventConfig{Enabled: false, Publisher: "kafka"}
	pub, err := disabled.CreateEventPublisher(logger)
	require.NoError(t, err)
	assert.IsType(t, &events.MockEventPublisher{}, pub)

	unknown := EventConfig{Enabled: true, Publisher: "carrier-pigeon"}
	pub, err = unknown.CreateEventPublisher(logger)
	require.NoError(t, err)
	assert.IsType(t, &events.MockEventPublisher{}, pub)
}
