package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("VITALS_SUBSCRIPTION", "vitals:raw")
	t.Setenv("VITALS_TABLE", "analytics.vitals")
}

func TestLoadPipeline_DefaultValues(t *testing.T) {
	setRequired(t)

	cfg, err := LoadPipeline()
	require.NoError(t, err)

	assert.Equal(t, "vitals:raw", cfg.Pipeline.Subscription)
	assert.Equal(t, "analytics.vitals", cfg.Pipeline.Table)
	assert.Equal(t, SourceRedis, cfg.Pipeline.SourceType)
	assert.Equal(t, "vitals-pipeline-group", cfg.Pipeline.ConsumerGroup)
	assert.Equal(t, expectedInstanceName(), cfg.Pipeline.ConsumerName)
	assert.Equal(t, int64(10), cfg.Pipeline.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.Block)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.PendingInterval)
	assert.Equal(t, time.Minute, cfg.Pipeline.ClaimMinIdle)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.False(t, cfg.DropStats.Enabled)
	assert.Equal(t, "vitals:drops", cfg.DropStats.Key)
	assert.Empty(t, cfg.HTTP.Addr)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, expectedInstanceName(), cfg.MQTT.ClientID)
	assert.False(t, cfg.MQTT.CleanSession)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func expectedInstanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "vitals-pipeline-1"
	}
	return "vitals-pipeline-" + host
}

func TestLoadPipeline_ConsumerNameStableAcrossLoads(t *testing.T) {
	setRequired(t)

	first, err := LoadPipeline()
	require.NoError(t, err)
	second, err := LoadPipeline()
	require.NoError(t, err)

	assert.Equal(t, first.Pipeline.ConsumerName, second.Pipeline.ConsumerName)
	assert.Equal(t, first.MQTT.ClientID, second.MQTT.ClientID)
}

func TestLoadPipeline_EnvironmentVariables(t *testing.T) {
	setRequired(t)
	t.Setenv("SOURCE_TYPE", "MQTT")
	t.Setenv("CONSUMER_NAME", "worker-7")
	t.Setenv("STREAM_BLOCK", "250ms")
	t.Setenv("PIPELINE_WORKERS", "16")
	t.Setenv("DROP_STATS_ENABLED", "true")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("MQTT_QOS", "2")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadPipeline()
	require.NoError(t, err)

	assert.Equal(t, SourceMQTT, cfg.Pipeline.SourceType)
	assert.Equal(t, "worker-7", cfg.Pipeline.ConsumerName)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.Block)
	assert.Equal(t, 16, cfg.Pipeline.Workers)
	assert.True(t, cfg.DropStats.Enabled)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, byte(2), cfg.MQTT.QoS)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadPipeline_MissingRequired(t *testing.T) {
	t.Setenv("VITALS_SUBSCRIPTION", "")
	t.Setenv("VITALS_TABLE", "vitals")
	_, err := LoadPipeline()
	assert.ErrorIs(t, err, ErrMissingSubscription)

	t.Setenv("VITALS_SUBSCRIPTION", "vitals:raw")
	t.Setenv("VITALS_TABLE", "  ")
	_, err = LoadPipeline()
	assert.ErrorIs(t, err, ErrMissingTable)
}

func TestLoadPipeline_InvalidValues(t *testing.T) {
	tests := []struct {
		env, value, msg string
	}{
		{"PIPELINE_WORKERS", "many", `invalid int for PIPELINE_WORKERS="many"`},
		{"PIPELINE_WORKERS", "0", "PIPELINE_WORKERS must be > 0"},
		{"SOURCE_TYPE", "kafka", `SOURCE_TYPE must be redis or mqtt, got "kafka"`},
		{"STREAM_BLOCK", "soon", `invalid duration for STREAM_BLOCK="soon"`},
		{"STREAM_CLAIM_MIN_IDLE", "0s", "STREAM_CLAIM_MIN_IDLE must be > 0"},
		{"DROP_STATS_ENABLED", "yes please", `invalid bool for DROP_STATS_ENABLED="yes please"`},
		{"MQTT_QOS", "3", `invalid QoS (0, 1 or 2) for MQTT_QOS="3"`},
	}

	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.env, tt.value)

			_, err := LoadPipeline()
			require.Error(t, err)
			assert.EqualError(t, err, tt.msg)
		})
	}
}

func TestLoadSimulator_DefaultValues(t *testing.T) {
	t.Setenv("VITALS_TOPIC", "vitals:raw")

	cfg, err := LoadSimulator()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Simulator.PatientCount)
	assert.Equal(t, time.Second, cfg.Simulator.Interval)
	assert.Equal(t, 0.1, cfg.Simulator.ErrorRate)
	assert.Equal(t, ErrorModeMixed, cfg.Simulator.ErrorMode)
	assert.Equal(t, MissingFieldDelete, cfg.Simulator.MissingFieldStyle)
	assert.Equal(t, SourceRedis, cfg.Simulator.Transport)
	assert.Equal(t, 30*time.Second, cfg.Simulator.PublishTimeout)
	assert.Regexp(t, `^vitals-simulator-`, cfg.MQTT.ClientID)
	assert.True(t, cfg.MQTT.CleanSession)
}

func TestLoadSimulator_FractionalInterval(t *testing.T) {
	t.Setenv("VITALS_TOPIC", "vitals:raw")
	t.Setenv("STREAM_INTERVAL", "0.25")
	t.Setenv("ERROR_MODE", " Bad_Type ")

	cfg, err := LoadSimulator()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Simulator.Interval)
	assert.Equal(t, ErrorModeBadType, cfg.Simulator.ErrorMode)
}

func TestLoadSimulator_Validation(t *testing.T) {
	tests := []struct {
		env, value, msg string
	}{
		{"PATIENT_COUNT", "0", "PATIENT_COUNT must be > 0"},
		{"PATIENT_COUNT", "thirty", `invalid int for PATIENT_COUNT="thirty"`},
		{"STREAM_INTERVAL", "-1", "STREAM_INTERVAL must be > 0"},
		{"ERROR_RATE", "1.5", "ERROR_RATE must be between 0.0 and 1.0"},
		{"ERROR_RATE", "NaN", "ERROR_RATE must be between 0.0 and 1.0"},
		{"ERROR_RATE", "lots", `invalid float for ERROR_RATE="lots"`},
		{"ERROR_MODE", "chaos", "ERROR_MODE must be one of: mixed|none|missing_field|null_field|negative_value|out_of_range|bad_type"},
		{"MISSING_FIELD_STYLE", "zero", "MISSING_FIELD_STYLE must be delete or null"},
		{"PUBLISH_TRANSPORT", "pubsub", `PUBLISH_TRANSPORT must be redis or mqtt, got "pubsub"`},
	}

	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			t.Setenv("VITALS_TOPIC", "vitals:raw")
			t.Setenv(tt.env, tt.value)

			_, err := LoadSimulator()
			assert.EqualError(t, err, tt.msg)
		})
	}
}

func TestLoadSimulator_RequiresTopic(t *testing.T) {
	t.Setenv("VITALS_TOPIC", "")

	_, err := LoadSimulator()
	assert.EqualError(t, err, "VITALS_TOPIC is required")
}
