package service

import (
	"context"
	"testing"
	"time"

	rediscommon "patientvitals/common/redis"
	"patientvitals/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const validPayload = `{"event_ts":"2024-01-01T00:00:00Z","patient_id":5,"heart_rate":80,"temperature":98.6,"bp_diastolic":70,"bp_systolic":120,"spo2":97}`

func testPipelineConfig() *config.PipelineConfig {
	cfg := &config.PipelineConfig{}
	cfg.Pipeline.Subscription = "vitals:raw"
	cfg.Pipeline.Table = "vitals"
	cfg.Pipeline.SourceType = config.SourceRedis
	cfg.Pipeline.ConsumerGroup = "vitals-pipeline-group"
	cfg.Pipeline.ConsumerName = "test-consumer"
	cfg.Pipeline.BatchSize = 10
	cfg.Pipeline.Block = 50 * time.Millisecond
	cfg.Pipeline.Workers = 1
	cfg.DropStats.Key = "vitals:drops"
	return cfg
}

func TestPipelineService_EndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "vitals"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "vitals"`).
		WithArgs("2024-01-01T00:00:00Z", int64(5), int64(80), 98.6, int64(70), int64(120), int64(97), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	cfg := testPipelineConfig()
	cfg.DropStats.Enabled = true

	svc, err := newPipelineService(cfg, db, rdb, nil, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	pubCtx := context.Background()
	_, err = rediscommon.PublishPayload(pubCtx, rdb, "vitals:raw", []byte(validPayload))
	require.NoError(t, err)
	_, err = rediscommon.PublishPayload(pubCtx, rdb, "vitals:raw", []byte(`{"patient_id":5}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap := svc.Stats().Snapshot()
		return snap.Accepted == 1 && snap.Dropped == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline service did not stop")
	}

	assert.Equal(t, "1", mr.HGet("vitals:drops", "missing_field"))

	require.NoError(t, svc.Stop(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPipelineService_StatusServerOnlyWhenAddressSet(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := testPipelineConfig()
	svc, err := newPipelineService(cfg, db, rdb, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, svc.app)
	assert.Nil(t, svc.pipeline.Drops)

	cfg.HTTP.Addr = ":0"
	svc, err = newPipelineService(cfg, db, rdb, nil, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, svc.app)
}

func TestNewPipelineService_RejectsBadWiring(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := testPipelineConfig()
	cfg.Pipeline.Table = "vitals; DROP TABLE x"
	_, err = newPipelineService(cfg, db, nil, nil, zap.NewNop())
	assert.Error(t, err)

	cfg = testPipelineConfig()
	cfg.Pipeline.SourceType = config.SourceMQTT
	_, err = newPipelineService(cfg, db, nil, nil, zap.NewNop())
	assert.EqualError(t, err, "mqtt source requires an MQTT client")
}

type fakeConnection struct{ connected bool }

func (f fakeConnection) IsConnected() bool { return f.connected }

func TestConnectionCheck(t *testing.T) {
	check := connectionCheck("mqtt", fakeConnection{connected: true})
	assert.Equal(t, "mqtt", check.Name)
	assert.NoError(t, check.Ping(context.Background()))

	check = connectionCheck("mqtt", fakeConnection{})
	assert.EqualError(t, check.Ping(context.Background()), "not connected")
}
