package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"patientvitals/common/config"

	"github.com/spf13/viper"
)

// Source types
const (
	SourceRedis = "redis"
	SourceMQTT  = "mqtt"
)

var (
	ErrMissingSubscription = errors.New("VITALS_SUBSCRIPTION is required")
	ErrMissingTable        = errors.New("VITALS_TABLE is required")
)

// PipelineConfig streaming job settings. Built once by LoadPipeline and
// passed down; nothing reads the environment after that.
type PipelineConfig struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig
	Log      config.LogConfig

	Pipeline struct {
		Subscription string // stream key (redis) or topic (mqtt)
		Table        string // table or schema.table
		SourceType   string // redis|mqtt

		ConsumerGroup   string
		ConsumerName    string
		BatchSize       int64
		Block           time.Duration
		PendingInterval time.Duration
		ClaimMinIdle    time.Duration
		Workers         int
	}

	DropStats struct {
		Enabled bool
		Key     string
	}

	HTTP struct {
		Addr string // empty disables the status server
	}
}

// newViper reads env vars and an optional config.yaml
func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

func setCommonDefaults(v *viper.Viper) {
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "postgres")
	v.SetDefault("db_name", "vitals")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("db_max_conns", "10")
	v.SetDefault("db_max_idle", "5")

	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", "0")

	v.SetDefault("mqtt_broker", "tcp://localhost:1883")
	v.SetDefault("mqtt_username", "")
	v.SetDefault("mqtt_password", "")
	v.SetDefault("mqtt_qos", "1")
	v.SetDefault("mqtt_connect_timeout", "10s")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// LoadPipeline loads and validates the streaming job configuration
func LoadPipeline() (*PipelineConfig, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	setCommonDefaults(v)

	v.SetDefault("source_type", SourceRedis)
	v.SetDefault("consumer_group", "vitals-pipeline-group")
	// stable across restarts so this instance finds its own pending entries
	v.SetDefault("consumer_name", instanceName("vitals-pipeline"))
	v.SetDefault("stream_batch_size", "10")
	v.SetDefault("stream_block", "5s")
	v.SetDefault("stream_pending_interval", "30s")
	v.SetDefault("stream_claim_min_idle", "60s")
	v.SetDefault("pipeline_workers", "4")
	v.SetDefault("drop_stats_enabled", "false")
	v.SetDefault("drop_stats_key", "vitals:drops")
	v.SetDefault("http_addr", "")
	// the broker keeps the session, and unacked QoS 1 messages, per client id
	v.SetDefault("mqtt_client_id", instanceName("vitals-pipeline"))

	cfg := &PipelineConfig{}
	p := &parser{v: v}

	loadCommon(p, &cfg.Database, &cfg.Redis, &cfg.MQTT, &cfg.Log)
	cfg.MQTT.CleanSession = false

	cfg.Pipeline.Subscription = strings.TrimSpace(v.GetString("vitals_subscription"))
	cfg.Pipeline.Table = strings.TrimSpace(v.GetString("vitals_table"))
	cfg.Pipeline.SourceType = strings.ToLower(strings.TrimSpace(v.GetString("source_type")))
	cfg.Pipeline.ConsumerGroup = v.GetString("consumer_group")
	cfg.Pipeline.ConsumerName = v.GetString("consumer_name")
	cfg.Pipeline.BatchSize = int64(p.getInt("stream_batch_size"))
	cfg.Pipeline.Block = p.getDuration("stream_block")
	cfg.Pipeline.PendingInterval = p.getDuration("stream_pending_interval")
	cfg.Pipeline.ClaimMinIdle = p.getDuration("stream_claim_min_idle")
	cfg.Pipeline.Workers = p.getInt("pipeline_workers")

	cfg.DropStats.Enabled = p.getBool("drop_stats_enabled")
	cfg.DropStats.Key = v.GetString("drop_stats_key")

	cfg.HTTP.Addr = strings.TrimSpace(v.GetString("http_addr"))

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and value domains
func (c *PipelineConfig) Validate() error {
	if c.Pipeline.Subscription == "" {
		return ErrMissingSubscription
	}
	if c.Pipeline.Table == "" {
		return ErrMissingTable
	}
	switch c.Pipeline.SourceType {
	case SourceRedis, SourceMQTT:
	default:
		return fmt.Errorf("SOURCE_TYPE must be redis or mqtt, got %q", c.Pipeline.SourceType)
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("STREAM_BATCH_SIZE must be > 0")
	}
	if c.Pipeline.Block <= 0 {
		return fmt.Errorf("STREAM_BLOCK must be > 0")
	}
	if c.Pipeline.PendingInterval < 0 {
		return fmt.Errorf("STREAM_PENDING_INTERVAL must be >= 0")
	}
	if c.Pipeline.ClaimMinIdle <= 0 {
		return fmt.Errorf("STREAM_CLAIM_MIN_IDLE must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("PIPELINE_WORKERS must be > 0")
	}
	if c.DropStats.Enabled && c.DropStats.Key == "" {
		return fmt.Errorf("DROP_STATS_KEY must not be empty when drop stats are enabled")
	}
	return nil
}

// instanceName prefix plus the host name, falling back to "<prefix>-1"
func instanceName(prefix string) string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return prefix + "-1"
	}
	return prefix + "-" + host
}

func loadCommon(p *parser, db *config.DatabaseConfig, rdb *config.RedisConfig, mq *config.MQTTConfig, log *config.LogConfig) {
	v := p.v

	db.Host = v.GetString("db_host")
	db.Port = p.getInt("db_port")
	db.User = v.GetString("db_user")
	db.Password = v.GetString("db_password")
	db.Database = v.GetString("db_name")
	db.SSLMode = v.GetString("db_sslmode")
	db.MaxConns = p.getInt("db_max_conns")
	db.MaxIdle = p.getInt("db_max_idle")

	rdb.Addr = v.GetString("redis_addr")
	rdb.Password = v.GetString("redis_password")
	rdb.DB = p.getInt("redis_db")

	mq.Broker = v.GetString("mqtt_broker")
	mq.ClientID = v.GetString("mqtt_client_id")
	mq.Username = v.GetString("mqtt_username")
	mq.Password = v.GetString("mqtt_password")
	qos := p.getInt("mqtt_qos")
	if qos < 0 || qos > 2 {
		p.fail("mqtt_qos", strconv.Itoa(qos), "QoS (0, 1 or 2)")
	}
	mq.QoS = byte(qos)
	mq.ConnectTimeout = p.getDuration("mqtt_connect_timeout")

	log.Level = v.GetString("log_level")
	log.Format = v.GetString("log_format")
}

// parser converts strings strictly and keeps the first failure.
// viper's own getters return zero values for unparseable input.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) fail(key, raw, kind string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s for %s=%q", kind, strings.ToUpper(key), raw)
	}
}

func (p *parser) getInt(key string) int {
	raw := strings.TrimSpace(p.v.GetString(key))
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, "int")
	}
	return n
}

func (p *parser) getFloat(key string) float64 {
	raw := strings.TrimSpace(p.v.GetString(key))
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, "float")
	}
	return f
}

func (p *parser) getBool(key string) bool {
	raw := strings.TrimSpace(p.v.GetString(key))
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, "bool")
	}
	return b
}

// getDuration accepts Go durations ("500ms") or plain seconds ("1.5")
func (p *parser) getDuration(key string) time.Duration {
	raw := strings.TrimSpace(p.v.GetString(key))
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, "duration")
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
