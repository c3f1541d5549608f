package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"patientvitals/common/config"

	"github.com/google/uuid"
)

// Error injection modes
const (
	ErrorModeMixed         = "mixed"
	ErrorModeNone          = "none"
	ErrorModeMissingField  = "missing_field"
	ErrorModeNullField     = "null_field"
	ErrorModeNegativeValue = "negative_value"
	ErrorModeOutOfRange    = "out_of_range"
	ErrorModeBadType       = "bad_type"
)

// Missing-field styles
const (
	MissingFieldDelete = "delete"
	MissingFieldNull   = "null"
)

// ErrorModes every accepted ERROR_MODE value
var ErrorModes = []string{
	ErrorModeMixed,
	ErrorModeNone,
	ErrorModeMissingField,
	ErrorModeNullField,
	ErrorModeNegativeValue,
	ErrorModeOutOfRange,
	ErrorModeBadType,
}

// SimulatorConfig synthetic vitals generator settings
type SimulatorConfig struct {
	Redis config.RedisConfig
	MQTT  config.MQTTConfig
	Log   config.LogConfig

	Simulator struct {
		PatientCount      int
		Interval          time.Duration
		ErrorRate         float64
		ErrorMode         string
		MissingFieldStyle string
		Transport         string // redis|mqtt
		Topic             string // stream key or MQTT topic
		PublishTimeout    time.Duration
		Seed              int64 // 0 seeds from the clock
	}
}

// LoadSimulator loads and validates the generator configuration
func LoadSimulator() (*SimulatorConfig, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	setCommonDefaults(v)

	v.SetDefault("patient_count", "30")
	v.SetDefault("stream_interval", "1")
	v.SetDefault("error_rate", "0.1")
	v.SetDefault("error_mode", ErrorModeMixed)
	v.SetDefault("missing_field_style", MissingFieldDelete)
	v.SetDefault("publish_transport", SourceRedis)
	v.SetDefault("publish_timeout", "30s")
	v.SetDefault("simulator_seed", "0")
	v.SetDefault("mqtt_client_id", "vitals-simulator-"+uuid.NewString()[:8])

	cfg := &SimulatorConfig{}
	p := &parser{v: v}

	var db config.DatabaseConfig
	loadCommon(p, &db, &cfg.Redis, &cfg.MQTT, &cfg.Log)
	cfg.MQTT.CleanSession = true

	cfg.Simulator.PatientCount = p.getInt("patient_count")
	cfg.Simulator.Interval = p.getDuration("stream_interval")
	cfg.Simulator.ErrorRate = p.getFloat("error_rate")
	cfg.Simulator.ErrorMode = strings.ToLower(strings.TrimSpace(v.GetString("error_mode")))
	cfg.Simulator.MissingFieldStyle = strings.ToLower(strings.TrimSpace(v.GetString("missing_field_style")))
	cfg.Simulator.Transport = strings.ToLower(strings.TrimSpace(v.GetString("publish_transport")))
	cfg.Simulator.Topic = strings.TrimSpace(v.GetString("vitals_topic"))
	cfg.Simulator.PublishTimeout = p.getDuration("publish_timeout")
	cfg.Simulator.Seed = int64(p.getInt("simulator_seed"))

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the generator's parameter domains
func (c *SimulatorConfig) Validate() error {
	s := c.Simulator
	if s.PatientCount <= 0 {
		return fmt.Errorf("PATIENT_COUNT must be > 0")
	}
	if s.Interval <= 0 {
		return fmt.Errorf("STREAM_INTERVAL must be > 0")
	}
	// negated so NaN fails too
	if !(s.ErrorRate >= 0 && s.ErrorRate <= 1) {
		return fmt.Errorf("ERROR_RATE must be between 0.0 and 1.0")
	}
	if !slices.Contains(ErrorModes, s.ErrorMode) {
		return fmt.Errorf("ERROR_MODE must be one of: %s", strings.Join(ErrorModes, "|"))
	}
	if s.MissingFieldStyle != MissingFieldDelete && s.MissingFieldStyle != MissingFieldNull {
		return fmt.Errorf("MISSING_FIELD_STYLE must be delete or null")
	}
	if s.Transport != SourceRedis && s.Transport != SourceMQTT {
		return fmt.Errorf("PUBLISH_TRANSPORT must be redis or mqtt, got %q", s.Transport)
	}
	if s.Topic == "" {
		return fmt.Errorf("VITALS_TOPIC is required")
	}
	if s.PublishTimeout <= 0 {
		return fmt.Errorf("PUBLISH_TIMEOUT must be > 0")
	}
	return nil
}
