package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Conf holds the configuration loaded at startup, making it accessible globally.
var Conf *Config

var current atomic.Pointer[Config]

// Current returns the most recently loaded configuration, including hot
// reloads of the config file. Nil before Init.
func Current() *Config { return current.Load() }

// Config struct is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Windowing WindowingConfig `mapstructure:"windowing"`
	Quality   QualityConfig   `mapstructure:"quality"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	RateLimit       int           `mapstructure:"rate_limit"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// StreamConfig covers the real-time path: buffers, recompute cadence, push
// loops and the hardware bridge.
type StreamConfig struct {
	SamplingRate          int           `mapstructure:"sampling_rate"`
	RealtimeWindowSeconds float64       `mapstructure:"realtime_window_seconds"`
	RecomputeEvery        int           `mapstructure:"recompute_every"`
	PushInterval          time.Duration `mapstructure:"push_interval"`
	DiscoverTimeout       time.Duration `mapstructure:"discover_timeout"`
	Simulation            bool          `mapstructure:"simulation"`
	BufferSize            int           `mapstructure:"buffer_size"`
	MQTT                  MQTTConfig    `mapstructure:"mqtt"`
}

type MQTTConfig struct {
	Broker         string        `mapstructure:"broker"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	ClientID       string        `mapstructure:"client_id"`
	QoS            int           `mapstructure:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type WindowingConfig struct {
	WindowSizeSeconds float64 `mapstructure:"window_size_seconds"`
	StepSeconds       float64 `mapstructure:"step_seconds"`
	MinWindowCoverage float64 `mapstructure:"min_window_coverage"`
}

type QualityConfig struct {
	HSIThreshold float64 `mapstructure:"hsi_threshold"`
}

// ScoringConfig points at an optional YAML file overriding the scoring
// constants. The two thresholds here win over the file.
type ScoringConfig struct {
	ProfilePath            string  `mapstructure:"profile_path"`
	OptimalLRIThreshold    float64 `mapstructure:"optimal_lri_threshold"`
	PostExerciseMultiplier float64 `mapstructure:"post_exercise_multiplier"`
}

type PipelineConfig struct {
	Workers   int    `mapstructure:"workers"`
	OutputDir string `mapstructure:"output_dir"`
}

type SchedulerConfig struct {
	RollupTime     string        `mapstructure:"rollup_time"`
	RecordInterval time.Duration `mapstructure:"record_interval"`
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.rate_limit", 10)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Database defaults
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "axon")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "axon")

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs

	// Real-time stream
	v.SetDefault("stream.sampling_rate", 256)
	v.SetDefault("stream.realtime_window_seconds", 2.0)
	v.SetDefault("stream.recompute_every", 32)
	v.SetDefault("stream.push_interval", 500*time.Millisecond)
	v.SetDefault("stream.discover_timeout", 5*time.Second)
	v.SetDefault("stream.simulation", true)
	v.SetDefault("stream.buffer_size", 1024)
	v.SetDefault("stream.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("stream.mqtt.topic_prefix", "muse")
	v.SetDefault("stream.mqtt.client_id", "axon")
	v.SetDefault("stream.mqtt.qos", 0)
	v.SetDefault("stream.mqtt.connect_timeout", 5*time.Second)

	// Batch windowing
	v.SetDefault("windowing.window_size_seconds", 30.0)
	v.SetDefault("windowing.step_seconds", 15.0)
	v.SetDefault("windowing.min_window_coverage", 0.8)

	v.SetDefault("quality.hsi_threshold", 2.5)

	v.SetDefault("scoring.profile_path", "")
	v.SetDefault("scoring.optimal_lri_threshold", 70.0)
	v.SetDefault("scoring.post_exercise_multiplier", 1.3)

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.output_dir", "output")

	v.SetDefault("scheduler.rollup_time", "00:05") // UTC
	v.SetDefault("scheduler.record_interval", 30*time.Second)
}

// Init initializes the configuration with Viper.
func Init(projectRoot string, log *zap.Logger) error {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// --- File Configuration ---
	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// --- Environment Variable Binding ---
	v.SetEnvPrefix("AXON") // e.g., AXON_STREAM_SAMPLING_RATE
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// It's okay if the file doesn't exist; defaults and env vars will be used.
	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		fileFound = false
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return err
	}
	Conf = &conf
	current.Store(&conf)

	// Set up a watch for configuration changes for hot-reloading. Only
	// settings read through Current on every use pick up the change.
	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
			var next Config
			if err := v.Unmarshal(&next); err != nil {
				log.Error("Error reloading configuration", zap.Error(err))
				return
			}
			if err := next.Validate(); err != nil {
				log.Error("Rejected reloaded configuration", zap.Error(err))
				return
			}
			current.Store(&next)
		})
	}

	log.Info("Configuration loaded successfully", zap.Bool("file", fileFound))
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Stream.SamplingRate <= 0:
		return fmt.Errorf("stream.sampling_rate must be positive, got %d", c.Stream.SamplingRate)
	case c.Stream.RealtimeWindowSeconds <= 0:
		return fmt.Errorf("stream.realtime_window_seconds must be positive, got %v", c.Stream.RealtimeWindowSeconds)
	case c.Stream.PushInterval <= 0:
		return fmt.Errorf("stream.push_interval must be positive, got %v", c.Stream.PushInterval)
	case c.Windowing.WindowSizeSeconds <= 0 || c.Windowing.StepSeconds <= 0:
		return fmt.Errorf("windowing sizes must be positive, got window=%v step=%v",
			c.Windowing.WindowSizeSeconds, c.Windowing.StepSeconds)
	case c.Windowing.MinWindowCoverage <= 0 || c.Windowing.MinWindowCoverage > 1:
		return fmt.Errorf("windowing.min_window_coverage must be in (0, 1], got %v", c.Windowing.MinWindowCoverage)
	}
	if _, err := time.Parse("15:04", c.Scheduler.RollupTime); err != nil {
		return fmt.Errorf("scheduler.rollup_time: %w", err)
	}
	return nil
}

// Seconds converts a fractional second count from the config file.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
