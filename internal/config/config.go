package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Devices    DevicesConfig    `yaml:"devices"`
	Report     ReportConfig     `yaml:"report"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port        int `yaml:"port"`
	MetricsPort int `yaml:"metrics_port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL         string `yaml:"url"`
	WorkerCount int    `yaml:"worker_count"`
}

type MQTTConfig struct {
	Broker         string `yaml:"broker"`
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	SightingTopic  string `yaml:"sighting_topic"`
	HeartbeatTopic string `yaml:"heartbeat_topic"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// AttendanceConfig tunes the sighting deduplication and presence sweep.
type AttendanceConfig struct {
	DedupWindow   time.Duration `yaml:"dedup_window"`
	StoreTimeout  time.Duration `yaml:"store_timeout"`
	AbsentAfter   time.Duration `yaml:"absent_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type DevicesConfig struct {
	OfflineAfter time.Duration `yaml:"offline_after"`
}

type ReportConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Retention int           `yaml:"retention"`
	Prefix    string        `yaml:"prefix"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// A .env file in the working directory, if any, is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Default returns a config populated only with defaults and environment overrides.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	setDefaults(cfg)
	return cfg
}

func (c *Config) Validate() error {
	if c.Attendance.DedupWindow <= 0 {
		return errors.New("attendance.dedup_window must be positive")
	}
	if c.Attendance.StoreTimeout <= 0 {
		return errors.New("attendance.store_timeout must be positive")
	}
	if c.Attendance.AbsentAfter <= c.Attendance.DedupWindow {
		return fmt.Errorf("attendance.absent_after (%s) must exceed dedup_window (%s)",
			c.Attendance.AbsentAfter, c.Attendance.DedupWindow)
	}
	if c.Report.Retention < 0 {
		return errors.New("report.retention must not be negative")
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 8082
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.NATS.WorkerCount == 0 {
		cfg.NATS.WorkerCount = 4
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "attendsense-ingestor"
	}
	if cfg.MQTT.SightingTopic == "" {
		cfg.MQTT.SightingTopic = "attendsense/+/sighting"
	}
	if cfg.MQTT.HeartbeatTopic == "" {
		cfg.MQTT.HeartbeatTopic = "attendsense/+/heartbeat"
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "attendsense"
	}
	if cfg.Attendance.DedupWindow == 0 {
		cfg.Attendance.DedupWindow = 30 * time.Second
	}
	if cfg.Attendance.StoreTimeout == 0 {
		cfg.Attendance.StoreTimeout = 5 * time.Second
	}
	if cfg.Attendance.AbsentAfter == 0 {
		cfg.Attendance.AbsentAfter = 10 * time.Minute
	}
	if cfg.Attendance.SweepInterval == 0 {
		cfg.Attendance.SweepInterval = time.Minute
	}
	if cfg.Devices.OfflineAfter == 0 {
		cfg.Devices.OfflineAfter = 30 * time.Second
	}
	if cfg.Report.Prefix == "" {
		cfg.Report.Prefix = "reports"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ATTEND_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ATTEND_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("ATTEND_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("ATTEND_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("ATTEND_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("ATTEND_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("ATTEND_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("ATTEND_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("ATTEND_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("ATTEND_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("ATTEND_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("ATTEND_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("ATTEND_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("ATTEND_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("ATTEND_DEDUP_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Attendance.DedupWindow = d
		}
	}
	if v := os.Getenv("ATTEND_ABSENT_AFTER"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Attendance.AbsentAfter = d
		}
	}
	if v := os.Getenv("ATTEND_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
