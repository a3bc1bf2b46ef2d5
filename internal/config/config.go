package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ScratchSubdir — подкаталог os.TempDir() для частичных артефактов по умолчанию.
const ScratchSubdir = "jsonl_collector"

type S3 struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Region          string `yaml:"region" json:"region"`
	Prefix          string `yaml:"prefix" json:"prefix"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" json:"-"`
	SecretAccessKey string `yaml:"secret_access_key" json:"-"`
}

type Config struct {
	ListenAddr   string        `yaml:"listen_addr" json:"listen_addr"`
	DataDir      string        `yaml:"data_dir" json:"data_dir"`
	ScratchDir   string        `yaml:"scratch_dir" json:"scratch_dir"`
	SessionTTL   time.Duration `yaml:"session_ttl" json:"session_ttl"`
	ReapInterval time.Duration `yaml:"reap_interval" json:"reap_interval"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
	LogLevel     string        `yaml:"log_level" json:"log_level"`
	LogPretty    bool          `yaml:"log_pretty" json:"log_pretty"`
	S3           S3            `yaml:"s3" json:"s3"`
}

// Default возвращает конфигурацию, совпадающую с поведением эталонного сервера:
// итоговые записи в рабочем каталоге, частичные — в собственном подкаталоге временного.
func Default() Config {
	return Config{
		ListenAddr:   ":8000",
		DataDir:      ".",
		ScratchDir:   filepath.Join(os.TempDir(), ScratchSubdir),
		SessionTTL:   24 * time.Hour,
		ReapInterval: 30 * time.Minute,
		MaxBodyBytes: 64 << 20,
		LogLevel:     "info",
	}
}

// Load читает YAML-конфигурацию, применяет ENV-переопределения и возвращает актуальную структуру.
// Отсутствие файла не ошибка: используются значения по умолчанию.
func Load() (*Config, error) {
	c := Default()

	path := getenv("CONFIG_PATH", "./config.yaml")
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	return &c, nil
}

// ENV override
func (c *Config) applyEnv() error {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("SCRATCH_DIR"); v != "" {
		c.ScratchDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.S3.Bucket = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		c.S3.Region = v
	}
	if v := os.Getenv("S3_PREFIX"); v != "" {
		c.S3.Prefix = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		c.S3.Endpoint = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		c.S3.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		c.S3.SecretAccessKey = v
	}

	var err error
	if c.SessionTTL, err = envDuration("SESSION_TTL", c.SessionTTL); err != nil {
		return err
	}
	if c.ReapInterval, err = envDuration("REAP_INTERVAL", c.ReapInterval); err != nil {
		return err
	}
	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MAX_BODY_BYTES %q", v)
		}
		c.MaxBodyBytes = n
	}
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LOG_PRETTY %q", v)
		}
		c.LogPretty = b
	}

	return nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}

	return def
}
