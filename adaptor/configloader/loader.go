// Package configloader loads client configuration from YAML files on disk.
package configloader

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gurre/tweezer-client-go/state/config"
)

// rawConfig mirrors the YAML structure of tweezer.yml. Pointer fields
// distinguish an explicit zero from an absent key.
type rawConfig struct {
	Endpoint      string `yaml:"endpoint"`
	ProxyURI      string `yaml:"proxy_uri"`
	LogDir        string `yaml:"log_dir"`
	LogLevel      string `yaml:"log_level"`
	AMQPURL       string `yaml:"amqp_url"`
	AMQPQueue     string `yaml:"amqp_queue"`
	MaxRetries    *int   `yaml:"max_retries"`
	BackoffBaseMS *int   `yaml:"backoff_base_ms"`
	HTTPTimeout   *int   `yaml:"http_timeout"`
}

// LoadClient loads the config file, overlaying values onto defaults.
// Missing or empty fields retain their default values. An empty path or a
// missing file yields the defaults.
//
//	cfg, err := configloader.LoadClient("/etc/tweezer/tweezer.yml")
func LoadClient(path string) (config.Client, error) {
	cfg := config.Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return config.Client{}, fmt.Errorf("configloader: %w", err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return config.Client{}, fmt.Errorf("configloader: parse %s: %w", path, err)
	}

	if raw.Endpoint != "" {
		cfg.Endpoint = raw.Endpoint
	}
	if raw.ProxyURI != "" {
		cfg.ProxyURI = raw.ProxyURI
	}
	if raw.LogDir != "" {
		cfg.LogDir = raw.LogDir
	}
	if raw.LogLevel != "" {
		cfg.LogLevel = raw.LogLevel
	}
	if raw.AMQPURL != "" {
		cfg.AMQPURL = raw.AMQPURL
	}
	if raw.AMQPQueue != "" {
		cfg.AMQPQueue = raw.AMQPQueue
	}
	if raw.MaxRetries != nil {
		cfg.MaxRetries = *raw.MaxRetries
	}
	if raw.BackoffBaseMS != nil {
		if *raw.BackoffBaseMS <= 0 {
			return config.Client{}, fmt.Errorf("configloader: %s: backoff_base_ms must be positive, got %d", path, *raw.BackoffBaseMS)
		}
		cfg.BackoffBase = time.Duration(*raw.BackoffBaseMS) * time.Millisecond
	}
	if raw.HTTPTimeout != nil {
		if *raw.HTTPTimeout < 0 {
			return config.Client{}, fmt.Errorf("configloader: %s: http_timeout must not be negative, got %d", path, *raw.HTTPTimeout)
		}
		cfg.HTTPTimeout = time.Duration(*raw.HTTPTimeout) * time.Second
	}

	return cfg, nil
}
