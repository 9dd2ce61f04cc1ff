package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aretw0/baton/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// EnvPrefix is accepted in front of every key. Prefixed keys win over bare ones.
const EnvPrefix = "baton_"

// Storage backends.
const (
	StoreMinio  = "minio"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config is the deployment configuration of a stage process.
type Config struct {
	GatewayEndpoint string `mapstructure:"openfaas_gateway_endpoint"`
	GatewayUser     string `mapstructure:"gateway_user"`
	GatewayPassword string `mapstructure:"gateway_password"`
	TriggerStage    string `mapstructure:"trigger_stage"`
	TriggerMode     string `mapstructure:"trigger_mode"`

	Store          string        `mapstructure:"store"`
	MinioEndpoint  string        `mapstructure:"minio_endpoint"`
	MinioAccessKey string        `mapstructure:"minio_access_key"`
	MinioSecretKey string        `mapstructure:"minio_secret_key"`
	MinioSecure    bool          `mapstructure:"minio_secure"`
	MinioRegion    string        `mapstructure:"minio_region"`
	FileRoot       string        `mapstructure:"file_root"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisPassword  string        `mapstructure:"redis_password"`
	RedisDB        int           `mapstructure:"redis_db"`
	RedisTTL       time.Duration `mapstructure:"redis_ttl"`

	EncryptionKey          string   `mapstructure:"encryption_key"`
	EncryptionFallbackKeys []string `mapstructure:"encryption_fallback_keys"`

	Graph       string   `mapstructure:"graph"`
	Stage       string   `mapstructure:"stage"`
	BucketNames []string `mapstructure:"bucket_names"`
	NextStage   string   `mapstructure:"next_stage"`
	RunScoped   bool     `mapstructure:"run_scoped"`

	Lock    bool          `mapstructure:"lock"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`

	Requeue         bool          `mapstructure:"requeue"`
	DispatchWorkers int           `mapstructure:"dispatch_workers"`
	DispatchQueue   int           `mapstructure:"dispatch_queue"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	EnqueueTimeout  time.Duration `mapstructure:"enqueue_timeout"`

	Provision        bool          `mapstructure:"provision"`
	Functions        string        `mapstructure:"functions"`
	FaasCLI          string        `mapstructure:"faas_cli"`
	ProvisionTimeout time.Duration `mapstructure:"provision_timeout"`

	Listen   string `mapstructure:"listen"`
	LogLevel string `mapstructure:"log_level"`
}

// Defaults returns the configuration used for unset keys.
func Defaults() Config {
	return Config{
		TriggerMode:      "relay",
		Store:            StoreMinio,
		MinioRegion:      "us-east-1",
		FileRoot:         ".baton/blobs",
		LockTTL:          10 * time.Minute,
		DispatchWorkers:  4,
		DispatchQueue:    64,
		DispatchTimeout:  30 * time.Second,
		EnqueueTimeout:   time.Second,
		FaasCLI:          "faas-cli",
		ProvisionTimeout: 2 * time.Minute,
		Listen:           ":8080",
		LogLevel:         "info",
	}
}

// FromEnv reads the process environment.
func FromEnv() (Config, error) {
	return FromEnviron(os.Environ())
}

// FromEnviron decodes KEY=VALUE pairs over Defaults. Keys are case-insensitive and
// may carry the BATON_ prefix; unknown keys are ignored.
func FromEnviron(environ []string) (Config, error) {
	bare := make(map[string]any)
	prefixed := make(map[string]any)
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		k = strings.ToLower(k)
		if rest, found := strings.CutPrefix(k, EnvPrefix); found {
			prefixed[rest] = v
			continue
		}
		bare[k] = v
	}
	for k, v := range prefixed {
		bare[k] = v
	}
	return Decode(bare)
}

// Decode applies raw values over Defaults using weak typing: "true", "3", "30s" and
// comma-separated lists are accepted.
func Decode(raw map[string]any) (Config, error) {
	cfg := Defaults()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(raw); err != nil {
		return cfg, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	cfg.BucketNames = cleanList(cfg.BucketNames)
	cfg.EncryptionFallbackKeys = cleanList(cfg.EncryptionFallbackKeys)
	return cfg, nil
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that the selected backends have what they need.
func (c Config) Validate() error {
	var missing []string
	switch c.Store {
	case StoreMinio:
		if c.MinioEndpoint == "" {
			missing = append(missing, "minio_endpoint")
		}
		if c.MinioAccessKey == "" {
			missing = append(missing, "minio_access_key")
		}
		if c.MinioSecretKey == "" {
			missing = append(missing, "minio_secret_key")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			missing = append(missing, "redis_addr")
		}
	case StoreFile:
		if c.FileRoot == "" {
			missing = append(missing, "file_root")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("%w: unknown store %q", domain.ErrConfiguration, c.Store)
	}
	if c.RedisTTL < 0 || c.ProvisionTimeout < 0 {
		return fmt.Errorf("%w: redis_ttl and provision_timeout must not be negative", domain.ErrConfiguration)
	}
	if c.Lock && c.Store != StoreRedis {
		return fmt.Errorf("%w: lock requires the redis store", domain.ErrConfiguration)
	}
	if c.Provision && c.GatewayEndpoint == "" {
		missing = append(missing, "openfaas_gateway_endpoint")
	}
	switch c.TriggerMode {
	case "", "relay", "direct":
	default:
		return fmt.Errorf("%w: unknown trigger_mode %q", domain.ErrConfiguration, c.TriggerMode)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}
