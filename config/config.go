package config

import (
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

type Config struct {
	HTTP struct {
		Port            int           `yaml:"port"`
		GinMode         string        `yaml:"ginMode"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"http"`

	Token struct {
		Secret string        `yaml:"secret"`
		TTL    time.Duration `yaml:"ttl"`
	} `yaml:"token"`

	Auth struct {
		BcryptCost int `yaml:"bcryptCost"`
	} `yaml:"auth"`

	Store struct {
		Driver          string `yaml:"driver"`
		Path            string `yaml:"path"`
		CreateIfMissing bool   `yaml:"createIfMissing"`
	} `yaml:"store"`

	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`

	// Redis is optional; an empty Addr disables the view cache and events.
	Redis struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		CacheTTL time.Duration `yaml:"cacheTtl"`
		Group    string        `yaml:"group"`
		Consumer string        `yaml:"consumer"`
	} `yaml:"redis"`

	Log Log `yaml:"log"`
}

type Log struct {
	Pretty bool   `yaml:"pretty"`
	Level  string `yaml:"level"`
}

// envKeys maps the supported environment variables onto config paths.
var envKeys = map[string]string{
	"PORT":                    "http.port",
	"GIN_MODE":                "http.ginMode",
	"JWT_SECRET":              "token.secret",
	"TOKEN_TTL":               "token.ttl",
	"BCRYPT_COST":             "auth.bcryptCost",
	"STORE_DRIVER":            "store.driver",
	"STORE_PATH":              "store.path",
	"STORE_CREATE_IF_MISSING": "store.createIfMissing",
	"DATABASE_URL":            "postgres.url",
	"REDIS_ADDR":              "redis.addr",
	"REDIS_PASSWORD":          "redis.password",
	"REDIS_DB":                "redis.db",
	"LOG_LEVEL":               "log.level",
	"LOG_PRETTY":              "log.pretty",
}

// Default returns the configuration used when neither file nor environment
// sets a value.
func Default() *Config {
	cfg := new(Config)
	cfg.HTTP.Port = 3000
	cfg.HTTP.GinMode = "release"
	cfg.HTTP.ShutdownTimeout = 10 * time.Second
	cfg.Token.TTL = time.Hour
	cfg.Auth.BcryptCost = 10
	cfg.Store.Driver = DriverFile
	cfg.Store.Path = "./data/users.json"
	cfg.Store.CreateIfMissing = true
	cfg.Redis.CacheTTL = 5 * time.Minute
	cfg.Redis.Group = "accounts-group"
	cfg.Redis.Consumer = "accounts-consumer-1"
	cfg.Log.Level = "info"
	return cfg
}

// Load reads the optional YAML file at path, overlays the environment and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	return load(path, os.Environ)
}

func load(path string, environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "read config file %s failed", path)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		EnvironFunc: environ,
		TransformFunc: func(key, value string) (string, any) {
			// unknown variables map to an empty key and are skipped
			return envKeys[key], strings.TrimSpace(value)
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "yaml",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrap(err, "unmarshal config failed")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Token.Secret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Token.TTL <= 0 {
		return errors.Errorf("token ttl must be positive, got %s", c.Token.TTL)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.Errorf("invalid http port %d", c.HTTP.Port)
	}
	switch c.HTTP.GinMode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		return errors.Errorf("invalid gin mode %q", c.HTTP.GinMode)
	}
	switch c.Store.Driver {
	case DriverFile:
		if c.Store.Path == "" {
			return errors.New("store path is required for the file driver")
		}
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return errors.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}
