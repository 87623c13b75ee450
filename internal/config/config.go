package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/noah-isme/explab-api/pkg/judge"
)

// Supported backend drivers.
const (
	DatabasePostgres = "postgres"
	DatabaseMySQL    = "mysql"
	DatabaseSQLite   = "sqlite"

	StorageCloudinary = "cloudinary"
	StorageLocal      = "local"

	JudgeHTTP   = "http"
	JudgeDocker = "docker"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName      string
	AppEnv       string
	AppPort      string
	AllowOrigins string

	DatabaseDriver string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	JWTSecret      string

	StorageDriver          string
	StorageRoot            string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	JudgeDriver   string
	JudgeURL      string
	JudgeTimeout  time.Duration
	JudgeCPU      time.Duration
	JudgeMemoryMB int
	JudgeProcs    int
	JudgeOutput   int64
	JudgeCommand  string
	DockerHost    string
	DockerImage   string

	HistoryCacheTTL time.Duration
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string

	SubmissionRateLimit  int
	SubmissionRateWindow time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// JudgeLimits returns the sandbox limits applied to every code run.
func (c Config) JudgeLimits() judge.Limits {
	return judge.Limits{
		CPU:         c.JudgeCPU,
		MemoryBytes: int64(c.JudgeMemoryMB) << 20,
		Procs:       c.JudgeProcs,
		OutputMax:   c.JudgeOutput,
		Command:     c.JudgeCommand,
	}
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EXPLAB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	defaults := judge.DefaultLimits()

	v.SetDefault("app.name", "Experiment Lab API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.allow_origins", "*")
	v.SetDefault("database.driver", DatabasePostgres)
	v.SetDefault("storage.driver", StorageCloudinary)
	v.SetDefault("storage.root", "./data/objects")
	v.SetDefault("cloudinary.folder", "explab/submissions")
	v.SetDefault("judge.driver", JudgeHTTP)
	v.SetDefault("judge.url", "http://localhost:5050/run")
	v.SetDefault("judge.timeout", "30s")
	v.SetDefault("judge.cpu", defaults.CPU.String())
	v.SetDefault("judge.memory_mb", int(defaults.MemoryBytes>>20))
	v.SetDefault("judge.procs", defaults.Procs)
	v.SetDefault("judge.output_max", defaults.OutputMax)
	v.SetDefault("judge.command", judge.DefaultCommand)
	v.SetDefault("docker.image", "alpine:3.20")
	v.SetDefault("history.cache_ttl", "5m")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("submission.rate_limit", 10)
	v.SetDefault("submission.rate_window", "1m")

	durations := map[string]time.Duration{}
	for _, key := range []string{"judge.timeout", "judge.cpu", "history.cache_ttl", "submission.rate_window"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:      v.GetString("app.name"),
		AppEnv:       v.GetString("app.env"),
		AppPort:      v.GetString("app.port"),
		AllowOrigins: v.GetString("app.allow_origins"),

		DatabaseDriver: strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:    v.GetString("database.url"),
		RedisURL:       v.GetString("redis.url"),
		NATSURL:        v.GetString("nats.url"),
		JWTSecret:      v.GetString("jwt.secret"),

		StorageDriver:          strings.ToLower(v.GetString("storage.driver")),
		StorageRoot:            v.GetString("storage.root"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),

		JudgeDriver:   strings.ToLower(v.GetString("judge.driver")),
		JudgeURL:      v.GetString("judge.url"),
		JudgeTimeout:  durations["judge.timeout"],
		JudgeCPU:      durations["judge.cpu"],
		JudgeMemoryMB: v.GetInt("judge.memory_mb"),
		JudgeProcs:    v.GetInt("judge.procs"),
		JudgeOutput:   v.GetInt64("judge.output_max"),
		JudgeCommand:  v.GetString("judge.command"),
		DockerHost:    v.GetString("docker.host"),
		DockerImage:   v.GetString("docker.image"),

		HistoryCacheTTL: durations["history.cache_ttl"],
		OpenAIAPIKey:    v.GetString("openai.api_key"),
		OpenAIModel:     v.GetString("openai.model"),
		OpenAIBaseURL:   v.GetString("openai.base_url"),

		SubmissionRateLimit:  v.GetInt("submission.rate_limit"),
		SubmissionRateWindow: durations["submission.rate_window"],
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must be provided")
	}

	switch c.DatabaseDriver {
	case DatabasePostgres, DatabaseMySQL, DatabaseSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}

	switch c.StorageDriver {
	case StorageCloudinary, StorageLocal:
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	switch c.JudgeDriver {
	case JudgeHTTP:
		if c.JudgeURL == "" {
			return fmt.Errorf("judge url must be provided")
		}
	case JudgeDocker:
	default:
		return fmt.Errorf("unsupported judge driver %q", c.JudgeDriver)
	}

	if c.JudgeMemoryMB <= 0 || c.JudgeProcs <= 0 || c.JudgeOutput <= 0 || c.JudgeCPU <= 0 {
		return fmt.Errorf("judge limits must be positive")
	}

	return nil
}
