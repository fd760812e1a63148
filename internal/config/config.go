package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shehryarbajwa/vizai/internal/logger"
)

// Execution modes. A deployment runs exactly one of them.
const (
	ModeSandbox = "sandbox"
	ModeDisplay = "display"
)

// Config is the server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Session   SessionConfig   `mapstructure:"session"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Data      DataConfig      `mapstructure:"data"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       logger.Config   `mapstructure:"log"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type ExecutionConfig struct {
	Mode string `mapstructure:"mode"`
}

type SandboxConfig struct {
	Host        string        `mapstructure:"host"` // empty means DOCKER_HOST / local socket
	TLSCA       string        `mapstructure:"tls_ca"`
	TLSCert     string        `mapstructure:"tls_cert"`
	TLSKey      string        `mapstructure:"tls_key"`
	Image       string        `mapstructure:"image"`
	PullImage   bool          `mapstructure:"pull_image"`
	WorkDir     string        `mapstructure:"workdir"`
	MemoryMB    int64         `mapstructure:"memory_mb"`
	ExecTimeout time.Duration `mapstructure:"exec_timeout"`
	RequireKey  bool          `mapstructure:"require_key"`
}

type LLMConfig struct {
	ModelsFile      string        `mapstructure:"models_file"`
	Timeout         time.Duration `mapstructure:"timeout"`
	TogetherBaseURL string        `mapstructure:"together_base_url"`
	OpenAIBaseURL   string        `mapstructure:"openai_base_url"`
	OpenRouterURL   string        `mapstructure:"openrouter_base_url"`
	DeepSeekBaseURL string        `mapstructure:"deepseek_base_url"`
	OllamaHost      string        `mapstructure:"ollama_host"`
}

type SessionConfig struct {
	TTL   time.Duration `mapstructure:"ttl"`
	Store string        `mapstructure:"store"` // memory|redis
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type DataConfig struct {
	Dir         string `mapstructure:"dir"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb"`
	PreviewRows int    `mapstructure:"preview_rows"`
}

type RateLimitConfig struct {
	RequestsPerHour int `mapstructure:"requests_per_hour"`
	Burst           int `mapstructure:"burst"`
}

// Load reads configuration. Precedence: env (VIZAI_*) > config file > defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VIZAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	// analyze blocks on the LLM and the sandbox
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("execution.mode", ModeSandbox)

	v.SetDefault("sandbox.host", "")
	v.SetDefault("sandbox.tls_ca", "")
	v.SetDefault("sandbox.tls_cert", "")
	v.SetDefault("sandbox.tls_key", "")
	v.SetDefault("sandbox.image", "vizai/sandbox-python:latest")
	v.SetDefault("sandbox.pull_image", true)
	v.SetDefault("sandbox.workdir", "/home/user")
	v.SetDefault("sandbox.memory_mb", 1024)
	v.SetDefault("sandbox.exec_timeout", "2m")
	v.SetDefault("sandbox.require_key", true)

	v.SetDefault("llm.models_file", "")
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.together_base_url", "https://api.together.xyz/v1")
	v.SetDefault("llm.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.openrouter_base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.deepseek_base_url", "https://api.deepseek.com/")
	v.SetDefault("llm.ollama_host", "http://127.0.0.1:11434")

	v.SetDefault("session.ttl", "1h")
	v.SetDefault("session.store", "memory")
	v.SetDefault("redis.url", "redis://localhost:6379/0")

	v.SetDefault("data.dir", "./storage/datasets")
	v.SetDefault("data.max_upload_mb", 50)
	v.SetDefault("data.preview_rows", 5)

	v.SetDefault("ratelimit.requests_per_hour", 100)
	v.SetDefault("ratelimit.burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "logs/vizai.log")
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Execution.Mode {
	case ModeSandbox, ModeDisplay:
	default:
		return fmt.Errorf("invalid execution.mode: %q (use %s or %s)", c.Execution.Mode, ModeSandbox, ModeDisplay)
	}
	switch c.Session.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid session.store: %q (use memory or redis)", c.Session.Store)
	}
	if c.Session.TTL < time.Minute {
		return fmt.Errorf("session.ttl must be at least 1m, got %s", c.Session.TTL)
	}
	if c.Data.PreviewRows <= 0 {
		c.Data.PreviewRows = 5
	}
	if c.RateLimit.RequestsPerHour <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit.requests_per_hour and ratelimit.burst must be positive")
	}
	return nil
}

// SandboxEnabled reports whether generated code is executed.
func (c *Config) SandboxEnabled() bool {
	return c.Execution.Mode == ModeSandbox
}
