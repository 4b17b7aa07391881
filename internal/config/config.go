package config

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/storyteller/backend/internal/logger"
)

// Config 聚合故事服务端的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Image  ImageConfig
	Log    LogConfig
}

// Load 从环境变量加载服务端配置。
func Load() (*Config, error) {
	var cfg Config
	if err := parseEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Server.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Image.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port          string `env:"PORT" envDefault:"8080"`
	FrontendURL   string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	// Addr 由 Port 推导，供 http.Server 使用。
	Addr string `env:"-"`
}

// normalize 解析监听地址并补全图片的对外地址。
func (c *ServerConfig) normalize() error {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.Contains(port, " ") {
		return fmt.Errorf("invalid PORT value: %q", port)
	}

	if strings.Contains(port, ":") {
		// 允许直接传入 ":8080" 或 "127.0.0.1:8080"。
		c.Addr = port
	} else {
		c.Addr = ":" + port
	}

	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
	if c.PublicBaseURL == "" {
		host, p, err := net.SplitHostPort(c.Addr)
		if err != nil {
			return fmt.Errorf("invalid PORT value: %q: %w", port, err)
		}
		if host == "" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		c.PublicBaseURL = "http://" + net.JoinHostPort(host, p)
	}
	c.FrontendURL = strings.TrimSpace(c.FrontendURL)
	return nil
}

// AllowedOrigins 返回 CORS 白名单。
func (c ServerConfig) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return nil
	}
	return []string{c.FrontendURL}
}

// AIConfig 描述故事文本大模型相关配置。
type AIConfig struct {
	APIKey      string   `env:"ARK_API_KEY"`
	AccessKey   string   `env:"ARK_ACCESS_KEY"`
	SecretKey   string   `env:"ARK_SECRET_KEY"`
	Model       string   `env:"Model"`
	BaseURL     string   `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region      string   `env:"ARK_REGION" envDefault:"cn-beijing"`
	Temperature *float64 `env:"ARK_TEMPERATURE"`
	TopP        *float64 `env:"ARK_TOP_P"`
	MaxTokens   *int     `env:"ARK_MAX_TOKENS"`
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// ImageConfig 描述插图生成相关配置。
type ImageConfig struct {
	APIKey             string        `env:"GEMINI_API_KEY"`
	Model              string        `env:"IMAGE_MODEL" envDefault:"gemini-2.5-flash-image-preview"`
	Dir                string        `env:"IMAGE_DIR" envDefault:"generated_images"`
	MaxRetries         int           `env:"IMAGE_MAX_RETRIES" envDefault:"3"`
	InitialBackoff     time.Duration `env:"IMAGE_INITIAL_BACKOFF" envDefault:"2s"`
	FallbackToPrevious bool          `env:"IMAGE_FALLBACK_TO_PREVIOUS" envDefault:"false"`
}

// Enabled 表示是否配置了图片模型密钥。
func (c ImageConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func (c ImageConfig) validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("invalid IMAGE_MAX_RETRIES value: %d", c.MaxRetries)
	}
	if c.InitialBackoff < 0 {
		return fmt.Errorf("invalid IMAGE_INITIAL_BACKOFF value: %s", c.InitialBackoff)
	}
	if strings.TrimSpace(c.Dir) == "" {
		return fmt.Errorf("IMAGE_DIR must not be empty")
	}
	return nil
}

// LogConfig 描述日志配置。
type LogConfig struct {
	Level    string `env:"LOG_LEVEL" envDefault:"info"`
	Encoding string `env:"LOG_ENCODING" envDefault:"json"`
	Output   string `env:"LOG_OUTPUT"`
}

// Logger 转换为 logger 包的配置。
func (c LogConfig) Logger() logger.Config {
	return logger.Config{Level: c.Level, Encoding: c.Encoding, OutputPath: c.Output}
}

// ClientConfig 是终端播放器的配置。
type ClientConfig struct {
	APIURL       string        `env:"STORY_API_URL" envDefault:"http://127.0.0.1:8080/api"`
	TextTimeout  time.Duration `env:"STORY_TEXT_TIMEOUT" envDefault:"90s"`
	ImageTimeout time.Duration `env:"STORY_IMAGE_TIMEOUT" envDefault:"180s"`
	Log          LogConfig
}

// LoadClient 从环境变量加载终端播放器配置。
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := parseEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("STORY_API_URL must not be empty")
	}
	return &cfg, nil
}
