package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/drafting/backend/internal/service/ai"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Bootstrap BootstrapConfig
	Log       LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	aiCfg, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	database, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	rateLimit, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	bootstrap, err := loadBootstrapConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        aiCfg,
		Database:  database,
		Auth:      auth,
		RateLimit: rateLimit,
		CORS:      CORSConfig{AllowedOrigins: splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173"))},
		Bootstrap: bootstrap,
		Log:       LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "info")},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// 支持的生成后端。
const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// AIConfig 描述生成后端配置，密钥只在构造后端时使用。
type AIConfig struct {
	Provider string

	GeminiAPIKey string
	GeminiModel  string

	ArkAPIKey    string
	ArkAccessKey string
	ArkSecretKey string
	ArkModel     string
	ArkBaseURL   string
	ArkRegion    string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	TimeoutSeconds  int
	Temperature     float64
	MaxOutputTokens int
}

// Enabled 表示当前后端是否具备必需的凭证。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.ArkModel != "" && (c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
	case ProviderOpenAI:
		return c.OpenAIAPIKey != "" && c.OpenAIModel != ""
	default:
		return c.GeminiAPIKey != ""
	}
}

// ClientOptions 转换为生成客户端参数。
func (c AIConfig) ClientOptions() ai.Options {
	temperature := c.Temperature
	return ai.Options{
		Timeout:         time.Duration(c.TimeoutSeconds) * time.Second,
		Temperature:     &temperature,
		MaxOutputTokens: c.MaxOutputTokens,
	}
}

// NewBackend 按 Provider 创建生成后端。
func (c AIConfig) NewBackend(ctx context.Context) (ai.Backend, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s 凭证或模型配置缺失", c.Provider)
	}

	switch c.Provider {
	case ProviderArk:
		chatModel, err := c.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("create ark chat model: %w", err)
		}
		return ai.NewArkBackend(ctx, chatModel, c.ArkModel)
	case ProviderOpenAI:
		return ai.NewOpenAIBackend(c.OpenAIAPIKey, c.OpenAIBaseURL, c.OpenAIModel)
	default:
		return ai.NewGeminiBackend(ctx, c.GeminiAPIKey, c.GeminiModel)
	}
}

// NewChatModel 使用 Ark 配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	temperature := float32(c.Temperature)
	maxTokens := c.MaxOutputTokens

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.ArkBaseURL,
		Region:      c.ArkRegion,
		APIKey:      c.ArkAPIKey,
		AccessKey:   c.ArkAccessKey,
		SecretKey:   c.ArkSecretKey,
		Model:       c.ArkModel,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderGemini))
	switch provider {
	case ProviderGemini, ProviderArk, ProviderOpenAI:
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	timeoutSeconds, err := parseIntEnv("GEMINI_TIMEOUT", 30)
	if err != nil {
		return AIConfig{}, err
	}
	if timeoutSeconds <= 0 {
		return AIConfig{}, fmt.Errorf("invalid GEMINI_TIMEOUT value %d: must be positive", timeoutSeconds)
	}

	temperature := 0.7
	if override, err := parseOptionalFloatEnv("GEMINI_TEMPERATURE"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 0 || *override > 1 {
			return AIConfig{}, fmt.Errorf("invalid GEMINI_TEMPERATURE value %v: must be between 0 and 1", *override)
		}
		temperature = *override
	}

	maxTokens, err := parseIntEnv("GEMINI_MAX_OUTPUT_TOKENS", 2048)
	if err != nil {
		return AIConfig{}, err
	}
	if maxTokens <= 0 {
		return AIConfig{}, fmt.Errorf("invalid GEMINI_MAX_OUTPUT_TOKENS value %d: must be positive", maxTokens)
	}

	return AIConfig{
		Provider:        provider,
		GeminiAPIKey:    strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:     getEnvOrDefault("GEMINI_MODEL", ai.DefaultGeminiModel),
		ArkAPIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkAccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		ArkSecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		ArkModel:        strings.TrimSpace(os.Getenv("ARK_MODEL")),
		ArkBaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		OpenAIAPIKey:    strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:   strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		OpenAIModel:     strings.TrimSpace(os.Getenv("OPENAI_MODEL")),
		TimeoutSeconds:  timeoutSeconds,
		Temperature:     temperature,
		MaxOutputTokens: maxTokens,
	}, nil
}

// 数据库驱动。
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// DatabaseConfig 描述存储配置。
type DatabaseConfig struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("DB_DRIVER", DriverPostgres))
	var defaultURL string
	switch driver {
	case DriverPostgres:
		defaultURL = "postgres://localhost/genai_email_report?sslmode=disable"
	case DriverSQLite:
		defaultURL = "file:drafting.db?_pragma=foreign_keys(1)"
	case DriverMemory:
	default:
		return DatabaseConfig{}, fmt.Errorf("invalid DB_DRIVER value %q", driver)
	}

	maxOpen, err := parseIntEnv("DB_MAX_OPEN_CONNS", 10)
	if err != nil {
		return DatabaseConfig{}, err
	}
	maxIdle, err := parseIntEnv("DB_MAX_IDLE_CONNS", 5)
	if err != nil {
		return DatabaseConfig{}, err
	}
	lifetime, err := parseDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	if err != nil {
		return DatabaseConfig{}, err
	}

	return DatabaseConfig{
		Driver:          driver,
		URL:             getEnvOrDefault("DATABASE_URL", defaultURL),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: lifetime,
	}, nil
}

// AuthConfig 描述令牌签发配置。
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

func loadAuthConfig() (AuthConfig, error) {
	ttl, err := parseDurationEnv("JWT_ACCESS_TOKEN_EXPIRES", 24*time.Hour)
	if err != nil {
		return AuthConfig{}, err
	}
	return AuthConfig{
		JWTSecret: getEnvOrDefault("JWT_SECRET_KEY", "dev-jwt-secret-change-in-production"),
		TokenTTL:  ttl,
	}, nil
}

// RateLimitConfig 描述限流配置，限额格式如 "10 per minute"。
type RateLimitConfig struct {
	Enabled    bool
	StorageURL string
	Default    string
	Generation string
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	enabled, err := parseBoolEnv("RATELIMIT_ENABLED", true)
	if err != nil {
		return RateLimitConfig{}, err
	}
	return RateLimitConfig{
		Enabled:    enabled,
		StorageURL: getEnvOrDefault("RATELIMIT_STORAGE_URL", "memory://"),
		Default:    getEnvOrDefault("RATELIMIT_DEFAULT", "200 per day, 50 per hour"),
		Generation: getEnvOrDefault("RATELIMIT_DOCUMENT_GENERATION", "10 per minute"),
	}, nil
}

// CORSConfig 描述允许的跨域来源。
type CORSConfig struct {
	AllowedOrigins []string
}

// BootstrapConfig 描述首次启动时创建的管理员。
type BootstrapConfig struct {
	Enabled  bool
	Username string
	Email    string
	Password string
}

func loadBootstrapConfig() (BootstrapConfig, error) {
	enabled, err := parseBoolEnv("ADMIN_BOOTSTRAP_ENABLED", false)
	if err != nil {
		return BootstrapConfig{}, err
	}
	return BootstrapConfig{
		Enabled:  enabled,
		Username: strings.TrimSpace(os.Getenv("ADMIN_BOOTSTRAP_USERNAME")),
		Email:    strings.TrimSpace(os.Getenv("ADMIN_BOOTSTRAP_EMAIL")),
		Password: os.Getenv("ADMIN_BOOTSTRAP_PASSWORD"),
	}, nil
}

// LogConfig 描述日志级别。
type LogConfig struct {
	Level string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseDurationEnv 接受 Go duration（"24h"）或整数秒。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return d, nil
}
