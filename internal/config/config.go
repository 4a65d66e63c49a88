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
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	AI        AIConfig
	Policy    PolicyConfig
	Retrieval RetrievalConfig
	Store     StoreConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Mood      MoodConfig
	Retention RetentionConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	retrieval, err := loadRetrievalConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	mood, err := loadMoodConfig()
	if err != nil {
		return nil, err
	}

	retention, err := loadRetentionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Log:       loadLogConfig(),
		AI:        ai,
		Policy:    PolicyConfig{Variant: getEnvOrDefault("POLICY_VARIANT", "clinical")},
		Retrieval: retrieval,
		Store:     store,
		Auth:      AuthConfig{JWTSecret: strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET"))},
		Redis:     RedisConfig{URL: strings.TrimSpace(os.Getenv("REDIS_URL"))},
		Mood:      mood,
		Retention: retention,
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
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig 描述日志输出配置。
type LogConfig struct {
	Level       string
	Development bool
}

func loadLogConfig() LogConfig {
	env := strings.ToLower(getEnvOrDefault("APP_ENV", "production"))
	return LogConfig{
		Level:       strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Development: env == "development" || env == "dev",
	}
}

// Generator providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderArk        = "ark"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterModel   string
	AppTitle          string
	Referer           string

	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Timeout     time.Duration
}

// Provider 根据凭证选择生成通道：配置了 OpenRouter key 时直连 OpenRouter，否则走 Ark 链路。
func (c AIConfig) Provider() string {
	if c.OpenRouterAPIKey != "" {
		return ProviderOpenRouter
	}
	if c.ArkEnabled() {
		return ProviderArk
	}
	return ""
}

// Enabled 表示是否至少有一条可用的生成通道。
func (c AIConfig) Enabled() bool {
	return c.Provider() != ""
}

// ArkEnabled 表示是否提供了 Ark 必需的密钥。
func (c AIConfig) ArkEnabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.ArkEnabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
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

// TemperatureOr 返回配置的温度或默认值。
func (c AIConfig) TemperatureOr(def float64) float64 {
	if c.Temperature != nil {
		return *c.Temperature
	}
	return def
}

// MaxTokensOr 返回配置的最大输出长度或默认值。
func (c AIConfig) MaxTokensOr(def int) int {
	if c.MaxTokens != nil {
		return *c.MaxTokens
	}
	return def
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseDurationEnv("AI_TIMEOUT", 30*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	openRouterKey := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	// 前端模板里的占位值视为未配置。
	if openRouterKey == "your_openrouter_api_key_here" {
		openRouterKey = ""
	}

	return AIConfig{
		OpenRouterAPIKey:  openRouterKey,
		OpenRouterBaseURL: getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterModel:   getEnvOrDefault("OPENROUTER_MODEL", "openai/gpt-3.5-turbo"),
		AppTitle:          getEnvOrDefault("APP_TITLE", "MindEase"),
		Referer:           strings.TrimSpace(os.Getenv("APP_ORIGIN")),
		APIKey:            strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:         strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:         strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:             strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:           getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:            getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:       temperature,
		TopP:              topP,
		MaxTokens:         maxTokens,
		Timeout:           timeout,
	}, nil
}

// PolicyConfig 选择生效的系统提示词版本。
type PolicyConfig struct {
	Variant string
}

// Retrieval modes.
const (
	RetrievalStatic = "static"
	RetrievalVector = "vector"
)

// Matcher backends.
const (
	MatcherChromem  = "chromem"
	MatcherPostgres = "postgres"
)

// RetrievalConfig 描述知识检索通道。
type RetrievalConfig struct {
	Mode           string
	Matcher        string
	GenAIAPIKey    string
	EmbeddingModel string
	Threshold      float64
	MatchCount     int
	ChromemDir     string
	Collection     string
	PostgresDSN    string
}

func loadRetrievalConfig() (RetrievalConfig, error) {
	threshold := 0.78
	if override, err := parseOptionalFloatEnv("RETRIEVAL_THRESHOLD"); err != nil {
		return RetrievalConfig{}, err
	} else if override != nil {
		threshold = *override
	}

	count := 5
	if override, err := parseOptionalIntEnv("RETRIEVAL_MATCH_COUNT"); err != nil {
		return RetrievalConfig{}, err
	} else if override != nil && *override > 0 {
		count = *override
	}

	cfg := RetrievalConfig{
		Mode:           strings.ToLower(getEnvOrDefault("RETRIEVAL_MODE", RetrievalStatic)),
		Matcher:        strings.ToLower(getEnvOrDefault("RETRIEVAL_MATCHER", MatcherChromem)),
		GenAIAPIKey:    strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		EmbeddingModel: getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-004"),
		Threshold:      threshold,
		MatchCount:     count,
		ChromemDir:     getEnvOrDefault("CHROMEM_DIR", "./data"),
		Collection:     getEnvOrDefault("CHROMEM_COLLECTION", "documents"),
		PostgresDSN:    strings.TrimSpace(os.Getenv("RETRIEVAL_POSTGRES_DSN")),
	}

	switch cfg.Mode {
	case RetrievalStatic, RetrievalVector:
	default:
		return RetrievalConfig{}, fmt.Errorf("invalid RETRIEVAL_MODE value: %q", cfg.Mode)
	}
	switch cfg.Matcher {
	case MatcherChromem, MatcherPostgres:
	default:
		return RetrievalConfig{}, fmt.Errorf("invalid RETRIEVAL_MATCHER value: %q", cfg.Matcher)
	}
	return cfg, nil
}

// VectorEnabled 表示向量检索通道所需配置是否齐全。
func (c RetrievalConfig) VectorEnabled() bool {
	if c.Mode != RetrievalVector || c.GenAIAPIKey == "" {
		return false
	}
	if c.Matcher == MatcherPostgres {
		return c.PostgresDSN != ""
	}
	return c.ChromemDir != ""
}

// StoreConfig 描述持久化存储。
type StoreConfig struct {
	Driver string
	DSN    string
}

func loadStoreConfig() (StoreConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORE_DRIVER", "sqlite"))
	switch driver {
	case "sqlite", "postgres":
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value: %q", driver)
	}

	dsn := strings.TrimSpace(os.Getenv("STORE_DSN"))
	if dsn == "" && driver == "sqlite" {
		dsn = "file:mindease.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	if dsn == "" {
		return StoreConfig{}, fmt.Errorf("STORE_DSN is required for driver %s", driver)
	}
	return StoreConfig{Driver: driver, DSN: dsn}, nil
}

// AuthConfig 描述身份令牌校验配置，令牌由托管身份服务签发。
type AuthConfig struct {
	JWTSecret string
}

// RedisConfig 描述可选的跨进程单飞锁。
type RedisConfig struct {
	URL string
}

// MoodConfig 描述情绪日志按日历天统计时使用的时区。
type MoodConfig struct {
	Location *time.Location
}

func loadMoodConfig() (MoodConfig, error) {
	name := strings.TrimSpace(os.Getenv("MOOD_TIMEZONE"))
	if name == "" {
		return MoodConfig{Location: time.Local}, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return MoodConfig{}, fmt.Errorf("invalid MOOD_TIMEZONE value %q: %w", name, err)
	}
	return MoodConfig{Location: loc}, nil
}

// RetentionConfig 描述进程内数据的清理策略。
type RetentionConfig struct {
	// Schedule 是 cron 表达式，支持 "@every 5m" 这类写法。
	Schedule            string
	ConversationIdleTTL time.Duration
	GuestTTL            time.Duration
}

func loadRetentionConfig() (RetentionConfig, error) {
	idle, err := parseDurationEnv("CONVERSATION_IDLE_TTL", 30*time.Minute)
	if err != nil {
		return RetentionConfig{}, err
	}
	guest, err := parseDurationEnv("GUEST_DATA_TTL", 24*time.Hour)
	if err != nil {
		return RetentionConfig{}, err
	}
	return RetentionConfig{
		Schedule:            getEnvOrDefault("RETENTION_SCHEDULE", "@every 5m"),
		ConversationIdleTTL: idle,
		GuestTTL:            guest,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
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
