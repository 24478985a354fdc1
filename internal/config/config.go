package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host          string // 监听地址，默认 "0.0.0.0"
	Port          int    // 监听端口，默认 8080
	SecureCookies bool   // 是否以 Secure 属性下发 Cookie（HTTPS 部署时开启）
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 彩色输出和详细堆栈
	File        string // 日志文件路径，留空仅输出到 stdout
}

// RedisConfig 定义 Redis 服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号
}

// JWTConfig 定义访问令牌签名配置
type JWTConfig struct {
	Secret   string        // 签名密钥，必须至少 32 字符
	Issuer   string        // 签发者标识
	TokenTTL time.Duration // 令牌有效期，固定默认 24h
}

// PleskConfig 定义会话授权方（Plesk 面板）的访问配置
type PleskConfig struct {
	BaseURL string        // 会话校验接口地址
	APIKey  string        // 调用凭证，随 X-API-Key 头发送
	Timeout time.Duration // 单次校验超时
}

// POP3Config 定义凭证探测所用邮件收取服务的配置
type POP3Config struct {
	Address string        // POP3 服务地址，格式 "host:port"
	UseTLS  bool          // 是否使用隐式 TLS（通常 995 端口）
	Timeout time.Duration // 握手总超时
}

// EngineConfig 定义过滤引擎列表存储的后端选择
type EngineConfig struct {
	Backend string        // "memory" 或 "redis"
	Timeout time.Duration // 单次列表操作超时
}

// RateLimitConfig 定义限流阈值
type RateLimitConfig struct {
	PerPrincipalLimit  int           // 每主体窗口内最大请求数
	PerPrincipalWindow time.Duration // 每主体滑动窗口宽度
	PerIPRate          float64       // 每客户端 IP 的平均速率 (req/sec)
	PerIPBurst         int           // 每客户端 IP 的突发额度
}

// Config 是系统核心配置的根结构体
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	Log       LogConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Plesk     PleskConfig
	POP3      POP3Config
	Engine    EngineConfig
	RateLimit RateLimitConfig
}

// Load 从环境变量和可选的 .env 文件加载配置。
//
// 优先级：系统环境变量 > .env 文件 > 默认值。
// 环境变量前缀 MAILGUARD_，如 MAILGUARD_SERVER_PORT、MAILGUARD_JWT_SECRET。
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("mailguard")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.secure_cookies", false)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "mailguard")
	viper.SetDefault("jwt.token_ttl", "24h")
	viper.SetDefault("plesk.base_url", "http://127.0.0.1:8443/api/session/verify")
	viper.SetDefault("plesk.api_key", "")
	viper.SetDefault("plesk.timeout", "5s")
	viper.SetDefault("pop3.address", "127.0.0.1:110")
	viper.SetDefault("pop3.use_tls", false)
	viper.SetDefault("pop3.timeout", "5s")
	viper.SetDefault("engine.backend", "memory")
	viper.SetDefault("engine.timeout", "10s")
	viper.SetDefault("ratelimit.per_principal_limit", 120)
	viper.SetDefault("ratelimit.per_principal_window", "1m")
	viper.SetDefault("ratelimit.per_ip_rate", 5.0)
	viper.SetDefault("ratelimit.per_ip_burst", 20)

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	tokenTTL, err := time.ParseDuration(viper.GetString("jwt.token_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid jwt.token_ttl: %w", err)
	}

	pleskTimeout, err := time.ParseDuration(viper.GetString("plesk.timeout"))
	if err != nil {
		pleskTimeout = 5 * time.Second
	}

	pop3Timeout, err := time.ParseDuration(viper.GetString("pop3.timeout"))
	if err != nil {
		pop3Timeout = 5 * time.Second
	}

	engineTimeout, err := time.ParseDuration(viper.GetString("engine.timeout"))
	if err != nil {
		engineTimeout = 10 * time.Second
	}

	rateWindow, err := time.ParseDuration(viper.GetString("ratelimit.per_principal_window"))
	if err != nil {
		rateWindow = time.Minute
	}

	engineBackend := strings.ToLower(viper.GetString("engine.backend"))
	if engineBackend != "memory" && engineBackend != "redis" {
		return nil, fmt.Errorf("invalid engine.backend %q: must be \"memory\" or \"redis\"", engineBackend)
	}

	jwtSecret := viper.GetString("jwt.secret")

	// 安全检查：禁止使用默认的 JWT secret
	if jwtSecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret cannot be the default value. Please set MAILGUARD_JWT_SECRET environment variable")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:          viper.GetString("server.host"),
			Port:          viper.GetInt("server.port"),
			SecureCookies: viper.GetBool("server.secure_cookies"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:   jwtSecret,
			Issuer:   viper.GetString("jwt.issuer"),
			TokenTTL: tokenTTL,
		},
		Plesk: PleskConfig{
			BaseURL: viper.GetString("plesk.base_url"),
			APIKey:  viper.GetString("plesk.api_key"),
			Timeout: pleskTimeout,
		},
		POP3: POP3Config{
			Address: viper.GetString("pop3.address"),
			UseTLS:  viper.GetBool("pop3.use_tls"),
			Timeout: pop3Timeout,
		},
		Engine: EngineConfig{
			Backend: engineBackend,
			Timeout: engineTimeout,
		},
		RateLimit: RateLimitConfig{
			PerPrincipalLimit:  viper.GetInt("ratelimit.per_principal_limit"),
			PerPrincipalWindow: rateWindow,
			PerIPRate:          viper.GetFloat64("ratelimit.per_ip_rate"),
			PerIPBurst:         viper.GetInt("ratelimit.per_ip_burst"),
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件（可选，静默失败）
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
