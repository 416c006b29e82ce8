package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App     AppConfig     `json:"app"`
	MySQL   MySQLConfig   `json:"mysql"`
	Redis   RedisConfig   `json:"redis"`
	Fetch   FetchConfig   `json:"fetch"`
	Email   EmailConfig   `json:"email"`
	Browser BrowserConfig `json:"browser"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env            string        `json:"env"`              // 运行环境: local / prod
	LogLevel       string        `json:"log_level"`        // 日志级别: debug / info / warn / error
	HTTPAddr       string        `json:"http_addr"`        // Admin API 监听地址
	MetricsAddr    string        `json:"metrics_addr"`     // Prometheus 指标监听地址
	ScanInterval   time.Duration `json:"scan_interval"`    // 全量扫描调度间隔（如 "30m"）
	ScanPageSize   int           `json:"scan_page_size"`   // 分页扫描每页条数
	WorkerPoolSize int           `json:"worker_pool_size"` // 单页内并发处理的 worker 数（1 表示严格串行）
	ProductsTable  string        `json:"products_table"`   // 商品表名（必填）
	UsersTable     string        `json:"users_table"`      // 用户表名（必填）
	RateLimit      float64       `json:"rate_limit"`       // 单个站点抓取限流速率（token/s，0 表示不限）
	RateBurst      float64       `json:"rate_burst"`       // 限流桶容量
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// FetchConfig 页面抓取配置。
type FetchConfig struct {
	Timeout   time.Duration `json:"timeout"`    // 单次页面抓取超时
	UserAgent string        `json:"user_agent"` // 抓取请求的 User-Agent
	Mode      string        `json:"mode"`       // 抓取模式: http / browser
}

// BrowserConfig 浏览器抓取模式的配置（Mode 为 browser 时生效）。
type BrowserConfig struct {
	BinPath  string `json:"bin_path"` // 浏览器可执行文件路径（为空则自动下载）
	Headless bool   `json:"headless"` // 是否使用无头模式
}

// EmailConfig 邮件通知配置。
//
// PriceDropTo / RestockTo 是两类事件各自的投递地址，
// 为空表示静默关闭对应事件的通知。
type EmailConfig struct {
	SMTPHost    string `json:"smtp_host"`
	SMTPPort    int    `json:"smtp_port"`
	SMTPUser    string `json:"smtp_user"`
	SMTPPass    string `json:"smtp_pass"`
	FromEmail   string `json:"from_email"`
	PriceDropTo string `json:"price_drop_to"` // 降价通知投递地址（可选）
	RestockTo   string `json:"restock_to"`    // 补货通知投递地址（可选）
}

// Load 从 JSON 文件加载配置。
//
// 文件不存在时使用默认值；环境变量始终优先覆盖文件内容。
//
// 参数:
//
//	configPath: 配置文件路径（为空则使用默认路径 "configs/config.json"）
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	cfg := getDefaultConfig()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		applyDefaults(cfg)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate 校验必填配置。
//
// 商品表和用户表的表名缺失是致命错误，必须在任何处理开始前中止。
// 通知投递地址是可选项，缺失只会静默关闭对应事件。
func (c *Config) Validate() error {
	if c.App.ProductsTable == "" {
		return errors.New("products table name is required (PRODUCTS_TABLE)")
	}
	if c.App.UsersTable == "" {
		return errors.New("users table name is required (USERS_TABLE)")
	}
	switch c.Fetch.Mode {
	case "http", "browser":
	default:
		return fmt.Errorf("invalid fetch mode: %q", c.Fetch.Mode)
	}
	return nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:            "local",
			LogLevel:       "info",
			HTTPAddr:       ":8081",
			MetricsAddr:    ":2112",
			ScanInterval:   30 * time.Minute,
			ScanPageSize:   50,
			WorkerPoolSize: 1,
			ProductsTable:  "tracked_products",
			UsersTable:     "users",
			RateLimit:      2,
			RateBurst:      4,
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/tracker?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Fetch: FetchConfig{
			Timeout:   20 * time.Second,
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
			Mode:      "http",
		},
		Browser: BrowserConfig{
			BinPath:  "",
			Headless: true,
		},
		Email: EmailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.MetricsAddr == "" {
		cfg.App.MetricsAddr = defaults.App.MetricsAddr
	}
	if cfg.App.ScanInterval == 0 {
		cfg.App.ScanInterval = defaults.App.ScanInterval
	}
	if cfg.App.ScanPageSize == 0 {
		cfg.App.ScanPageSize = defaults.App.ScanPageSize
	}
	if cfg.App.WorkerPoolSize == 0 {
		cfg.App.WorkerPoolSize = defaults.App.WorkerPoolSize
	}
	if cfg.App.ProductsTable == "" {
		cfg.App.ProductsTable = defaults.App.ProductsTable
	}
	if cfg.App.UsersTable == "" {
		cfg.App.UsersTable = defaults.App.UsersTable
	}
	if cfg.App.RateLimit == 0 {
		cfg.App.RateLimit = defaults.App.RateLimit
	}
	if cfg.App.RateBurst == 0 {
		cfg.App.RateBurst = defaults.App.RateBurst
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = defaults.Fetch.Timeout
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = defaults.Fetch.UserAgent
	}
	if cfg.Fetch.Mode == "" {
		cfg.Fetch.Mode = defaults.Fetch.Mode
	}
	if cfg.Email.SMTPHost == "" {
		cfg.Email.SMTPHost = defaults.Email.SMTPHost
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_dsn", "DB_DSN")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_METRICS_ADDR"); v != "" {
		cfg.App.MetricsAddr = v
	}
	if v := os.Getenv("APP_SCAN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.ScanInterval = d
		}
	}
	if v := os.Getenv("APP_SCAN_PAGE_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.ScanPageSize = i
		}
	}
	if v := os.Getenv("APP_WORKER_POOL_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.WorkerPoolSize = i
		}
	}
	if v := os.Getenv("PRODUCTS_TABLE"); v != "" {
		cfg.App.ProductsTable = v
	}
	if v := os.Getenv("USERS_TABLE"); v != "" {
		cfg.App.UsersTable = v
	}
	if v := os.Getenv("APP_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateLimit = f
		}
	}
	if v := os.Getenv("APP_RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateBurst = f
		}
	}

	if v := viper.GetString("db_dsn"); v != "" {
		cfg.MySQL.DSN = v
	}
	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Fetch.Timeout = d
		}
	}
	if v := os.Getenv("FETCH_USER_AGENT"); v != "" {
		cfg.Fetch.UserAgent = v
	}
	if v := os.Getenv("FETCH_MODE"); v != "" {
		cfg.Fetch.Mode = v
	}
	if v := os.Getenv("CHROME_BIN"); v != "" {
		cfg.Browser.BinPath = v
	}
	if v := os.Getenv("BROWSER_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Browser.Headless = b
		}
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
	if v := os.Getenv("NOTIFY_PRICE_DROP_TO"); v != "" {
		cfg.Email.PriceDropTo = v
	}
	if v := os.Getenv("NOTIFY_RESTOCK_TO"); v != "" {
		cfg.Email.RestockTo = v
	}
}

// Summary 返回适合在启动日志里输出的配置摘要（不含敏感信息）。
func (c *Config) Summary() string {
	priceDrop := "disabled"
	if c.Email.PriceDropTo != "" {
		priceDrop = "enabled"
	}
	restock := "disabled"
	if c.Email.RestockTo != "" {
		restock = "enabled"
	}
	return fmt.Sprintf("env=%s products_table=%s users_table=%s scan_interval=%s page_size=%d workers=%d fetch_mode=%s price_drop_notify=%s restock_notify=%s",
		c.App.Env, c.App.ProductsTable, c.App.UsersTable, c.App.ScanInterval, c.App.ScanPageSize, c.App.WorkerPoolSize, c.Fetch.Mode, priceDrop, restock)
}

// UnmarshalJSON 自定义 JSON 解析，支持时间 Duration 字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		ScanInterval string `json:"scan_interval"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.ScanInterval != "" {
		duration, err := time.ParseDuration(aux.ScanInterval)
		if err != nil {
			return fmt.Errorf("invalid scan_interval format: %w", err)
		}
		a.ScanInterval = duration
	}

	return nil
}

// UnmarshalJSON 自定义 JSON 解析，支持时间 Duration 字符串。
func (f *FetchConfig) UnmarshalJSON(data []byte) error {
	type Alias FetchConfig
	aux := &struct {
		Timeout string `json:"timeout"`
		*Alias
	}{
		Alias: (*Alias)(f),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Timeout != "" {
		duration, err := time.ParseDuration(aux.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout format: %w", err)
		}
		f.Timeout = duration
	}

	return nil
}
