package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	Settlement SettlementConfig
	Session    SessionConfig
	Pages      PagesConfig
	Log        LogConfig
}

// Load 从环境变量加载配置，CONFIG_FILE 指向的 TOML 文件提供默认值。
func Load() (*Config, error) {
	return LoadFile(strings.TrimSpace(os.Getenv("CONFIG_FILE")))
}

// LoadFile 先读取 TOML 文件（path 为空时跳过），再用环境变量覆盖。
func LoadFile(path string) (*Config, error) {
	var file fileConfig
	if path != "" {
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	server, err := loadServerConfig(file)
	if err != nil {
		return nil, err
	}

	settlement, err := loadSettlementConfig(file.Settlement)
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig(file.Session)
	if err != nil {
		return nil, err
	}

	pages := PagesConfig{
		SuccessPath: getEnvOrDefault("PAYMENT_SUCCESS_PATH", orDefault(file.Pages.Success, "/payment/success")),
		FailurePath: getEnvOrDefault("PAYMENT_FAILURE_PATH", orDefault(file.Pages.Failure, "/payment/failure")),
		PendingPath: getEnvOrDefault("PAYMENT_PENDING_PATH", orDefault(file.Pages.Pending, "/payment/pending")),
	}
	for key, value := range map[string]string{
		"PAYMENT_SUCCESS_PATH": pages.SuccessPath,
		"PAYMENT_FAILURE_PATH": pages.FailurePath,
		"PAYMENT_PENDING_PATH": pages.PendingPath,
	} {
		if err := validatePath(key, value); err != nil {
			return nil, err
		}
	}

	return &Config{
		Server:     server,
		Settlement: settlement,
		Session:    session,
		Pages:      pages,
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", orDefault(file.Log.Level, "info")),
			Format: getEnvOrDefault("LOG_FORMAT", orDefault(file.Log.Format, "json")),
		},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// PublicBaseURL is where the signing provider sends the payer back to.
	PublicBaseURL string
}

// SettlementConfig 描述结算服务调用配置。
type SettlementConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

// SessionConfig 描述支付会话的生命周期。
type SessionConfig struct {
	TTL              time.Duration
	SweepInterval    time.Duration
	OutcomeRetention time.Duration
	PollInterval     time.Duration
	CookieName       string
	// FeeLeg selects the paired flow when a request does not say.
	FeeLeg bool
}

// PagesConfig 描述支付结果页路径。
type PagesConfig struct {
	SuccessPath string
	FailurePath string
	PendingPath string
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

type fileConfig struct {
	Port          string         `toml:"port"`
	PublicBaseURL string         `toml:"public_base_url"`
	Settlement    settlementFile `toml:"settlement"`
	Session       sessionFile    `toml:"session"`
	Pages         struct {
		Success string `toml:"success"`
		Failure string `toml:"failure"`
		Pending string `toml:"pending"`
	} `toml:"pages"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
}

type settlementFile struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds *int   `toml:"timeout_seconds"`
	MaxRetries     *int   `toml:"max_retries"`
	RetryWaitMS    *int   `toml:"retry_wait_ms"`
	RetryMaxWaitMS *int   `toml:"retry_max_wait_ms"`
}

type sessionFile struct {
	TTLMinutes              *int   `toml:"ttl_minutes"`
	SweepSeconds            *int   `toml:"sweep_seconds"`
	OutcomeRetentionMinutes *int   `toml:"outcome_retention_minutes"`
	StatusPollMS            *int   `toml:"status_poll_ms"`
	Cookie                  string `toml:"cookie"`
	FeeLeg                  *bool  `toml:"fee_leg"`
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(file fileConfig) (ServerConfig, error) {
	port := getEnvOrDefault("PORT", orDefault(file.Port, "3000"))

	addr := port
	if !strings.Contains(port, ":") {
		// 允许用户直接传入 ":3000" 或 "127.0.0.1:3000"。
		if strings.Contains(port, " ") {
			return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
		}
		addr = ":" + port
	}

	base := strings.TrimRight(getEnvOrDefault("PUBLIC_BASE_URL", orDefault(file.PublicBaseURL, "http://localhost:3000")), "/")
	if err := validateURL("PUBLIC_BASE_URL", base); err != nil {
		return ServerConfig{}, err
	}

	return ServerConfig{Addr: addr, PublicBaseURL: base}, nil
}

func loadSettlementConfig(file settlementFile) (SettlementConfig, error) {
	base := strings.TrimRight(getEnvOrDefault("SETTLEMENT_BASE_URL", orDefault(file.BaseURL, "http://localhost:8080/api/v2")), "/")
	if err := validateURL("SETTLEMENT_BASE_URL", base); err != nil {
		return SettlementConfig{}, err
	}

	timeout, err := intSetting("SETTLEMENT_TIMEOUT", file.TimeoutSeconds, 10, 1)
	if err != nil {
		return SettlementConfig{}, err
	}
	retries, err := intSetting("SETTLEMENT_MAX_RETRIES", file.MaxRetries, 2, 0)
	if err != nil {
		return SettlementConfig{}, err
	}
	wait, err := intSetting("SETTLEMENT_RETRY_WAIT_MS", file.RetryWaitMS, 200, 1)
	if err != nil {
		return SettlementConfig{}, err
	}
	maxWait, err := intSetting("SETTLEMENT_RETRY_MAX_WAIT_MS", file.RetryMaxWaitMS, 2000, 1)
	if err != nil {
		return SettlementConfig{}, err
	}
	if maxWait < wait {
		maxWait = wait
	}

	return SettlementConfig{
		BaseURL:      base,
		Timeout:      time.Duration(timeout) * time.Second,
		MaxRetries:   retries,
		RetryWait:    time.Duration(wait) * time.Millisecond,
		RetryMaxWait: time.Duration(maxWait) * time.Millisecond,
	}, nil
}

func loadSessionConfig(file sessionFile) (SessionConfig, error) {
	ttl, err := intSetting("SESSION_TTL_MINUTES", file.TTLMinutes, 15, 1)
	if err != nil {
		return SessionConfig{}, err
	}
	sweep, err := intSetting("SESSION_SWEEP_SECONDS", file.SweepSeconds, 30, 1)
	if err != nil {
		return SessionConfig{}, err
	}
	retention, err := intSetting("OUTCOME_RETENTION_MINUTES", file.OutcomeRetentionMinutes, 10, 0)
	if err != nil {
		return SessionConfig{}, err
	}
	poll, err := intSetting("STATUS_POLL_MS", file.StatusPollMS, 500, 10)
	if err != nil {
		return SessionConfig{}, err
	}

	feeDefault := true
	if file.FeeLeg != nil {
		feeDefault = *file.FeeLeg
	}
	feeLeg, err := parseBoolEnv("PAYMENT_FEE_LEG", feeDefault)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{
		TTL:              time.Duration(ttl) * time.Minute,
		SweepInterval:    time.Duration(sweep) * time.Second,
		OutcomeRetention: time.Duration(retention) * time.Minute,
		PollInterval:     time.Duration(poll) * time.Millisecond,
		CookieName:       getEnvOrDefault("SESSION_COOKIE", orDefault(file.Cookie, "payment_id")),
		FeeLeg:           feeLeg,
	}, nil
}

// intSetting resolves env > file > default and enforces a lower bound.
func intSetting(key string, fileValue *int, defaultValue, min int) (int, error) {
	value := defaultValue
	if fileValue != nil {
		value = *fileValue
	}

	override, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if override != nil {
		value = *override
	}

	if value < min {
		return 0, fmt.Errorf("invalid %s value %d: must be >= %d", key, value, min)
	}
	return value, nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s value %q: want an absolute http(s) URL", key, raw)
	}
	return nil
}

// validatePath requires a rooted path; result pages are routes on this server.
func validatePath(key, raw string) error {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "?# ") {
		return fmt.Errorf("invalid %s value %q: want a path starting with /", key, raw)
	}
	return nil
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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
