// Пакет config — загрузка и валидация конфигурации Frontdesk
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Frontdesk.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- JWT (контекст пользователя выдаёт внешний IdP) ---

	// URL JWKS endpoint
	JWTJWKSURL string
	// Ожидаемый issuer JWT (пустая строка — не проверяется)
	JWTIssuer string
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал фонового обновления JWKS
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration

	// --- Загрузка изображений рекламы ---

	// Директория хранения файлов на диске
	UploadDir string
	// Публичный префикс URL, под которым файлы доступны (например, /uploads)
	UploadURLPrefix string
	// Максимальный размер загружаемого файла в байтах
	UploadMaxBytes int64

	// --- Бюджеты ---

	// Slug отдела финансов (сотрудник этого отдела — finance staff)
	FinanceDepartmentSlug string

	// --- API-ключи ---

	// HTTP-заголовок с API-ключом
	APIKeyHeader string
	// URL Redis для лимита неудачных проверок ключей (пусто — лимит отключён)
	RedisURL string
	// Допустимое число неудачных проверок с одного адреса в окне
	APIKeyFailLimit int
	// Окно подсчёта неудачных проверок
	APIKeyFailWindow time.Duration

	// --- Кэш настроек площадок ---

	SiteConfigCacheSize int
	SiteConfigCacheTTL  time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// FD_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("FD_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("FD_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FD_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FD_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("FD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FD_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("FD_DB_HOST")
	if err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("FD_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("FD_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("FD_DB_NAME")
	if err != nil {
		return nil, err
	}

	cfg.DBUser, err = getEnvRequired("FD_DB_USER")
	if err != nil {
		return nil, err
	}

	cfg.DBPassword, err = getEnvRequired("FD_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("FD_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("FD_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- JWT ---

	// FD_JWT_JWKS_URL — обязательный
	cfg.JWTJWKSURL, err = getEnvRequired("FD_JWT_JWKS_URL")
	if err != nil {
		return nil, err
	}
	if u, parseErr := url.Parse(cfg.JWTJWKSURL); parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("FD_JWT_JWKS_URL: ожидается http(s) URL, получено %q", cfg.JWTJWKSURL)
	}

	cfg.JWTIssuer = getEnvDefault("FD_JWT_ISSUER", "")

	cfg.JWTLeeway, err = getEnvDuration("FD_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FD_JWT_LEEWAY: %w", err)
	}

	cfg.JWKSRefreshInterval, err = getEnvDuration("FD_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FD_JWKS_REFRESH_INTERVAL: %w", err)
	}

	cfg.JWKSClientTimeout, err = getEnvDuration("FD_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FD_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// --- Загрузка изображений ---

	cfg.UploadDir = getEnvDefault("FD_UPLOAD_DIR", "/var/lib/frontdesk/uploads")

	// Префикс нормализуем к виду /uploads (без завершающего слэша)
	cfg.UploadURLPrefix = "/" + strings.Trim(getEnvDefault("FD_UPLOAD_URL_PREFIX", "/uploads"), "/")

	maxBytes, err := getEnvInt("FD_UPLOAD_MAX_BYTES", 5<<20)
	if err != nil {
		return nil, fmt.Errorf("FD_UPLOAD_MAX_BYTES: %w", err)
	}
	if maxBytes < 1024 {
		return nil, fmt.Errorf("FD_UPLOAD_MAX_BYTES: значение %d меньше минимального 1024", maxBytes)
	}
	cfg.UploadMaxBytes = int64(maxBytes)

	// --- Бюджеты ---

	cfg.FinanceDepartmentSlug = getEnvDefault("FD_FINANCE_DEPARTMENT_SLUG", "finance")

	// --- API-ключи ---

	cfg.APIKeyHeader = getEnvDefault("FD_API_KEY_HEADER", "X-API-Key")

	cfg.RedisURL = getEnvDefault("FD_REDIS_URL", "")

	cfg.APIKeyFailLimit, err = getEnvInt("FD_API_KEY_FAIL_LIMIT", 10)
	if err != nil {
		return nil, fmt.Errorf("FD_API_KEY_FAIL_LIMIT: %w", err)
	}
	if cfg.APIKeyFailLimit < 1 {
		return nil, fmt.Errorf("FD_API_KEY_FAIL_LIMIT: значение %d должно быть положительным", cfg.APIKeyFailLimit)
	}

	cfg.APIKeyFailWindow, err = getEnvDuration("FD_API_KEY_FAIL_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FD_API_KEY_FAIL_WINDOW: %w", err)
	}

	// --- Кэш настроек площадок ---

	cfg.SiteConfigCacheSize, err = getEnvInt("FD_SITE_CONFIG_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("FD_SITE_CONFIG_CACHE_SIZE: %w", err)
	}
	if cfg.SiteConfigCacheSize < 1 || cfg.SiteConfigCacheSize > 100000 {
		return nil, fmt.Errorf("FD_SITE_CONFIG_CACHE_SIZE: значение %d вне допустимого диапазона 1-100000", cfg.SiteConfigCacheSize)
	}

	cfg.SiteConfigCacheTTL, err = getEnvDuration("FD_SITE_CONFIG_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FD_SITE_CONFIG_CACHE_TTL: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("FD_DEPHEALTH_GROUP", "frontdesk")

	cfg.DephealthCheckInterval, err = getEnvDuration("FD_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FD_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("FD_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FD_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
