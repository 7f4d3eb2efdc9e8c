package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	IndexerAPIURL     string
	IndexerTimeout    time.Duration
	HTTPAddr          string
	PublicBaseURL     string
	PaymentsPerPage   int
	TokenSymbols      []string
	LeaderboardSource string

	RedisAddr       string
	CacheTTL        time.Duration
	ReceiptCacheTTL time.Duration

	ArchiveDriver string
	ArchiveDSN    string

	KafkaBrokers         []string
	KafkaTopic           string
	KafkaGroupID         string
	RefreshBatchSize     int
	RefreshFlushInterval time.Duration

	RateLimitRPS        float64
	RateLimitBurst      int
	RateLimitTrustProxy bool

	OtelEndpoint string

	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	PaymentAppURL string
	AvatarBaseURL string
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}

	indexerURL := lookupString(source, "INDEXER_API_URL", "")
	if indexerURL == "" {
		return Config{}, errors.New("INDEXER_API_URL is required")
	}
	if err := validateURL("INDEXER_API_URL", indexerURL); err != nil {
		return Config{}, err
	}

	httpAddr := lookupString(source, "HTTP_ADDR", ":8080")
	publicBaseURL := strings.TrimRight(lookupString(source, "PUBLIC_BASE_URL", "http://localhost"+portSuffix(httpAddr)), "/")
	if err := validateURL("PUBLIC_BASE_URL", publicBaseURL); err != nil {
		return Config{}, err
	}

	indexerTimeout, err := parseDurationEnv(source, "INDEXER_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	perPage, err := parseIntEnv(source, "PAYMENTS_PER_PAGE", 50)
	if err != nil {
		return Config{}, err
	}
	if perPage < 1 {
		return Config{}, errors.New("PAYMENTS_PER_PAGE must be positive")
	}
	tokenSymbols := parseList(source, "TOKEN_SYMBOLS")
	for i, symbol := range tokenSymbols {
		tokenSymbols[i] = strings.ToUpper(symbol)
	}

	leaderboardSource := strings.ToLower(lookupString(source, "LEADERBOARD_SOURCE", "local"))
	if leaderboardSource != "local" && leaderboardSource != "indexer" {
		return Config{}, fmt.Errorf("invalid LEADERBOARD_SOURCE %q", leaderboardSource)
	}

	cacheTTL, err := parseDurationEnv(source, "CACHE_TTL", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	receiptCacheTTL, err := parseDurationEnv(source, "RECEIPT_CACHE_TTL", time.Hour)
	if err != nil {
		return Config{}, err
	}

	archiveDriver := strings.ToLower(lookupString(source, "ARCHIVE_DRIVER", ""))
	archiveDSN := lookupString(source, "ARCHIVE_DSN", "")
	switch archiveDriver {
	case "":
	case "sqlite":
		if archiveDSN == "" {
			archiveDSN = "payboard.db"
		}
	case "mysql":
		if archiveDSN == "" {
			archiveDSN = "root:@tcp(127.0.0.1:3306)/payboard"
		}
	default:
		return Config{}, fmt.Errorf("invalid ARCHIVE_DRIVER %q", archiveDriver)
	}

	refreshBatchSize, err := parseIntEnv(source, "REFRESH_BATCH_SIZE", 100)
	if err != nil {
		return Config{}, err
	}
	refreshFlushInterval, err := parseDurationEnv(source, "REFRESH_FLUSH_INTERVAL", 2*time.Second)
	if err != nil {
		return Config{}, err
	}

	rateLimitRPS, err := parseFloatEnv(source, "RATE_LIMIT_RPS", 10)
	if err != nil {
		return Config{}, err
	}
	rateLimitBurst, err := parseIntEnv(source, "RATE_LIMIT_BURST", 20)
	if err != nil {
		return Config{}, err
	}

	rateLimitTrustProxy, err := parseBoolEnv(source, "RATE_LIMIT_TRUST_PROXY", false)
	if err != nil {
		return Config{}, err
	}

	logMaxSizeMB, err := parseIntEnv(source, "LOG_MAX_SIZE_MB", 100)
	if err != nil {
		return Config{}, err
	}
	logMaxBackups, err := parseIntEnv(source, "LOG_MAX_BACKUPS", 3)
	if err != nil {
		return Config{}, err
	}

	return Config{
		IndexerAPIURL:     strings.TrimRight(indexerURL, "/"),
		IndexerTimeout:    indexerTimeout,
		HTTPAddr:          httpAddr,
		PublicBaseURL:     publicBaseURL,
		PaymentsPerPage:   perPage,
		TokenSymbols:      tokenSymbols,
		LeaderboardSource: leaderboardSource,

		RedisAddr:       lookupString(source, "REDIS_ADDR", ""),
		CacheTTL:        cacheTTL,
		ReceiptCacheTTL: receiptCacheTTL,

		ArchiveDriver: archiveDriver,
		ArchiveDSN:    archiveDSN,

		KafkaBrokers:         parseList(source, "KAFKA_BROKERS"),
		KafkaTopic:           lookupString(source, "KAFKA_TOPIC", "payboard-finalized"),
		KafkaGroupID:         lookupString(source, "KAFKA_GROUP_ID", "payboard-refresher"),
		RefreshBatchSize:     refreshBatchSize,
		RefreshFlushInterval: refreshFlushInterval,

		RateLimitRPS:        rateLimitRPS,
		RateLimitBurst:      rateLimitBurst,
		RateLimitTrustProxy: rateLimitTrustProxy,

		OtelEndpoint: lookupString(source, "OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		LogLevel:      lookupString(source, "LOG_LEVEL", "info"),
		LogFormat:     lookupString(source, "LOG_FORMAT", "text"),
		LogFile:       lookupString(source, "LOG_FILE", ""),
		LogMaxSizeMB:  logMaxSizeMB,
		LogMaxBackups: logMaxBackups,

		PaymentAppURL: strings.TrimRight(lookupString(source, "PAYMENT_APP_URL", "https://yodl.me"), "/"),
		AvatarBaseURL: strings.TrimRight(lookupString(source, "AVATAR_BASE_URL", "https://metadata.ens.domains/mainnet/avatar"), "/"),
	}, nil
}

func lookupString(source EnvSource, key, defaultValue string) string {
	raw, ok := source.Lookup(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return defaultValue
	}
	return raw
}

func parseIntEnv(source EnvSource, key string, defaultValue int) (int, error) {
	raw := lookupString(source, key, "")
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return value, nil
}

func parseFloatEnv(source EnvSource, key string, defaultValue float64) (float64, error) {
	raw := lookupString(source, key, "")
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return value, nil
}

func parseBoolEnv(source EnvSource, key string, defaultValue bool) (bool, error) {
	raw := lookupString(source, key, "")
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseDurationEnv(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw := lookupString(source, key, "")
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return value, nil
}

func parseList(source EnvSource, key string) []string {
	raw := lookupString(source, key, "")
	if raw == "" {
		return nil
	}
	var values []string
	for _, item := range strings.Split(raw, ",") {
		if value := strings.TrimSpace(item); value != "" {
			values = append(values, value)
		}
	}
	return values
}

func validateURL(key, raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("invalid %s %q", key, raw)
	}
	return nil
}

func portSuffix(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return ""
}
