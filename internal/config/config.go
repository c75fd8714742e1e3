package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	ReceiptIDFormat string

	RegistryBackend string
	RegistryDSN     string

	// TrustedProxies lists the proxy addresses or CIDRs whose forwarding
	// headers are honored. Empty means the peer address is the client.
	TrustedProxies []string

	Observability ObservabilityConfig

	RateLimit RateLimitConfig
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string

	OtelEnabled       bool
	OtelEndpoint      string
	OtelProtocol      string
	OtelSamplingRatio float64
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SubmitRate    float64
	SubmitBurst   int
	ConfigPath    string
}

const (
	ReceiptIDFormatUUID = "uuid"
	ReceiptIDFormatULID = "ulid"

	RegistryBackendMemory = "memory"
	RegistryBackendSQLite = "sqlite"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:         getenv("APP_SERVICE", "receipts"),
		AppVersion:      getenv("SERVICE_VERSION", getenv("APP_VERSION", "0.1.0")),
		Environment:     getenv("DEPLOYMENT_ENV", getenv("ENVIRONMENT", "development")),
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		ReceiptIDFormat: normalizeIDFormat(getenv("RECEIPT_ID_FORMAT", ReceiptIDFormatUUID)),
		RegistryBackend: normalizeBackend(getenv("REGISTRY_BACKEND", RegistryBackendMemory)),
		RegistryDSN:     getenv("REGISTRY_DSN", "file::memory:?cache=shared"),
		TrustedProxies:  getenvList("TRUSTED_PROXIES"),
		Observability: ObservabilityConfig{
			LogLevel:          strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:         strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:       getenvBool("OTEL_ENABLED", false),
			OtelEndpoint:      strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
			OtelProtocol:      otlpProtocol(),
			OtelSamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379")),
			RedisPassword: strings.TrimSpace(getenv("RATE_LIMIT_REDIS_PASSWORD", "")),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			SubmitRate:    getenvFloat("RATE_LIMIT_SUBMIT_RATE", 5),
			SubmitBurst:   getenvInt("RATE_LIMIT_SUBMIT_BURST", 20),
			ConfigPath:    strings.TrimSpace(getenv("RATE_LIMIT_CONFIG_PATH", "")),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// otlpProtocol prefers the trace-specific protocol over the shared one.
func otlpProtocol() string {
	protocol := getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	return strings.ToLower(strings.TrimSpace(protocol))
}

func normalizeIDFormat(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ReceiptIDFormatULID:
		return ReceiptIDFormatULID
	default:
		return ReceiptIDFormatUUID
	}
}

func normalizeBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case RegistryBackendSQLite:
		return RegistryBackendSQLite
	default:
		return RegistryBackendMemory
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
