package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"premium-collections/internal/domain"
	"premium-collections/internal/gateway"
)

type Config struct {
	ServerPort  string
	Environment string

	// Transaction registry
	RegistryBackend string
	DBHost          string
	DBPort          string
	DBUser          string
	DBPassword      string
	DBName          string
	DBSSLMode       string

	// Idempotency ledger
	LedgerBackend       string
	LedgerTTL           time.Duration
	LedgerSweepInterval time.Duration
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	BoltPath            string

	AmountRules map[domain.Currency]domain.AmountRule

	// Gateway routing
	RouterCountryCodes    []string
	RouterChannelA        []string
	RouterChannelB        []string
	RouterCountryDefaults map[string]domain.Channel
	RouterFallback        domain.Channel

	// Channel adapter
	ChannelMode       string
	ChannelTimeout    time.Duration
	SimulatorLatency  time.Duration
	AggregatorBaseURL string
	AggregatorAPIKey  string
	CallbackURL       string

	// Upstream settlement API
	AuthTokenURL       string
	AuthClientID       string
	AuthClientSecret   string
	AuthScope          string
	TokenBuffer        time.Duration
	NotifierURL        string
	NotifierChannelTag string
	NotifierTimeout    time.Duration
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendBolt     = "bolt"

	ChannelModeSimulated  = "simulated"
	ChannelModeAggregator = "aggregator"
)

// Default Kenyan numbering plan: Safaricom ranges go to M-Pesa, Airtel ranges to Airtel Money.
const (
	defaultChannelAPrefixes = "70,71,72,740,741,742,743,745,746,748,757,758,759,768,769,79,110,111,112,113,114,115"
	defaultChannelBPrefixes = "73,750,751,752,753,754,755,756,762,78,100,101,102"
)

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		RegistryBackend: getEnv("REGISTRY_BACKEND", BackendMemory),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", ""),
		DBName:          getEnv("DB_NAME", "premium_collections"),
		DBSSLMode:       getEnv("DB_SSL_MODE", "disable"),

		LedgerBackend:       getEnv("LEDGER_BACKEND", BackendMemory),
		LedgerTTL:           getEnvDuration("LEDGER_TTL", 72*time.Hour),
		LedgerSweepInterval: getEnvDuration("LEDGER_SWEEP_INTERVAL", 10*time.Minute),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		BoltPath:            getEnv("BOLT_PATH", "ledger.db"),

		AmountRules: map[domain.Currency]domain.AmountRule{
			domain.CurrencyKES: loadAmountRule(domain.CurrencyKES, domain.AmountRule{Exact: 5000}),
			domain.CurrencyUGX: loadAmountRule(domain.CurrencyUGX, domain.AmountRule{Min: 500}),
			domain.CurrencyTZS: loadAmountRule(domain.CurrencyTZS, domain.AmountRule{Min: 100}),
		},

		RouterCountryCodes:    getEnvList("ROUTER_COUNTRY_CODES", "254,255,256"),
		RouterChannelA:        getEnvList("ROUTER_CHANNEL_A_PREFIXES", defaultChannelAPrefixes),
		RouterChannelB:        getEnvList("ROUTER_CHANNEL_B_PREFIXES", defaultChannelBPrefixes),
		RouterCountryDefaults: getEnvChannelMap("ROUTER_COUNTRY_DEFAULTS", "254:mpesa"),
		RouterFallback:        domain.Channel(getEnv("ROUTER_FALLBACK_CHANNEL", string(domain.ChannelAirtelMoney))),

		ChannelMode:       getEnv("CHANNEL_MODE", ChannelModeSimulated),
		ChannelTimeout:    getEnvDuration("CHANNEL_TIMEOUT", 30*time.Second),
		SimulatorLatency:  getEnvDuration("CHANNEL_SIMULATOR_LATENCY", 200*time.Millisecond),
		AggregatorBaseURL: getEnv("AGGREGATOR_BASE_URL", "http://localhost:9090"),
		AggregatorAPIKey:  getEnv("AGGREGATOR_API_KEY", ""),
		CallbackURL:       getEnv("CALLBACK_URL", "http://localhost:8080/webhooks/deliveries"),

		AuthTokenURL:       getEnv("AUTH_TOKEN_URL", "http://localhost:9091/oauth/token"),
		AuthClientID:       getEnv("AUTH_CLIENT_ID", ""),
		AuthClientSecret:   getEnv("AUTH_CLIENT_SECRET", ""),
		AuthScope:          getEnv("AUTH_SCOPE", ""),
		TokenBuffer:        getEnvDuration("NOTIFIER_TOKEN_BUFFER", 60*time.Second),
		NotifierURL:        getEnv("NOTIFIER_URL", "http://localhost:9091/api/payments/settlements"),
		NotifierChannelTag: getEnv("NOTIFIER_CHANNEL_TAG", "MOBILE_MONEY"),
		NotifierTimeout:    getEnvDuration("NOTIFIER_TIMEOUT", 15*time.Second),
	}

	return cfg
}

// GetDBConnectionString builds the lib/pq connection string.
func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// RouterRules returns the gateway routing rules held by the configuration.
func (c *Config) RouterRules() gateway.Rules {
	return gateway.Rules{
		CountryCodes:    c.RouterCountryCodes,
		ChannelA:        c.RouterChannelA,
		ChannelB:        c.RouterChannelB,
		CountryDefaults: c.RouterCountryDefaults,
		Fallback:        c.RouterFallback,
	}
}

func loadAmountRule(currency domain.Currency, def domain.AmountRule) domain.AmountRule {
	suffix := string(currency)
	return domain.AmountRule{
		Exact: getEnvInt64("AMOUNT_EXACT_"+suffix, def.Exact),
		Min:   getEnvInt64("AMOUNT_MIN_"+suffix, def.Min),
		Max:   getEnvInt64("AMOUNT_MAX_"+suffix, def.Max),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key, defaultValue string) []string {
	return splitList(getEnv(key, defaultValue))
}

// getEnvChannelMap parses "254:mpesa,256:airtel_money".
func getEnvChannelMap(key, defaultValue string) map[string]domain.Channel {
	out := make(map[string]domain.Channel)
	for _, pair := range splitList(getEnv(key, defaultValue)) {
		code, channel, ok := strings.Cut(pair, ":")
		if !ok || !domain.Channel(channel).Valid() {
			slog.Warn("Ignoring malformed country default", "key", key, "entry", pair)
			continue
		}
		out[strings.TrimSpace(code)] = domain.Channel(strings.TrimSpace(channel))
	}
	return out
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
