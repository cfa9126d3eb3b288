package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"premium-collections/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, BackendMemory, cfg.RegistryBackend)
	assert.Equal(t, BackendMemory, cfg.LedgerBackend)
	assert.Equal(t, 72*time.Hour, cfg.LedgerTTL)
	assert.Equal(t, ChannelModeSimulated, cfg.ChannelMode)
	assert.Equal(t, 60*time.Second, cfg.TokenBuffer)
	assert.Equal(t, domain.AmountRule{Exact: 5000}, cfg.AmountRules[domain.CurrencyKES])
	assert.Equal(t, domain.ChannelMpesa, cfg.RouterCountryDefaults["254"])
	assert.Equal(t, domain.ChannelAirtelMoney, cfg.RouterFallback)
	assert.Contains(t, cfg.RouterChannelA, "71")
	assert.Contains(t, cfg.RouterChannelB, "73")
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("REGISTRY_BACKEND", BackendPostgres)
	t.Setenv("LEDGER_BACKEND", BackendRedis)
	t.Setenv("LEDGER_TTL", "24h")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("AMOUNT_EXACT_KES", "10000")
	t.Setenv("AMOUNT_MIN_UGX", "1000")
	t.Setenv("ROUTER_CHANNEL_A_PREFIXES", " 70, 71 ,,72")
	t.Setenv("ROUTER_COUNTRY_DEFAULTS", "254:mpesa,256:airtel_money,255:tigo")

	cfg := Load()

	assert.Equal(t, "9000", cfg.ServerPort)
	assert.Equal(t, BackendPostgres, cfg.RegistryBackend)
	assert.Equal(t, BackendRedis, cfg.LedgerBackend)
	assert.Equal(t, 24*time.Hour, cfg.LedgerTTL)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, int64(10000), cfg.AmountRules[domain.CurrencyKES].Exact)
	assert.Equal(t, int64(1000), cfg.AmountRules[domain.CurrencyUGX].Min)
	assert.Equal(t, []string{"70", "71", "72"}, cfg.RouterChannelA)
	assert.Equal(t, map[string]domain.Channel{
		"254": domain.ChannelMpesa,
		"256": domain.ChannelAirtelMoney,
	}, cfg.RouterCountryDefaults)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("LEDGER_TTL", "three days")
	t.Setenv("REDIS_DB", "two")

	cfg := Load()

	assert.Equal(t, 72*time.Hour, cfg.LedgerTTL)
	assert.Equal(t, 0, cfg.RedisDB)
}

func TestConfig_Derived(t *testing.T) {
	cfg := &Config{
		DBHost: "db", DBPort: "5432", DBUser: "app", DBPassword: "pw", DBName: "premiums", DBSSLMode: "disable",
		RouterCountryCodes: []string{"254"},
		RouterChannelA:     []string{"71"},
		RouterFallback:     domain.ChannelAirtelMoney,
	}

	assert.Equal(t, "host=db port=5432 user=app password=pw dbname=premiums sslmode=disable", cfg.GetDBConnectionString())

	rules := cfg.RouterRules()
	require.Equal(t, []string{"254"}, rules.CountryCodes)
	assert.Equal(t, []string{"71"}, rules.ChannelA)
	assert.Equal(t, domain.ChannelAirtelMoney, rules.Fallback)
}
