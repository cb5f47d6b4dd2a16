package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/paygate/types"
)

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadGateConfigFromEnv(t *testing.T) {
	config, err := LoadGateConfigFromEnv(envLookup(map[string]string{
		EnvPaymentAddress:  testAddress,
		EnvNetwork:         "base-sepolia",
		EnvPricePerQuery:   "2000000000000000",
		EnvFreshnessWindow: "300000",
		EnvRateLimitWindow: "90s",
		EnvRateLimitMax:    "3",
		EnvRedisAddr:       "localhost:6379",
		EnvLogLevel:        "DEBUG",
		EnvMetricsEnabled:  "false",
		EnvTrustedProxies:  "10.0.0.0/8, 192.0.2.1,",
	}))
	require.NoError(t, err)

	assert.Equal(t, types.NetworkBaseSepolia, config.Network)
	assert.Equal(t, "2000000000000000", config.PricePerQuery)
	assert.Equal(t, 5*time.Minute, config.FreshnessWindow)
	assert.Equal(t, 90*time.Second, config.RateLimitWindow)
	assert.Equal(t, 3, config.RateLimitMax)
	assert.True(t, config.Redis.Enabled())
	assert.Equal(t, "debug", config.LogLevel)
	assert.False(t, config.EnableMetrics)
	assert.Equal(t, types.DefaultClockSkew, config.ClockSkew)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, config.TrustedProxies)
}

func TestLoadGateConfigFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing address", map[string]string{}},
		{"bad int", map[string]string{EnvPaymentAddress: testAddress, EnvRateLimitMax: "ten"}},
		{"bad duration", map[string]string{EnvPaymentAddress: testAddress, EnvChainTimeout: "soon"}},
		{"bad bool", map[string]string{EnvPaymentAddress: testAddress, EnvMetricsEnabled: "maybe"}},
		{"bad trusted proxy", map[string]string{EnvPaymentAddress: testAddress, EnvTrustedProxies: "10.0.0.0/8,proxy.local"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGateConfigFromEnv(envLookup(tt.env))
			assert.Error(t, err)
		})
	}
}
