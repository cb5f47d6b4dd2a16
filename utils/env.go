package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vitwit/paygate/types"
)

// Environment variables read by LoadGateConfigFromEnv.
const (
	EnvPricePerQuery    = "PRICE_PER_QUERY"
	EnvPaymentAddress   = "PAYMENT_ADDRESS"
	EnvNetwork          = "CHAIN_NETWORK"
	EnvExplorerURL      = "CHAIN_API_URL"
	EnvExplorerAPIKey   = "CHAIN_API_KEY"
	EnvExplorerRPS      = "CHAIN_RPS"
	EnvRPCUrl           = "CHAIN_RPC_URL"
	EnvChainTimeout     = "CHAIN_TIMEOUT"
	EnvMinConfirmations = "MIN_CONFIRMATIONS"
	EnvFreshnessWindow  = "FRESHNESS_WINDOW"
	EnvClockSkew        = "CLOCK_SKEW"
	EnvRateLimitWindow  = "RATE_LIMIT_WINDOW"
	EnvRateLimitMax     = "RATE_LIMIT_MAX"
	EnvRedisAddr        = "REDIS_ADDR"
	EnvRedisPassword    = "REDIS_PASSWORD"
	EnvRedisDB          = "REDIS_DB"
	EnvTrustedProxies   = "TRUSTED_PROXIES"
	EnvListenAddr       = "LISTEN_ADDR"
	EnvLogLevel         = "LOG_LEVEL"
	EnvMetricsEnabled   = "METRICS_ENABLED"
)

// LoadGateConfigFromEnv builds a validated GateConfig from the process
// environment. lookup is os.LookupEnv when nil.
func LoadGateConfigFromEnv(lookup func(string) (string, bool)) (*types.GateConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	r := envReader{lookup: lookup}

	config := &types.GateConfig{
		PricePerQuery:    r.string(EnvPricePerQuery),
		PaymentAddress:   r.string(EnvPaymentAddress),
		Network:          types.Network(r.string(EnvNetwork)),
		ExplorerURL:      r.string(EnvExplorerURL),
		ExplorerAPIKey:   r.string(EnvExplorerAPIKey),
		ExplorerRPS:      r.int(EnvExplorerRPS),
		RPCUrl:           r.string(EnvRPCUrl),
		ChainTimeout:     r.duration(EnvChainTimeout),
		MinConfirmations: r.int(EnvMinConfirmations),
		FreshnessWindow:  r.duration(EnvFreshnessWindow),
		ClockSkew:        r.duration(EnvClockSkew),
		RateLimitWindow:  r.duration(EnvRateLimitWindow),
		RateLimitMax:     r.int(EnvRateLimitMax),
		Redis: types.RedisConfig{
			Addr:     r.string(EnvRedisAddr),
			Password: r.string(EnvRedisPassword),
			DB:       r.int(EnvRedisDB),
		},
		TrustedProxies: r.list(EnvTrustedProxies),
		ListenAddr:     r.string(EnvListenAddr),
		LogLevel:       strings.ToLower(r.string(EnvLogLevel)),
		EnableMetrics:  r.bool(EnvMetricsEnabled, true),
	}

	if len(r.errs) > 0 {
		return nil, &types.GateError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("invalid environment: %s", strings.Join(r.errs, "; ")),
		}
	}

	if err := ValidateGateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []string
}

func (r *envReader) string(key string) string {
	v, _ := r.lookup(key)
	return strings.TrimSpace(v)
}

// list splits a comma separated value, dropping empty items.
func (r *envReader) list(key string) []string {
	var out []string
	for _, item := range strings.Split(r.string(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (r *envReader) int(key string) int {
	v := r.string(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s: %v", key, err))
	}
	return n
}

// duration accepts Go duration strings ("90s") or plain milliseconds.
func (r *envReader) duration(key string) time.Duration {
	v := r.string(key)
	if v == "" {
		return 0
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s: %v", key, err))
	}
	return d
}

func (r *envReader) bool(key string, def bool) bool {
	v := r.string(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return b
}
