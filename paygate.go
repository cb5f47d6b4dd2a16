// Package paygate gates a paid HTTP resource behind on-chain micropayments,
// with a free tier of rate-limited requests for clients that do not pay.
package paygate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vitwit/paygate/clients"
	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/metrics"
	"github.com/vitwit/paygate/ratelimit"
	"github.com/vitwit/paygate/store"
	"github.com/vitwit/paygate/types"
	"github.com/vitwit/paygate/utils"
	"github.com/vitwit/paygate/verification"
)

// sweepInterval is how often in-memory stores evict expired entries.
const sweepInterval = time.Minute

// PayGate is the access gate: it decides, per request, whether to serve,
// ask for payment, or reject the payment header outright.
type PayGate struct {
	config   *types.GateConfig
	verifier *verification.VerificationService
	limiter  *ratelimit.Limiter

	chain     clients.ChainClient
	ledger    store.Ledger
	rateStore ratelimit.Store
	redis     redis.UniversalClient

	logger  logger.Logger
	metrics metrics.Recorder
	timeout time.Duration
	now     func() time.Time

	closers []func() error
}

// New validates config and wires the gate. Unless overridden by options the
// chain client is an RPC client when RPCUrl is set and an explorer client
// otherwise, and the ledger and rate-limit store live in Redis when
// configured and in memory otherwise.
func New(config *types.GateConfig, opts ...Option) (*PayGate, error) {
	if config == nil {
		return nil, &types.GateError{Code: types.ErrConfigError, Message: "config is required"}
	}
	if err := utils.ValidateGateConfig(config); err != nil {
		return nil, err
	}

	p := &PayGate{
		config:  config,
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		timeout: config.ChainTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := p.setup(); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (p *PayGate) setup() error {
	if p.chain == nil {
		chain, err := newChainClient(p.config)
		if err != nil {
			return err
		}
		p.chain = chain
	}
	p.closers = append(p.closers, func() error {
		p.chain.Close()
		return nil
	})

	if p.redis == nil && p.config.Redis.Enabled() && (p.ledger == nil || p.rateStore == nil) {
		rdb := redis.NewClient(&redis.Options{
			Addr:     p.config.Redis.Addr,
			Password: p.config.Redis.Password,
			DB:       p.config.Redis.DB,
		})
		p.redis = rdb
		p.closers = append(p.closers, rdb.Close)
	}

	retention := store.RetentionFor(p.config.FreshnessWindow, p.config.ClockSkew, p.lookupTimeout())

	if p.ledger == nil {
		if p.redis != nil {
			p.ledger = store.NewRedisLedgerFromClient(p.redis, retention)
		} else {
			mem := store.NewMemoryLedger(retention,
				store.WithClock(p.now),
				store.WithLogger(p.logger),
			)
			mem.StartSweeper(sweepInterval)
			p.ledger = mem
		}
	}
	p.closers = append(p.closers, p.ledger.Close)

	if p.rateStore == nil {
		if p.redis != nil {
			p.rateStore = ratelimit.NewRedisStoreFromClient(p.redis)
		} else {
			mem := ratelimit.NewMemoryStore(p.logger)
			mem.StartSweeper(sweepInterval, p.now)
			p.rateStore = mem
		}
	}

	checker := verification.NewTransactionChecker(p.chain, p.lookupTimeout(), p.config.MinConfirmations, p.logger, p.metrics)

	verifier, err := verification.NewVerificationService(verification.ServiceConfig{
		PricePerQuery:   p.config.PricePerQuery,
		PaymentAddress:  p.config.PaymentAddress,
		FreshnessWindow: p.config.FreshnessWindow,
		ClockSkew:       p.config.ClockSkew,
	}, p.ledger, checker,
		verification.WithClock(p.now),
		verification.WithLogger(p.logger),
		verification.WithMetrics(p.metrics),
	)
	if err != nil {
		return err
	}
	p.verifier = verifier

	p.limiter = ratelimit.New(p.rateStore, p.config.RateLimitWindow, p.config.RateLimitMax,
		ratelimit.WithClock(p.now),
		ratelimit.WithLogger(p.logger),
		ratelimit.WithMetrics(p.metrics),
	)
	p.closers = append(p.closers, p.limiter.Close)

	return nil
}

// lookupTimeout is the per-lookup bound the checker will actually apply.
func (p *PayGate) lookupTimeout() time.Duration {
	if p.timeout <= 0 {
		return types.DefaultChainTimeout
	}
	return p.timeout
}

func newChainClient(config *types.GateConfig) (clients.ChainClient, error) {
	if config.RPCUrl != "" {
		client, err := clients.NewEVMClient(config.Network, config.RPCUrl)
		if err != nil {
			return nil, fmt.Errorf("failed to create EVM client for %s: %w", config.Network, err)
		}
		return client, nil
	}

	client, err := clients.NewExplorerClient(clients.ExplorerConfig{
		Network:           config.Network,
		BaseURL:           config.ExplorerURL,
		APIKey:            config.ExplorerAPIKey,
		RequestsPerSecond: config.ExplorerRPS,
	})
	if err != nil {
		return nil, &types.GateError{Code: types.ErrConfigError, Message: err.Error()}
	}
	return client, nil
}

// Check decides whether a request may reach the paid resource.
//
// Without a payment header the client spends its free tier. With one, the
// payment alone decides; an invalid payment never falls back to the free tier.
func (p *PayGate) Check(ctx context.Context, clientID, paymentHeader string) *types.Decision {
	var decision *types.Decision
	if paymentHeader == "" {
		decision = p.checkFreeTier(ctx, clientID)
	} else {
		decision = p.checkPayment(ctx, paymentHeader)
	}

	label := decision.Outcome.String()
	if decision.Reason != "" {
		label = decision.Reason.String()
	}
	p.metrics.IncCounter(metrics.EventDecision, map[string]string{"result": label})

	return decision
}

func (p *PayGate) checkFreeTier(ctx context.Context, clientID string) *types.Decision {
	// Store errors already fail open inside the limiter.
	result, _ := p.limiter.Check(ctx, clientID)

	if !result.Allowed {
		zero := 0
		return &types.Decision{
			Outcome:           types.OutcomePaymentRequired,
			Reason:            types.ErrorRateLimitExceeded,
			Message:           types.ErrorRateLimitExceeded.Message(),
			PricePerQuery:     p.config.PricePerQuery,
			RemainingRequests: &zero,
		}
	}

	return &types.Decision{
		Outcome:           types.OutcomeAllow,
		PricePerQuery:     p.config.PricePerQuery,
		RemainingRequests: result.RemainingRequests,
	}
}

func (p *PayGate) checkPayment(ctx context.Context, paymentHeader string) *types.Decision {
	result := p.verifier.Verify(ctx, paymentHeader)

	if result.IsValid {
		return &types.Decision{
			Outcome:         types.OutcomeAllow,
			PricePerQuery:   p.config.PricePerQuery,
			PaymentVerified: true,
			Payer:           result.Payer,
		}
	}

	outcome := types.OutcomePaymentRequired
	if result.InvalidReason == types.ErrorMalformedHeader {
		outcome = types.OutcomeReject
	}

	return &types.Decision{
		Outcome:       outcome,
		Reason:        result.InvalidReason,
		Message:       result.Message,
		PricePerQuery: p.config.PricePerQuery,
	}
}

// Verify runs full payment verification and consumes the payment on success.
func (p *PayGate) Verify(ctx context.Context, paymentHeader string) *types.VerificationResult {
	return p.verifier.Verify(ctx, paymentHeader)
}

// QuickVerify performs the checks that need no chain lookup.
func (p *PayGate) QuickVerify(ctx context.Context, paymentHeader string) *types.VerificationResult {
	return p.verifier.QuickVerify(ctx, paymentHeader)
}

// BatchVerify verifies multiple payments concurrently
func (p *PayGate) BatchVerify(ctx context.Context, paymentHeaders []string) ([]*types.VerificationResult, error) {
	if len(paymentHeaders) == 0 {
		return nil, &types.GateError{
			Code:    types.ErrInvalidPayload,
			Message: "at least one payment header is required",
		}
	}
	return p.verifier.BatchVerify(ctx, paymentHeaders), nil
}

// CheckRateLimit spends one free-tier request for clientID.
func (p *PayGate) CheckRateLimit(ctx context.Context, clientID string) (*types.RateLimitResult, error) {
	return p.limiter.Check(ctx, clientID)
}

// Ping checks the shared backend, if any.
func (p *PayGate) Ping(ctx context.Context) error {
	if p.redis == nil {
		return nil
	}
	return p.redis.Ping(ctx).Err()
}

// Config returns the validated configuration.
func (p *PayGate) Config() types.GateConfig {
	return *p.config
}

// PriceDisplay renders the price per query in ether.
func (p *PayGate) PriceDisplay() string {
	return utils.FormatWeiAsEther(p.config.PricePerQuery)
}

// Close releases the chain client, stores and sweepers.
func (p *PayGate) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

// Version information
const Version = "1.0.0"

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	return map[string]interface{}{
		"library_version": Version,
		"supported_networks": []string{
			types.NetworkEthereum.String(), types.NetworkSepolia.String(),
			types.NetworkBase.String(), types.NetworkBaseSepolia.String(),
			types.NetworkPolygon.String(), types.NetworkPolygonAmoy.String(),
		},
		"signature_scheme": "personal_sign",
		"payment_asset":    "native",
	}
}
