package verification

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/metrics"
	"github.com/vitwit/paygate/store"
	"github.com/vitwit/paygate/types"
	"github.com/vitwit/paygate/utils"
)

// ChainChecker is the on-chain half of verification. TransactionChecker is
// the production implementation.
type ChainChecker interface {
	Check(ctx context.Context, txHash, sender string, minAmount *big.Int, receiver string) (bool, error)
}

var _ ChainChecker = (*TransactionChecker)(nil)

// batchConcurrency bounds the goroutines used by BatchVerify.
const batchConcurrency = 8

// ServiceConfig holds the payment terms enforced by VerificationService.
type ServiceConfig struct {
	PricePerQuery   string
	PaymentAddress  string
	FreshnessWindow time.Duration
	ClockSkew       time.Duration
}

// VerificationService turns an X-PAYMENT header into a verdict.
type VerificationService struct {
	price           *big.Int
	paymentAddress  string
	freshnessWindow time.Duration
	clockSkew       time.Duration

	ledger  store.Ledger
	checker ChainChecker
	signer  SignatureVerifier

	now     func() time.Time
	log     logger.Logger
	metrics metrics.Recorder
}

// ServiceOption customizes a VerificationService.
type ServiceOption func(*VerificationService)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *VerificationService) {
		s.now = now
	}
}

func WithLogger(log logger.Logger) ServiceOption {
	return func(s *VerificationService) {
		s.log = log
	}
}

func WithMetrics(m metrics.Recorder) ServiceOption {
	return func(s *VerificationService) {
		s.metrics = m
	}
}

func WithSignatureVerifier(v SignatureVerifier) ServiceOption {
	return func(s *VerificationService) {
		s.signer = v
	}
}

// NewVerificationService creates a new verification service
func NewVerificationService(cfg ServiceConfig, ledger store.Ledger, checker ChainChecker, opts ...ServiceOption) (*VerificationService, error) {
	price, err := utils.ValidateBigInt(cfg.PricePerQuery)
	if err != nil {
		return nil, &types.GateError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("invalid price per query: %v", err),
		}
	}

	if !common.IsHexAddress(cfg.PaymentAddress) {
		return nil, &types.GateError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("invalid payment address: %q", cfg.PaymentAddress),
		}
	}

	if ledger == nil || checker == nil {
		return nil, &types.GateError{
			Code:    types.ErrConfigError,
			Message: "verification service requires a ledger and a chain checker",
		}
	}

	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = types.DefaultFreshnessWindow
	}
	if cfg.ClockSkew < 0 {
		cfg.ClockSkew = 0
	}

	s := &VerificationService{
		price:           price,
		paymentAddress:  cfg.PaymentAddress,
		freshnessWindow: cfg.FreshnessWindow,
		clockSkew:       cfg.ClockSkew,
		ledger:          ledger,
		checker:         checker,
		signer:          PersonalSignVerifier{},
		now:             time.Now,
		log:             logger.NoopLogger{},
		metrics:         metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Price returns the configured price per query in wei.
func (s *VerificationService) Price() *big.Int {
	return new(big.Int).Set(s.price)
}

// Verify runs the full verification of an X-PAYMENT header and, on success,
// consumes the payment so it cannot be presented again.
func (s *VerificationService) Verify(ctx context.Context, header string) *types.VerificationResult {
	start := time.Now()
	result := s.verify(ctx, header)
	s.record(result, time.Since(start))
	return result
}

// QuickVerify performs the checks that need no chain lookup: decoding,
// replay, freshness and signature. It never reserves or consumes the payment.
func (s *VerificationService) QuickVerify(ctx context.Context, header string) *types.VerificationResult {
	h, result := s.precheck(ctx, header)
	if result != nil {
		return result
	}
	return validResult(&h.Proof)
}

// BatchVerify verifies multiple payments concurrently. Results are in input
// order.
func (s *VerificationService) BatchVerify(ctx context.Context, headers []string) []*types.VerificationResult {
	results := make([]*types.VerificationResult, len(headers))

	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, header := range headers {
		g.Go(func() error {
			results[i] = s.Verify(ctx, header)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *VerificationService) verify(ctx context.Context, header string) *types.VerificationResult {
	h, result := s.precheck(ctx, header)
	if result != nil {
		return result
	}
	proof := &h.Proof

	amount, err := utils.ValidateBigInt(proof.Amount)
	if err != nil {
		return types.Invalid(types.ErrorMalformedHeader)
	}
	if amount.Cmp(s.price) < 0 {
		s.log.Debug("payment amount below price", logger.Fields{
			"tx_hash": proof.TxHash,
			"amount":  proof.Amount,
			"price":   s.price.String(),
		})
		return types.Invalid(types.ErrorInvalidTransaction)
	}

	reserved, err := s.ledger.Reserve(ctx, proof.TxHash)
	if err != nil {
		s.log.Error("ledger reserve failed", logger.Fields{"tx_hash": proof.TxHash, "error": err})
		return types.Invalid(types.ErrorUpstreamUnavailable)
	}
	if !reserved {
		return types.Invalid(types.ErrorReplayedPayment)
	}

	ok, err := s.checker.Check(ctx, proof.TxHash, proof.Address, utils.MaxBigInt(amount, s.price), s.paymentAddress)
	if err != nil {
		s.release(ctx, proof.TxHash)
		s.log.Warn("chain lookup failed", logger.Fields{"tx_hash": proof.TxHash, "error": err})
		return types.Invalid(types.ErrorUpstreamUnavailable)
	}
	if !ok {
		s.release(ctx, proof.TxHash)
		return types.Invalid(types.ErrorInvalidTransaction)
	}

	if err := s.ledger.MarkUsed(ctx, proof.TxHash); err != nil {
		s.release(ctx, proof.TxHash)
		s.log.Error("ledger mark used failed", logger.Fields{"tx_hash": proof.TxHash, "error": err})
		return types.Invalid(types.ErrorUpstreamUnavailable)
	}

	return validResult(proof)
}

// precheck decodes the header and runs the replay, freshness and signature
// checks. It returns a non-nil result when the payment is rejected.
func (s *VerificationService) precheck(ctx context.Context, header string) (*types.PaymentHeader, *types.VerificationResult) {
	h, err := utils.DecodePaymentHeader(header)
	if err != nil {
		s.log.Debug("malformed payment header", logger.Fields{"error": err})
		return nil, types.Invalid(types.ErrorMalformedHeader)
	}
	proof := &h.Proof

	used, err := s.ledger.HasBeenUsed(ctx, proof.TxHash)
	if err != nil {
		s.log.Error("ledger lookup failed", logger.Fields{"tx_hash": proof.TxHash, "error": err})
		return nil, types.Invalid(types.ErrorUpstreamUnavailable)
	}
	if used {
		return nil, types.Invalid(types.ErrorReplayedPayment)
	}

	ts := time.UnixMilli(proof.Timestamp)
	if err := utils.ValidateTimestamp(ts, s.now(), s.freshnessWindow, s.clockSkew); err != nil {
		s.log.Debug("stale payment proof", logger.Fields{"tx_hash": proof.TxHash, "error": err})
		return nil, types.Invalid(types.ErrorExpiredPayment)
	}

	messages, err := utils.SignedMessages(h)
	if err != nil {
		return nil, types.Invalid(types.ErrorMalformedHeader)
	}
	if !s.signedBy(messages, h.Signature, proof.Address) {
		return nil, types.Invalid(types.ErrorInvalidSignature)
	}

	return h, nil
}

func (s *VerificationService) signedBy(messages []string, signature, address string) bool {
	for _, message := range messages {
		if s.signer.Verify(message, signature, address) {
			return true
		}
	}
	return false
}

// release gives a reservation back even when the request context is gone.
func (s *VerificationService) release(ctx context.Context, txHash string) {
	if err := s.ledger.Release(context.WithoutCancel(ctx), txHash); err != nil {
		s.log.Warn("ledger release failed", logger.Fields{"tx_hash": txHash, "error": err})
	}
}

func (s *VerificationService) record(result *types.VerificationResult, elapsed time.Duration) {
	label := "valid"
	if !result.IsValid {
		label = result.InvalidReason.String()
	}
	labels := map[string]string{"result": label}

	s.metrics.IncCounter(metrics.EventVerify, labels)
	s.metrics.ObserveLatency(metrics.EventVerify, elapsed, labels)

	if result.IsValid {
		s.log.Info("payment verified", logger.Fields{
			"payer":   result.Payer,
			"tx_hash": result.TxHash,
			"amount":  utils.FormatWeiAsEther(result.Amount),
		})
	} else {
		s.log.Info("payment rejected", logger.Fields{"reason": label})
	}
}

func validResult(proof *types.PaymentProof) *types.VerificationResult {
	return &types.VerificationResult{
		IsValid: true,
		Payer:   proof.Address,
		TxHash:  proof.TxHash,
		Amount:  proof.Amount,
	}
}
