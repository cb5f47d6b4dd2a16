package verification

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vitwit/paygate/clients"
	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/metrics"
	"github.com/vitwit/paygate/types"
	"github.com/vitwit/paygate/utils"
)

// TransactionChecker confirms that a transaction on chain moved at least a
// given amount of native currency from one address to another.
type TransactionChecker struct {
	client           clients.ChainClient
	timeout          time.Duration
	minConfirmations int
	log              logger.Logger
	metrics          metrics.Recorder
}

func NewTransactionChecker(client clients.ChainClient, timeout time.Duration, minConfirmations int, log logger.Logger, rec metrics.Recorder) *TransactionChecker {
	if timeout <= 0 {
		timeout = types.DefaultChainTimeout
	}
	if minConfirmations < 1 {
		minConfirmations = 1
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	return &TransactionChecker{
		client:           client,
		timeout:          timeout,
		minConfirmations: minConfirmations,
		log:              log,
		metrics:          rec,
	}
}

// Check reports whether txHash is a successful, sufficiently confirmed
// transfer of at least minAmount wei from sender to receiver.
//
// An unknown or pending transaction is a plain false. A non-nil error means
// the chain provider could not answer and the verdict is unknown.
func (c *TransactionChecker) Check(ctx context.Context, txHash, sender string, minAmount *big.Int, receiver string) (bool, error) {
	start := time.Now()
	ok, err := c.check(ctx, txHash, sender, minAmount, receiver)

	result := "match"
	switch {
	case err != nil:
		result = "error"
	case !ok:
		result = "mismatch"
	}
	c.metrics.ObserveLatency(metrics.EventChainLookup, time.Since(start), map[string]string{"result": result})

	return ok, err
}

func (c *TransactionChecker) check(ctx context.Context, txHash, sender string, minAmount *big.Int, receiver string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		tx      *types.ChainTransaction
		receipt *types.ChainReceipt
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tx, err = c.client.TransactionByHash(gctx, txHash)
		return err
	})
	g.Go(func() error {
		var err error
		receipt, err = c.client.TransactionReceipt(gctx, txHash)
		return err
	})

	if err := g.Wait(); err != nil {
		if clients.IsNotFound(err) {
			c.log.Debug("transaction not found or pending", logger.Fields{"tx_hash": txHash})
			return false, nil
		}
		return false, fmt.Errorf("chain lookup for %s: %w", txHash, err)
	}

	if !utils.SameAddress(tx.From, sender) {
		c.log.Debug("transaction sender mismatch", logger.Fields{
			"tx_hash":  txHash,
			"from":     tx.From,
			"expected": sender,
		})
		return false, nil
	}

	if tx.To == "" || !utils.SameAddress(tx.To, receiver) {
		c.log.Debug("transaction receiver mismatch", logger.Fields{
			"tx_hash":  txHash,
			"to":       tx.To,
			"expected": receiver,
		})
		return false, nil
	}

	value, err := utils.ValidateBigInt(tx.Value)
	if err != nil {
		return false, fmt.Errorf("chain returned invalid value %q for %s: %w", tx.Value, txHash, err)
	}
	if value.Cmp(minAmount) < 0 {
		c.log.Debug("transaction value too low", logger.Fields{
			"tx_hash":  txHash,
			"value":    value.String(),
			"expected": minAmount.String(),
		})
		return false, nil
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		c.log.Debug("transaction reverted", logger.Fields{"tx_hash": txHash})
		return false, nil
	}

	if c.minConfirmations > 1 {
		confirmed, err := c.confirmed(ctx, receipt.BlockNumber)
		if err != nil {
			return false, fmt.Errorf("chain lookup for %s: %w", txHash, err)
		}
		if !confirmed {
			c.log.Debug("transaction not yet confirmed", logger.Fields{
				"tx_hash":       txHash,
				"block":         receipt.BlockNumber,
				"confirmations": c.minConfirmations,
			})
			return false, nil
		}
	}

	return true, nil
}

func (c *TransactionChecker) confirmed(ctx context.Context, block uint64) (bool, error) {
	if block == 0 {
		return false, nil
	}

	head, err := c.client.BlockNumber(ctx)
	if err != nil {
		return false, err
	}
	if head < block {
		return false, nil
	}
	return head-block+1 >= uint64(c.minConfirmations), nil
}
