package verification

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/paygate/clients"
	"github.com/vitwit/paygate/types"
	"github.com/vitwit/paygate/utils"
)

const (
	testPrice          = "1000000000000000"
	testPaymentAddress = "0x9A3f1C6b0dE2b3F5a7c8E9d0B1a2C3d4E5f60718"
	testTxHash         = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"
)

var testNow = time.UnixMilli(1_700_000_000_000)

type payer struct {
	key     *ecdsa.PrivateKey
	address string
}

func newPayer(t *testing.T) payer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return payer{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (p payer) proof(txHash, amount string, ts time.Time) types.PaymentProof {
	return types.PaymentProof{
		TxHash:    txHash,
		Amount:    amount,
		Timestamp: ts.UnixMilli(),
		Message:   "What is the capital of France?",
		Address:   p.address,
	}
}

func (p payer) header(t *testing.T, proof types.PaymentProof) string {
	t.Helper()

	message, err := utils.SerializeProof(&proof)
	require.NoError(t, err)

	sig, err := utils.SignPersonalMessage(message, p.key)
	require.NoError(t, err)

	encoded, err := utils.EncodePaymentHeader(&types.PaymentHeader{Proof: proof, Signature: sig})
	require.NoError(t, err)
	return encoded
}

// fakeChain is an in-memory ChainClient.
type fakeChain struct {
	mu       sync.Mutex
	txs      map[string]*types.ChainTransaction
	receipts map[string]*types.ChainReceipt
	head     uint64
	err      error
	delay    time.Duration
	calls    atomic.Int32
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		txs:      make(map[string]*types.ChainTransaction),
		receipts: make(map[string]*types.ChainReceipt),
	}
}

func (f *fakeChain) addTransfer(txHash, from, to, value string, block uint64, status uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(txHash)
	f.txs[key] = &types.ChainTransaction{Hash: txHash, From: from, To: to, Value: value, BlockNumber: block}
	f.receipts[key] = &types.ChainReceipt{Status: status, BlockNumber: block}
	if block > f.head {
		f.head = block
	}
}

func (f *fakeChain) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeChain) wait(ctx context.Context) error {
	if f.delay == 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeChain) TransactionByHash(ctx context.Context, txHash string) (*types.ChainTransaction, error) {
	f.calls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	tx, ok := f.txs[strings.ToLower(txHash)]
	if !ok {
		return nil, clients.ErrTransactionNotFound
	}
	return tx, nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, txHash string) (*types.ChainReceipt, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.receipts[strings.ToLower(txHash)]
	if !ok {
		return nil, clients.ErrReceiptNotFound
	}
	return r, nil
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.head, nil
}

func (f *fakeChain) GetNetwork() types.Network { return types.NetworkBaseSepolia }

func (f *fakeChain) Close() {}
