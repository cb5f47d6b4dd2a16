package clients

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vitwit/paygate/types"
	"github.com/vitwit/paygate/utils"
)

const nativeTransferGas = 21000

// PayerBackend is the part of ethclient.Client a Payer needs.
type PayerBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Payer is the client side of the gate: it pays for a query with a native
// transfer and produces the signed X-PAYMENT header proving it.
type Payer struct {
	backend      PayerBackend
	key          *ecdsa.PrivateKey
	address      common.Address
	chainID      *big.Int
	network      types.Network
	pollInterval time.Duration
	now          func() time.Time
}

// NewPayer dials rpcURL and signs with the hex encoded private key.
func NewPayer(network types.Network, rpcURL, privateKeyHex string) (*Payer, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}
	return NewPayerWithBackend(network, client, privateKeyHex)
}

func NewPayerWithBackend(network types.Network, backend PayerBackend, privateKeyHex string) (*Payer, error) {
	if !network.IsEVM() {
		return nil, &types.GateError{
			Code:    types.ErrUnsupportedNetwork,
			Message: fmt.Sprintf("network %s is not an EVM network", network),
		}
	}

	key, err := utils.PrivateKeyFromHex(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &Payer{
		backend:      backend,
		key:          key,
		address:      crypto.PubkeyToAddress(key.PublicKey),
		chainID:      big.NewInt(network.ChainID()),
		network:      network,
		pollInterval: time.Second,
		now:          time.Now,
	}, nil
}

// Address returns the paying account.
func (p *Payer) Address() common.Address {
	return p.address
}

// Pay sends amount wei to the receiver and returns the transaction hash.
func (p *Payer) Pay(ctx context.Context, receiver string, amount *big.Int) (string, error) {
	if !common.IsHexAddress(receiver) {
		return "", fmt.Errorf("invalid receiver address %q", receiver)
	}
	to := common.HexToAddress(receiver)

	nonce, err := p.backend.PendingNonceAt(ctx, p.address)
	if err != nil {
		return "", fmt.Errorf("pending nonce failed: %w", err)
	}

	gasPrice, err := p.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price failed: %w", err)
	}

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      nativeTransferGas,
		To:       &to,
		Value:    amount,
	})

	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(p.chainID), p.key)
	if err != nil {
		return "", fmt.Errorf("sign tx failed: %w", err)
	}

	if err := p.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx failed: %w", err)
	}

	return signed.Hash().Hex(), nil
}

// WaitForConfirmation polls until the transaction is mined. A reverted
// transaction is an error.
func (p *Payer) WaitForConfirmation(ctx context.Context, txHash string) (*gethtypes.Receipt, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	hash := common.HexToHash(txHash)
	for {
		receipt, err := p.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("transaction %s reverted", txHash)
			}
			return receipt, nil
		case !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("receipt lookup failed: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transaction confirmation timeout: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// PaymentHeader signs a proof that txHash paid amount for message and
// returns the encoded X-PAYMENT value.
func (p *Payer) PaymentHeader(txHash string, amount *big.Int, message string) (string, error) {
	proof := types.PaymentProof{
		TxHash:    txHash,
		Amount:    amount.String(),
		Timestamp: p.now().UnixMilli(),
		Message:   message,
		Address:   p.address.Hex(),
	}

	serialized, err := utils.SerializeProof(&proof)
	if err != nil {
		return "", err
	}

	signature, err := utils.SignPersonalMessage(serialized, p.key)
	if err != nil {
		return "", err
	}

	return utils.EncodePaymentHeader(&types.PaymentHeader{Proof: proof, Signature: signature})
}

// PayForQuery pays, waits for the transfer to be mined and returns the
// header to attach to the retried request.
func (p *Payer) PayForQuery(ctx context.Context, receiver string, amount *big.Int, message string) (string, error) {
	txHash, err := p.Pay(ctx, receiver, amount)
	if err != nil {
		return "", err
	}

	if _, err := p.WaitForConfirmation(ctx, txHash); err != nil {
		return "", err
	}

	return p.PaymentHeader(txHash, amount, message)
}
