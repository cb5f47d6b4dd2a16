package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vitwit/paygate/types"
)

var _ ChainClient = (*EVMClient)(nil)

// EthClientInterface is the part of ethclient.Client used by EVMClient.
type EthClientInterface interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// NewEthClient dials a JSON-RPC endpoint. This function can be overridden in tests.
var NewEthClient = func(rpcURL string) (EthClientInterface, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// EVMClient reads transactions from an EVM JSON-RPC node.
type EVMClient struct {
	network types.Network
	client  EthClientInterface
	signer  gethtypes.Signer
}

func NewEVMClient(network types.Network, rpcURL string) (*EVMClient, error) {
	if !network.IsEVM() {
		return nil, &types.GateError{
			Code:    types.ErrUnsupportedNetwork,
			Message: fmt.Sprintf("network %s is not an EVM network", network),
		}
	}

	client, err := NewEthClient(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	return &EVMClient{
		network: network,
		client:  client,
		signer:  gethtypes.LatestSignerForChainID(big.NewInt(network.ChainID())),
	}, nil
}

// GetNetwork implements ChainClient.
func (e *EVMClient) GetNetwork() types.Network {
	return e.network
}

// Close implements ChainClient.
func (e *EVMClient) Close() {
	e.client.Close()
}

// TransactionByHash implements ChainClient.
func (e *EVMClient) TransactionByHash(ctx context.Context, txHash string) (*types.ChainTransaction, error) {
	tx, _, err := e.client.TransactionByHash(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("eth_getTransactionByHash %s: %w", txHash, err)
	}

	from, err := gethtypes.Sender(e.signer, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover sender of %s: %w", txHash, err)
	}

	result := &types.ChainTransaction{
		Hash:  tx.Hash().Hex(),
		From:  from.Hex(),
		Value: tx.Value().String(),
	}
	if to := tx.To(); to != nil {
		result.To = to.Hex()
	}

	return result, nil
}

// TransactionReceipt implements ChainClient.
func (e *EVMClient) TransactionReceipt(ctx context.Context, txHash string) (*types.ChainReceipt, error) {
	receipt, err := e.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt %s: %w", txHash, err)
	}

	result := &types.ChainReceipt{Status: receipt.Status}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return result, nil
}

// BlockNumber implements ChainClient.
func (e *EVMClient) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := e.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return n, nil
}
