package clients

import (
	"context"

	"github.com/vitwit/paygate/types"
)

// ChainClient looks up transactions on a chain-data provider.
//
// TransactionByHash returns ErrTransactionNotFound when the provider has no
// record of the hash; TransactionReceipt returns ErrReceiptNotFound while the
// transaction is still pending. Any other error means the provider could not
// answer.
type ChainClient interface {
	TransactionByHash(ctx context.Context, txHash string) (*types.ChainTransaction, error)
	TransactionReceipt(ctx context.Context, txHash string) (*types.ChainReceipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	GetNetwork() types.Network
	Close()
}
