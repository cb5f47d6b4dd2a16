package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/time/rate"

	"github.com/vitwit/paygate/types"
)

const maxExplorerResponseBytes = 1 << 20

var _ ChainClient = (*ExplorerClient)(nil)

// ExplorerConfig configures an ExplorerClient.
type ExplorerConfig struct {
	Network types.Network
	BaseURL string
	APIKey  string

	// RequestsPerSecond throttles outbound calls. Zero disables throttling.
	RequestsPerSecond int

	HTTPClient *http.Client
}

// ExplorerClient reads transactions through the proxy module of an
// Etherscan-compatible block explorer API. The chain id is always sent, as
// the Etherscan V2 endpoint requires it.
type ExplorerClient struct {
	network    types.Network
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewExplorerClient(cfg ExplorerConfig) (*ExplorerClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = cfg.Network.DefaultExplorerURL()
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid explorer url %q: %w", cfg.BaseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = cfg.RequestsPerSecond
	}

	return &ExplorerClient{
		network:    cfg.Network,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
	}, nil
}

// GetNetwork implements ChainClient.
func (e *ExplorerClient) GetNetwork() types.Network {
	return e.network
}

// Close implements ChainClient.
func (e *ExplorerClient) Close() {
	e.httpClient.CloseIdleConnections()
}

// TransactionByHash implements ChainClient.
func (e *ExplorerClient) TransactionByHash(ctx context.Context, txHash string) (*types.ChainTransaction, error) {
	raw, err := e.proxyCall(ctx, "eth_getTransactionByHash", txHash)
	if err != nil {
		return nil, err
	}
	if isNullResult(raw) {
		return nil, ErrTransactionNotFound
	}

	var tx rpcTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", txHash, err)
	}
	if tx.Value == nil {
		return nil, fmt.Errorf("transaction %s has no value field", txHash)
	}

	result := &types.ChainTransaction{
		Hash:  tx.Hash,
		From:  tx.From,
		Value: tx.Value.ToInt().String(),
	}
	if tx.To != nil {
		result.To = *tx.To
	}
	if tx.BlockNumber != nil {
		result.BlockNumber = uint64(*tx.BlockNumber)
	}

	return result, nil
}

// TransactionReceipt implements ChainClient.
func (e *ExplorerClient) TransactionReceipt(ctx context.Context, txHash string) (*types.ChainReceipt, error) {
	raw, err := e.proxyCall(ctx, "eth_getTransactionReceipt", txHash)
	if err != nil {
		return nil, err
	}
	if isNullResult(raw) {
		return nil, ErrReceiptNotFound
	}

	var receipt rpcReceipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("failed to decode receipt %s: %w", txHash, err)
	}
	if receipt.Status == nil {
		return nil, fmt.Errorf("receipt %s has no status field", txHash)
	}

	return &types.ChainReceipt{
		Status:      uint64(*receipt.Status),
		BlockNumber: uint64(receipt.BlockNumber),
	}, nil
}

// BlockNumber implements ChainClient.
func (e *ExplorerClient) BlockNumber(ctx context.Context) (uint64, error) {
	raw, err := e.proxyCall(ctx, "eth_blockNumber", "")
	if err != nil {
		return 0, err
	}

	var n hexutil.Uint64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("failed to decode block number: %w", err)
	}
	return uint64(n), nil
}

// proxyCall performs GET ?module=proxy&action=<action> and returns the raw
// JSON-RPC result.
func (e *ExplorerClient) proxyCall(ctx context.Context, action, txHash string) (json.RawMessage, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("explorer throttle: %w", err)
	}

	q := url.Values{}
	q.Set("module", "proxy")
	q.Set("action", action)
	if chainID := e.network.ChainID(); chainID != 0 {
		q.Set("chainid", strconv.FormatInt(chainID, 10))
	}
	if txHash != "" {
		q.Set("txhash", txHash)
	}
	if e.apiKey != "" {
		q.Set("apikey", e.apiKey)
	}

	sep := "?"
	if strings.Contains(e.baseURL, "?") {
		sep = "&"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+sep+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build explorer request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer %s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExplorerResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read explorer response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer %s returned HTTP %d", action, resp.StatusCode)
	}

	var envelope explorerResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode explorer response: %w", err)
	}

	if envelope.Error != nil {
		return nil, fmt.Errorf("explorer %s rpc error %d: %s", action, envelope.Error.Code, envelope.Error.Message)
	}

	// Account-style errors ({"status":"0","message":"NOTOK","result":"Max rate limit reached"})
	// come back with a plain string result.
	if envelope.Status == "0" {
		var reason string
		if err := json.Unmarshal(envelope.Result, &reason); err != nil {
			reason = string(envelope.Result)
		}
		return nil, fmt.Errorf("explorer %s failed: %s: %s", action, envelope.Message, reason)
	}

	return envelope.Result, nil
}

func isNullResult(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

type explorerResponse struct {
	Status  string          `json:"status,omitempty"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcTransaction struct {
	Hash        string          `json:"hash"`
	From        string          `json:"from"`
	To          *string         `json:"to"`
	Value       *hexutil.Big    `json:"value"`
	BlockNumber *hexutil.Uint64 `json:"blockNumber"`
}

type rpcReceipt struct {
	Status      *hexutil.Uint64 `json:"status"`
	BlockNumber hexutil.Uint64  `json:"blockNumber"`
}
