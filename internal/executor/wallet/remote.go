package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"cryptojackal/internal/executor/config"
	"cryptojackal/internal/executor/errs"
	"cryptojackal/pkg/httpclient"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// sendTxArgs clef account_signTransaction 的参数格式
type sendTxArgs struct {
	From                 common.MixedcaseAddress  `json:"from"`
	To                   *common.MixedcaseAddress `json:"to"`
	Gas                  hexutil.Uint64           `json:"gas"`
	MaxFeePerGas         *hexutil.Big             `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big             `json:"maxPriorityFeePerGas,omitempty"`
	GasPrice             *hexutil.Big             `json:"gasPrice,omitempty"`
	Value                hexutil.Big              `json:"value"`
	Nonce                hexutil.Uint64           `json:"nonce"`
	Input                hexutil.Bytes            `json:"input"`
	ChainID              *hexutil.Big             `json:"chainId,omitempty"`
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type signTxResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      uint64    `json:"id"`
	Error   *rpcError `json:"error,omitempty"`
	Result  *struct {
		Raw hexutil.Bytes `json:"raw"`
	} `json:"result,omitempty"`
}

// RemoteSigner 通过 clef 外部签名, 进程内不持有私钥
type RemoteSigner struct {
	address common.Address
	url     string
	client  *httpclient.HTTPClient
	tl      *zap.Logger
	seq     atomic.Uint64
}

func NewRemoteSigner(cfg config.WalletConfig, logger *zap.Logger) (*RemoteSigner, error) {
	const op = "wallet.new_remote_signer"
	if !common.IsHexAddress(cfg.Address) {
		return nil, errs.Configurationf(op, "wallet.address %q is not a valid address", cfg.Address)
	}
	if cfg.SignerUrl == "" {
		return nil, errs.Configurationf(op, "wallet.signer_url is empty")
	}
	tl := logger.Named("remote_signer")
	return &RemoteSigner{
		address: common.HexToAddress(cfg.Address),
		url:     cfg.SignerUrl,
		client: httpclient.NewHTTPClient(httpclient.HTTPClientConfig{
			Timeout:    time.Duration(cfg.Timeout) * time.Second,
			MaxRetries: 0, // 签名请求不能盲目重放
		}, tl),
		tl: tl,
	}, nil
}

func (s *RemoteSigner) Address() common.Address {
	return s.address
}

// SignTransaction 返回签名后的二进制交易, 校验签名者和链 ID 与本地一致
func (s *RemoteSigner) SignTransaction(ctx context.Context, tx *types.Transaction, chainID *big.Int) ([]byte, error) {
	const op = "wallet.sign_transaction"

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      s.seq.Add(1),
		Method:  "account_signTransaction",
		Params:  []interface{}{s.args(tx, chainID)},
	}
	var resp signTxResponse
	if err := s.client.PostJSON(ctx, s.url, req, nil, &resp); err != nil {
		return nil, errs.Network(op, fmt.Errorf("signer request: %w", err))
	}
	if resp.Error != nil {
		// clef 拒绝签名属于交易层面的失败, 不重试
		return nil, errs.Transaction(op, fmt.Errorf("signer rejected: %d %s", resp.Error.Code, resp.Error.Message))
	}
	if resp.Result == nil || len(resp.Result.Raw) == 0 {
		return nil, errs.Network(op, fmt.Errorf("signer returned empty result"))
	}

	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(resp.Result.Raw); err != nil {
		return nil, errs.Transaction(op, fmt.Errorf("decode signed transaction: %w", err))
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		return nil, errs.Transaction(op, fmt.Errorf("recover signer: %w", err))
	}
	if sender != s.address {
		return nil, errs.Transaction(op, fmt.Errorf("signed by %s, want %s", sender.Hex(), s.address.Hex()))
	}
	if signed.Nonce() != tx.Nonce() || signed.To() == nil || tx.To() == nil || *signed.To() != *tx.To() {
		return nil, errs.Transaction(op, fmt.Errorf("signer altered the transaction"))
	}

	s.tl.Debug("transaction signed", zap.String("hash", signed.Hash().Hex()), zap.Uint64("nonce", signed.Nonce()))
	return resp.Result.Raw, nil
}

func (s *RemoteSigner) args(tx *types.Transaction, chainID *big.Int) sendTxArgs {
	args := sendTxArgs{
		From:    common.NewMixedcaseAddress(s.address),
		Gas:     hexutil.Uint64(tx.Gas()),
		Value:   hexutil.Big(*tx.Value()),
		Nonce:   hexutil.Uint64(tx.Nonce()),
		Input:   tx.Data(),
		ChainID: (*hexutil.Big)(chainID),
	}
	if to := tx.To(); to != nil {
		mixed := common.NewMixedcaseAddress(*to)
		args.To = &mixed
	}
	if tx.Type() == types.DynamicFeeTxType {
		args.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap())
		args.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap())
	} else {
		args.GasPrice = (*hexutil.Big)(tx.GasPrice())
	}
	return args
}
