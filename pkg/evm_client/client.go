package evm_client

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

const DIAL_TIMEOUT = 5 * time.Second

// Dial 连接 RPC 节点并校验 chain id, expectedChainID 为 0 时不校验
func Dial(ctx context.Context, rawurl string, expectedChainID int64) (*ethclient.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, DIAL_TIMEOUT)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc %s: %w", rawurl, err)
	}
	if expectedChainID == 0 {
		return client, nil
	}

	chainID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if chainID.Int64() != expectedChainID {
		client.Close()
		return nil, fmt.Errorf("rpc %s serves chain %s, want %d", rawurl, chainID, expectedChainID)
	}
	return client, nil
}

// Init evm client, 失败直接 panic
func Init(rawurl string, expectedChainID int64) *ethclient.Client {
	client, err := Dial(context.Background(), rawurl, expectedChainID)
	if err != nil {
		panic(fmt.Sprintf("Init evm client error: %v", err))
	}
	return client
}
