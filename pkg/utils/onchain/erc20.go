package onchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"cryptojackal/pkg/utils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// 只读合约方法选择器
var (
	selectorBalanceOf   = []byte{0x70, 0xa0, 0x82, 0x31}
	selectorDecimals    = []byte{0x31, 0x3c, 0xe5, 0x67}
	selectorGetPair     = []byte{0xe6, 0xa4, 0x39, 0x05}
	selectorToken0      = []byte{0x0d, 0xfe, 0x16, 0x81}
	selectorGetReserves = []byte{0x09, 0x02, 0xf1, 0xac}
)

// BalanceReader 查询余额所需的链上能力
type BalanceReader interface {
	ethereum.ContractCaller
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// WalletBalances 查询原生余额和 ERC20 余额, 部分失败时返回已查到的结果和首个错误
func WalletBalances(
	ctx context.Context,
	client BalanceReader,
	walletAddress common.Address,
	erc20Tokens []common.Address,
) (nativeBalance *big.Int, tokenBalances map[common.Address]*big.Int, err error) {
	nativeBalance, err = client.BalanceAt(ctx, walletAddress, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get native balance: %w", err)
	}

	tokenBalances = make(map[common.Address]*big.Int)
	var wg sync.WaitGroup
	var mu sync.Mutex
	errCh := make(chan error, len(erc20Tokens))

	for _, tokenAddr := range erc20Tokens {
		wg.Add(1)
		go func(token common.Address) {
			defer wg.Done()

			balance, err := BalanceOf(ctx, client, token, walletAddress)
			if err != nil {
				errCh <- err
				return
			}
			mu.Lock()
			tokenBalances[token] = balance
			mu.Unlock()
		}(tokenAddr)
	}

	wg.Wait()
	close(errCh)

	var failed []error
	for e := range errCh {
		failed = append(failed, e)
	}
	if len(failed) > 0 {
		return nativeBalance, tokenBalances, fmt.Errorf("%d token queries failed, first error: %w", len(failed), failed[0])
	}
	return nativeBalance, tokenBalances, nil
}

// FormatBalances 按 18 位精度换算, 用于日志和脚本输出
func FormatBalances(native *big.Int, tokens map[common.Address]*big.Int) (decimal.Decimal, map[string]decimal.Decimal) {
	adjNative := decimal.Zero
	if native != nil {
		adjNative = utils.AdjustDecimals(native, 18)
	}
	m := make(map[string]decimal.Decimal, len(tokens))
	for addr, balance := range tokens {
		m[addr.Hex()] = utils.AdjustDecimals(balance, 18)
	}
	return adjNative, m
}

// BalanceOf ERC20 balanceOf(owner)
func BalanceOf(ctx context.Context, caller ethereum.ContractCaller, token, owner common.Address) (*big.Int, error) {
	result, err := call(ctx, caller, token, selectorBalanceOf, owner)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}
	return ParseUint256(result, 0)
}

// Decimals ERC20 decimals()
func Decimals(ctx context.Context, caller ethereum.ContractCaller, token common.Address) (uint8, error) {
	result, err := call(ctx, caller, token, selectorDecimals)
	if err != nil {
		return 0, fmt.Errorf("decimals %s: %w", token.Hex(), err)
	}
	v, err := ParseUint256(result, 0)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() || v.Uint64() > 255 {
		return 0, fmt.Errorf("decimals %s out of range: %s", token.Hex(), v)
	}
	return uint8(v.Uint64()), nil
}

// GetPair UniswapV2Factory.getPair(a, b), 不存在时返回零地址
func GetPair(ctx context.Context, caller ethereum.ContractCaller, factory, a, b common.Address) (common.Address, error) {
	result, err := call(ctx, caller, factory, selectorGetPair, a, b)
	if err != nil {
		return common.Address{}, fmt.Errorf("getPair: %w", err)
	}
	return parseAddress(result)
}

// Token0 UniswapV2Pair.token0()
func Token0(ctx context.Context, caller ethereum.ContractCaller, pair common.Address) (common.Address, error) {
	result, err := call(ctx, caller, pair, selectorToken0)
	if err != nil {
		return common.Address{}, fmt.Errorf("token0 %s: %w", pair.Hex(), err)
	}
	return parseAddress(result)
}

// GetReserves UniswapV2Pair.getReserves(), 忽略 blockTimestampLast
func GetReserves(ctx context.Context, caller ethereum.ContractCaller, pair common.Address) (reserve0, reserve1 *big.Int, err error) {
	result, err := call(ctx, caller, pair, selectorGetReserves)
	if err != nil {
		return nil, nil, fmt.Errorf("getReserves %s: %w", pair.Hex(), err)
	}
	if reserve0, err = ParseUint256(result, 0); err != nil {
		return nil, nil, err
	}
	if reserve1, err = ParseUint256(result, 1); err != nil {
		return nil, nil, err
	}
	return reserve0, reserve1, nil
}

// CallData 拼接选择器和左补齐的地址参数
func CallData(selector []byte, args ...common.Address) []byte {
	data := make([]byte, 0, len(selector)+32*len(args))
	data = append(data, selector...)
	for _, a := range args {
		data = append(data, common.LeftPadBytes(a.Bytes(), 32)...)
	}
	return data
}

// ParseUint256 取返回数据中第 index 个 32 字节字
func ParseUint256(data []byte, index int) (*big.Int, error) {
	start := index * 32
	if len(data) < start+32 {
		return nil, fmt.Errorf("invalid return data length: %d", len(data))
	}
	return new(big.Int).SetBytes(data[start : start+32]), nil
}

func parseAddress(data []byte) (common.Address, error) {
	if len(data) < 32 {
		return common.Address{}, fmt.Errorf("invalid address data length: %d", len(data))
	}
	return common.BytesToAddress(data[12:32]), nil
}

func call(ctx context.Context, caller ethereum.ContractCaller, to common.Address, selector []byte, args ...common.Address) ([]byte, error) {
	return caller.CallContract(ctx, ethereum.CallMsg{
		To:   &to,
		Data: CallData(selector, args...),
	}, nil)
}
