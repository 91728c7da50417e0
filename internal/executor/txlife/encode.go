package txlife

import (
	"math/big"
	"strings"
	"time"

	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const uniswapV2RouterABI = `[
 {"type":"function","name":"swapExactTokensForTokens","stateMutability":"nonpayable",
  "inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
  "outputs":[{"name":"amounts","type":"uint256[]"}]},
 {"type":"function","name":"swapExactETHForTokens","stateMutability":"payable",
  "inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
  "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

const erc20ABI = `[
 {"type":"function","name":"approve","stateMutability":"nonpayable",
  "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
  "outputs":[{"name":"","type":"bool"}]}
]`

var (
	routerABI = mustParseABI(uniswapV2RouterABI)
	tokenABI  = mustParseABI(erc20ABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// call 编码后的调用目标
type call struct {
	to    common.Address
	data  []byte
	value *big.Int
}

// encoder 按交易类型生成 to/data/value, TokenIn 为零地址表示用原生 ETH 买入
type encoder struct {
	router common.Address
	weth   common.Address
}

func newEncoder(router, weth common.Address) encoder {
	return encoder{router: router, weth: weth}
}

func (e encoder) encode(p model.TradeParams, deadline time.Time) (call, error) {
	const op = "txlife.encode"
	switch p.Kind {
	case model.TxSwap:
		return e.encodeSwap(p, deadline)
	case model.TxApprove:
		if p.Token == (common.Address{}) || p.Spender == (common.Address{}) || p.AmountIn == nil || p.AmountIn.Sign() < 0 {
			return call{}, errs.Validationf(op, "approve needs token, spender and a non-negative amount")
		}
		data, err := tokenABI.Pack("approve", p.Spender, p.AmountIn)
		if err != nil {
			return call{}, errs.Internal(op, err)
		}
		return call{to: p.Token, data: data, value: new(big.Int)}, nil
	case model.TxTransfer:
		if p.Recipient == (common.Address{}) || p.Value == nil || p.Value.Sign() <= 0 {
			return call{}, errs.Validationf(op, "transfer needs a recipient and a positive value")
		}
		return call{to: p.Recipient, value: new(big.Int).Set(p.Value)}, nil
	case model.TxCustom:
		if p.To == (common.Address{}) {
			return call{}, errs.Validationf(op, "custom transaction needs a destination")
		}
		return call{to: p.To, data: append([]byte(nil), p.Data...), value: valueOrZero(p.Value)}, nil
	default:
		return call{}, errs.Validationf(op, "unknown transaction kind %v", p.Kind)
	}
}

func (e encoder) encodeSwap(p model.TradeParams, deadline time.Time) (call, error) {
	const op = "txlife.encode_swap"
	if p.AmountIn == nil || p.AmountIn.Sign() <= 0 {
		return call{}, errs.Validationf(op, "swap amount must be positive")
	}
	if p.MinAmountOut == nil || p.MinAmountOut.Sign() < 0 {
		return call{}, errs.Validationf(op, "swap needs a non-negative minimum output")
	}
	if p.TokenOut == (common.Address{}) {
		return call{}, errs.Validationf(op, "swap needs an output token")
	}
	recipient := p.Recipient
	if recipient == (common.Address{}) {
		recipient = p.From
	}
	if recipient == (common.Address{}) {
		return call{}, errs.Validationf(op, "swap needs a recipient")
	}
	expiry := big.NewInt(deadline.Unix())

	if p.TokenIn == (common.Address{}) {
		path := []common.Address{e.weth, p.TokenOut}
		data, err := routerABI.Pack("swapExactETHForTokens", p.MinAmountOut, path, recipient, expiry)
		if err != nil {
			return call{}, errs.Internal(op, err)
		}
		return call{to: e.router, data: data, value: new(big.Int).Set(p.AmountIn)}, nil
	}

	path := []common.Address{p.TokenIn, p.TokenOut}
	if p.TokenIn != e.weth && p.TokenOut != e.weth {
		path = []common.Address{p.TokenIn, e.weth, p.TokenOut}
	}
	data, err := routerABI.Pack("swapExactTokensForTokens", p.AmountIn, p.MinAmountOut, path, recipient, expiry)
	if err != nil {
		return call{}, errs.Internal(op, err)
	}
	return call{to: e.router, data: data, value: new(big.Int)}, nil
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
