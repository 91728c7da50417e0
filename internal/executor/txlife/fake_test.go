package txlife

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"

	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type fakeProvider struct {
	mu          sync.Mutex
	estimate    uint64
	estimateErr error
	sendErr     error
	gasPrice    *big.Int
	tip         *big.Int
	nonce       uint64
	sent        []*types.Transaction
	receipt     *types.Receipt // nil 时返回 NotFound
	head        uint64
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		estimate: 100000,
		gasPrice: big.NewInt(20e9),
		tip:      big.NewInt(1e9),
		nonce:    7,
	}
}

func (f *fakeProvider) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}

func (f *fakeProvider) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.estimate, f.estimateErr
}

func (f *fakeProvider) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeProvider) SuggestGasTipCap(context.Context) (*big.Int, error) { return f.tip, nil }

func (f *fakeProvider) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeProvider) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receipt == nil {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func (f *fakeProvider) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &types.Header{Number: new(big.Int).SetUint64(f.head), BaseFee: big.NewInt(30e9), GasUsed: 15_000_000, GasLimit: 30_000_000}, nil
}

func (f *fakeProvider) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

// PendingNonceAt 与节点一致: 已广播的交易计入 pending nonce
func (f *fakeProvider) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce + uint64(len(f.sent)), nil
}

func (f *fakeProvider) setSendErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

func (f *fakeProvider) sentNonces() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, len(f.sent))
	for i, tx := range f.sent {
		out[i] = tx.Nonce()
	}
	return out
}

func (f *fakeProvider) setReceipt(status uint64, block, head uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipt = &types.Receipt{Status: status, BlockNumber: new(big.Int).SetUint64(block), GasUsed: 95000}
	f.head = head
}

// keyWallet 测试内生成的私钥
type keyWallet struct {
	key *ecdsa.PrivateKey
}

func newKeyWallet() *keyWallet {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return &keyWallet{key: key}
}

func (w *keyWallet) Address() common.Address { return crypto.PubkeyToAddress(w.key.PublicKey) }

func (w *keyWallet) SignTransaction(_ context.Context, tx *types.Transaction, chainID *big.Int) ([]byte, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return nil, err
	}
	return signed.MarshalBinary()
}

type fixedAdvisor struct {
	rec model.GasRecommendation
	err error
}

func (a fixedAdvisor) Recommend(model.GasStrategy) (model.GasRecommendation, error) {
	return a.rec, a.err
}

var unavailableAdvisor = fixedAdvisor{err: errs.ErrGasUnavailable}
