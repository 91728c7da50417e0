package txlife

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type heldNonce struct {
	from  common.Address
	nonce uint64
}

// nonceTracker 按发送地址分配 nonce, 取节点 pending nonce 与本地计数的较大值
// held 记录已分配但尚未广播的 nonce, 以请求 ID 为键
type nonceTracker struct {
	mu   sync.Mutex
	next map[common.Address]uint64
	held map[string]heldNonce
}

func newNonceTracker() *nonceTracker {
	return &nonceTracker{
		next: make(map[common.Address]uint64),
		held: make(map[string]heldNonce),
	}
}

func (n *nonceTracker) take(id string, from common.Address, pending uint64) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	nonce := pending
	if local, ok := n.next[from]; ok && local > nonce {
		nonce = local
	}
	for n.isHeld(from, nonce) {
		nonce++
	}
	n.next[from] = nonce + 1
	n.held[id] = heldNonce{from: from, nonce: nonce}
	return nonce
}

func (n *nonceTracker) isHeld(from common.Address, nonce uint64) bool {
	for _, h := range n.held {
		if h.from == from && h.nonce == nonce {
			return true
		}
	}
	return false
}

// sent 交易已广播
func (n *nonceTracker) sent(id string, from common.Address, nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.held, id)
	if local, ok := n.next[from]; !ok || local <= nonce {
		n.next[from] = nonce + 1
	}
}

// release 归还未广播的 nonce: 是最近一次分配则回退, 否则清掉本地计数, 下次以节点为准并跳过仍被占用的 nonce
func (n *nonceTracker) release(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	h, ok := n.held[id]
	if !ok {
		return
	}
	delete(n.held, id)
	if n.next[h.from] == h.nonce+1 {
		n.next[h.from] = h.nonce
		return
	}
	delete(n.next, h.from)
}
