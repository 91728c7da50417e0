package queue

import (
	"container/heap"
	"time"

	"cryptojackal/internal/executor/model"
)

// 评分权重: 等级主导, 收益次之, 等待时间防饥饿
const (
	TIER_WEIGHT   = 1_000_000
	AGE_WEIGHT    = 1
	PROFIT_WEIGHT = 100_000
)

// Score tier*W1 + age*W2 + profit*W3
func Score(priority model.OrderPriority, age time.Duration, profit float64) float64 {
	return float64(priority)*TIER_WEIGHT + age.Seconds()*AGE_WEIGHT + profit*PROFIT_WEIGHT
}

// staticKey 所有订单等速老化, 用 -created*W2 代替 age*W2 得到不随时间变化的堆 key
func staticKey(o *model.Order) float64 {
	created := float64(o.CreatedAt.UnixNano()) / float64(time.Second)
	return float64(o.Priority)*TIER_WEIGHT - created*AGE_WEIGHT + o.Opportunity.ExpectedProfit*PROFIT_WEIGHT
}

type entry struct {
	id       string
	key      float64
	seq      uint64
	strategy model.ExecutionStrategy
	created  time.Time
	index    int
}

// orderHeap 最大堆, key 相同时先提交的先出
type orderHeap []*entry

func (h orderHeap) Len() int { return len(h) }

func (h orderHeap) Less(i, j int) bool {
	if h[i].key != h[j].key {
		return h[i].key > h[j].key
	}
	return h[i].seq < h[j].seq
}

func (h orderHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *orderHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *orderHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// pendingSet 待调度订单, 调用方持有锁
type pendingSet struct {
	heap orderHeap
	byID map[string]*entry
	seq  uint64
}

func newPendingSet() *pendingSet {
	return &pendingSet{byID: make(map[string]*entry)}
}

func (p *pendingSet) push(o *model.Order) {
	p.seq++
	e := &entry{id: o.ID, key: staticKey(o), seq: p.seq, strategy: o.Strategy, created: o.CreatedAt}
	heap.Push(&p.heap, e)
	p.byID[o.ID] = e
}

// popReady 弹出评分最高且已就绪的订单, 未就绪的放回
func (p *pendingSet) popReady(now time.Time) (string, bool) {
	var deferred []*entry
	defer func() {
		for _, e := range deferred {
			heap.Push(&p.heap, e)
		}
	}()

	for p.heap.Len() > 0 {
		e := heap.Pop(&p.heap).(*entry)
		if e.strategy.Ready(e.created, now) {
			delete(p.byID, e.id)
			return e.id, true
		}
		deferred = append(deferred, e)
	}
	return "", false
}

func (p *pendingSet) remove(id string) bool {
	e, ok := p.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&p.heap, e.index)
	delete(p.byID, id)
	return true
}

func (p *pendingSet) len() int {
	return p.heap.Len()
}
