package tracker

import (
	"container/heap"

	"wireskip-contract/internal/contract/model"
)

// stHeap is a min-heap of share tokens ordered by settlement_close
// ascending (earliest-due at the top).
type stHeap []*model.Sharetoken

func (h stHeap) Len() int { return len(h) }
func (h stHeap) Less(i, j int) bool {
	return h[i].Contract.SettlementClose < h[j].Contract.SettlementClose
}
func (h stHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *stHeap) Push(x interface{}) {
	*h = append(*h, x.(*model.Sharetoken))
}

func (h *stHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*stHeap)(nil)
