package scheduler

import "container/heap"

// wakeHeap orders requests by TriggerAt, earliest first.
type wakeHeap []WakeRequest

func (h wakeHeap) Len() int           { return len(h) }
func (h wakeHeap) Less(i, j int) bool { return h[i].TriggerAt.Before(h[j].TriggerAt) }
func (h wakeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *wakeHeap) Push(x any) {
	*h = append(*h, x.(WakeRequest))
}

func (h *wakeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func heapPush(h *wakeHeap, r WakeRequest) {
	heap.Push(h, r)
}

func heapPop(h *wakeHeap) WakeRequest {
	return heap.Pop(h).(WakeRequest)
}

// heapRemove removes the first request matching pred.
func heapRemove(h *wakeHeap, pred func(WakeRequest) bool) bool {
	for i, r := range *h {
		if pred(r) {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}

func heapRemoveByToken(h *wakeHeap, token Token) bool {
	return heapRemove(h, func(r WakeRequest) bool { return r.Token == token })
}

func heapRemoveByKey(h *wakeHeap, key string) bool {
	return heapRemove(h, func(r WakeRequest) bool { return r.Key == key })
}
